package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/location"
)

// LocationService is the orchestrator surface the API exposes.
type LocationService interface {
	CurrentState() location.State
	DetectCurrent(ctx context.Context) location.State
	SelectManual(ctx context.Context, candidate domain.AutocompleteResult) location.State
	Clear(ctx context.Context) location.State
	Search(ctx context.Context, query string) ([]domain.AutocompleteResult, error)
	Recent(ctx context.Context) ([]domain.LocationRecord, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the location API plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the HTTP server. wsHandler serves the subscriber
// websocket; pass nil to disable the route.
func NewServer(addr string, svc LocationService, wsHandler http.HandlerFunc, corsOrigins []string, logger *slog.Logger) *Server {
	s := &Server{logger: logger}

	r := mux.NewRouter()
	r.Use(requestLogging(logger))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handleReady(svc)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/location").Subrouter()
	api.HandleFunc("/state", s.handleState(svc)).Methods(http.MethodGet)
	api.HandleFunc("/detect", s.handleDetect(svc)).Methods(http.MethodPost)
	api.HandleFunc("/select", s.handleSelect(svc)).Methods(http.MethodPost)
	api.HandleFunc("", s.handleClear(svc)).Methods(http.MethodDelete)
	api.HandleFunc("/search", s.handleSearch(svc)).Methods(http.MethodGet)
	api.HandleFunc("/recent", s.handleRecent(svc)).Methods(http.MethodGet)

	if wsHandler != nil {
		r.HandleFunc("/ws", wsHandler).Methods(http.MethodGet)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      corsHandler.Handler(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleState(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.CurrentState())
	}
}

func (s *Server) handleDetect(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.DetectCurrent(r.Context()))
	}
}

func (s *Server) handleSelect(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var candidate domain.AutocompleteResult
		if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid candidate payload"})
			return
		}
		if candidate.PlaceID == "" && candidate.City == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate needs a place_id or a city"})
			return
		}
		writeJSON(w, http.StatusOK, svc.SelectManual(r.Context(), candidate))
	}
}

func (s *Server) handleClear(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Clear(r.Context()))
	}
}

func (s *Server) handleSearch(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			s.logger.Error("search failed", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "search unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func (s *Server) handleRecent(svc LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recents, err := svc.Recent(r.Context())
		if err != nil {
			s.logger.Error("recent locations failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "recent locations unavailable"})
			return
		}
		if recents == nil {
			recents = []domain.LocationRecord{}
		}
		writeJSON(w, http.StatusOK, recents)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
