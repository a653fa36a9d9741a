package ipgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// Provider implements domain.PositionProvider over an IP geolocation HTTP
// API. A Go service has no device geolocation hardware; the nearest platform
// capability is locating the session by network address.
//
// Acquire honors the option set of the platform geolocation contract:
// Timeout bounds the request, MaxAge allows returning the previous fix if it
// is young enough, and HighAccuracy is passed to the upstream as a hint.
// One upstream call per invocation, no internal retries.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	lastFix *fix
}

type fix struct {
	coord      domain.Coordinate
	acquiredAt time.Time
}

// NewProvider creates a position provider. An empty baseURL means the
// platform has no location capability; Acquire reports Unsupported.
func NewProvider(baseURL string, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Provider {
	return &Provider{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Acquire obtains a single position fix.
func (p *Provider) Acquire(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	if p.baseURL == "" {
		p.metrics.PositionRequests.WithLabelValues(string(domain.GeoUnsupported)).Inc()
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoUnsupported, "no position capability configured", nil)
	}

	if coord, ok := p.cachedFix(opts.MaxAge); ok {
		p.metrics.PositionRequests.WithLabelValues("cached").Inc()
		return coord, nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	coord, err := p.fetch(ctx, opts.HighAccuracy)
	if err != nil {
		code := domain.GeoPositionUnavailable
		if c, ok := domain.GeoCode(err); ok {
			code = c
		}
		p.metrics.PositionRequests.WithLabelValues(string(code)).Inc()
		return domain.Coordinate{}, err
	}

	p.mu.Lock()
	p.lastFix = &fix{coord: coord, acquiredAt: p.clock.Now()}
	p.mu.Unlock()

	p.metrics.PositionRequests.WithLabelValues("success").Inc()
	return coord, nil
}

// cachedFix returns the previous fix when it is younger than maxAge.
func (p *Provider) cachedFix(maxAge time.Duration) (domain.Coordinate, bool) {
	if maxAge <= 0 {
		return domain.Coordinate{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastFix == nil {
		return domain.Coordinate{}, false
	}
	if p.clock.Now().Sub(p.lastFix.acquiredAt) > maxAge {
		return domain.Coordinate{}, false
	}
	return p.lastFix.coord, true
}

func (p *Provider) fetch(ctx context.Context, highAccuracy bool) (domain.Coordinate, error) {
	params := url.Values{
		"fields": {"status,message,lat,lon,accuracy"},
	}
	if highAccuracy {
		params.Set("accuracy", "high")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/json?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPositionUnavailable, "create request", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Coordinate{}, domain.NewGeoError(domain.GeoTimeout, "position request timed out", err)
		}
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPositionUnavailable, "position request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPermissionDenied, "position provider denied access", nil)
	default:
		body, _ := io.ReadAll(resp.Body)
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPositionUnavailable,
			fmt.Sprintf("position provider status %d: %s", resp.StatusCode, body), nil)
	}

	var pr positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPositionUnavailable, "decode response", err)
	}

	if pr.Status != "success" {
		// Private and reserved ranges cannot be geolocated at all.
		msg := strings.ToLower(pr.Message)
		if strings.Contains(msg, "private") || strings.Contains(msg, "reserved") {
			return domain.Coordinate{}, domain.NewGeoError(domain.GeoUnsupported, pr.Message, nil)
		}
		return domain.Coordinate{}, domain.NewGeoError(domain.GeoPositionUnavailable, pr.Message, nil)
	}

	return domain.Coordinate{
		Latitude:  pr.Lat,
		Longitude: pr.Lon,
		Accuracy:  pr.Accuracy,
	}, nil
}

type positionResponse struct {
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy,omitempty"`
}
