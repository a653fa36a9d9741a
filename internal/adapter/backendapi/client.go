package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

const providerName = "backend"

// Client talks to the storefront backend's location endpoints. It is the
// fallback geocode provider behind the primary places API, and the transport
// for serviceability checks.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a backend API client. baseURL has no trailing slash.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Name() string { return providerName }

// ReverseGeocode resolves coordinates through the backend endpoint.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.ResolvedAddress, error) {
	body := map[string]float64{
		"latitude":  lat,
		"longitude": lng,
	}

	var addr domain.ResolvedAddress
	if err := c.doJSON(ctx, http.MethodPost, "/api/location/reverse-geocode", body, "reverse", &addr); err != nil {
		return domain.ResolvedAddress{}, err
	}
	if addr.Coordinates == nil {
		addr.Coordinates = &domain.Coordinate{Latitude: lat, Longitude: lng}
	}
	return addr, nil
}

// Search queries the backend's place search endpoint.
func (c *Client) Search(ctx context.Context, query string) ([]domain.AutocompleteResult, error) {
	path := "/api/location/search?q=" + url.QueryEscape(query)

	var results []domain.AutocompleteResult
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "search", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// LookupDetails resolves a place identifier through the backend.
func (c *Client) LookupDetails(ctx context.Context, placeID string) (domain.ResolvedAddress, error) {
	path := "/api/location/details/" + url.PathEscape(placeID)

	var addr domain.ResolvedAddress
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "details", &addr); err != nil {
		return domain.ResolvedAddress{}, err
	}
	return addr, nil
}

// checkServiceable asks the delivery-zone collaborator for a verdict.
func (c *Client) checkServiceable(ctx context.Context, loc domain.LocationRecord) (domain.ServiceabilityResult, error) {
	body := serviceabilityRequest{
		City:        loc.City,
		State:       loc.State,
		Coordinates: loc.Coordinates,
	}

	var result domain.ServiceabilityResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/location/check-serviceable", body, "serviceability", &result); err != nil {
		return domain.ServiceabilityResult{}, err
	}
	return result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, operation string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ProviderDuration.WithLabelValues(providerName, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend API error: status %d: %s", resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type serviceabilityRequest struct {
	City        string             `json:"city"`
	State       string             `json:"state"`
	Coordinates *domain.Coordinate `json:"coordinates,omitempty"`
}
