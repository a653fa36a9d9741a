package googlegeo

import (
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

const providerName = "googlegeo"

// Client implements domain.GeocodeProvider using the Google Maps geocoding
// and places web APIs.
type Client struct {
	key        string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Google geocoding client. baseURL is the API root
// without a trailing slash, e.g. "https://maps.googleapis.com/maps/api".
func NewClient(key, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		key: key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Name() string { return providerName }

// ReverseGeocode converts coordinates to a structured address.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.ResolvedAddress, error) {
	params := url.Values{
		"latlng": {fmt.Sprintf("%.6f,%.6f", lat, lng)},
		"key":    {c.key},
	}

	var resp geocodeResponse
	if err := c.doRequest(ctx, c.baseURL+"/geocode/json?"+params.Encode(), "reverse", &resp); err != nil {
		return domain.ResolvedAddress{}, err
	}
	if err := checkStatus(resp.Status); err != nil {
		return domain.ResolvedAddress{}, err
	}
	if len(resp.Results) == 0 {
		return domain.ResolvedAddress{}, nil
	}

	addr := parseResult(resp.Results[0])
	if addr.Coordinates == nil {
		addr.Coordinates = &domain.Coordinate{Latitude: lat, Longitude: lng}
	}
	return addr, nil
}

// Search queries the places autocomplete endpoint.
func (c *Client) Search(ctx context.Context, query string) ([]domain.AutocompleteResult, error) {
	params := url.Values{
		"input": {query},
		"types": {"(regions)"},
		"key":   {c.key},
	}

	var resp autocompleteResponse
	if err := c.doRequest(ctx, c.baseURL+"/place/autocomplete/json?"+params.Encode(), "search", &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status); err != nil {
		return nil, err
	}

	results := make([]domain.AutocompleteResult, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		results = append(results, domain.AutocompleteResult{
			PlaceID:     p.PlaceID,
			Description: p.Description,
		})
	}
	return results, nil
}

// LookupDetails resolves a place identifier to a full address.
func (c *Client) LookupDetails(ctx context.Context, placeID string) (domain.ResolvedAddress, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {"address_component,formatted_address,geometry"},
		"key":      {c.key},
	}

	var resp detailsResponse
	if err := c.doRequest(ctx, c.baseURL+"/place/details/json?"+params.Encode(), "details", &resp); err != nil {
		return domain.ResolvedAddress{}, err
	}
	if err := checkStatus(resp.Status); err != nil {
		return domain.ResolvedAddress{}, err
	}

	return parseResult(resp.Result), nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ProviderDuration.WithLabelValues(providerName, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("google API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps the API's in-body status field to an error. ZERO_RESULTS
// is not a failure; it produces an empty result upstream.
func checkStatus(status string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	default:
		return fmt.Errorf("google API status %q", status)
	}
}

// parseResult maps address components by type preference: locality then
// administrative_area_level_2 for city, administrative_area_level_1 (short
// form) for state, country (long form), postal_code. First match wins; a
// field with no matching component stays empty.
func parseResult(res result) domain.ResolvedAddress {
	addr := domain.ResolvedAddress{
		FormattedAddress: res.FormattedAddress,
	}

	for _, comp := range res.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "locality":
				addr.City = comp.LongName
			case "administrative_area_level_2":
				if addr.City == "" {
					addr.City = comp.LongName
				}
			case "administrative_area_level_1":
				if addr.State == "" {
					addr.State = comp.ShortName
				}
			case "country":
				if addr.Country == "" {
					addr.Country = comp.LongName
				}
			case "postal_code":
				if addr.PostalCode == "" {
					addr.PostalCode = comp.LongName
				}
			}
		}
	}

	if res.Geometry.Location.Lat != 0 || res.Geometry.Location.Lng != 0 {
		addr.Coordinates = &domain.Coordinate{
			Latitude:  res.Geometry.Location.Lat,
			Longitude: res.Geometry.Location.Lng,
		}
	}
	return addr
}

// Google API response types.

type geocodeResponse struct {
	Status  string   `json:"status"`
	Results []result `json:"results"`
}

type detailsResponse struct {
	Status string `json:"status"`
	Result result `json:"result"`
}

type autocompleteResponse struct {
	Status      string       `json:"status"`
	Predictions []prediction `json:"predictions"`
}

type result struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          geometry           `json:"geometry"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geometry struct {
	Location latLng `json:"location"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type prediction struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}
