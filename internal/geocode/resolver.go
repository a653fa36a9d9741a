package geocode

import (
	"context"
	"log/slog"
	"strings"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// Resolver implements domain.Geocoder over an ordered chain of upstream
// providers. The first provider is the primary; later ones are fallbacks
// tried only when an earlier provider fails. Reverse lookups are served
// cache-first and written through on success.
//
// ReverseGeocode and LookupDetails never return an error: when every
// provider fails they return the degraded placeholder address, because
// downstream consumers must always have something to render. Search returns
// an empty slice on total failure.
type Resolver struct {
	providers []domain.GeocodeProvider
	cache     *Cache
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewResolver creates a resolver over the given provider chain.
func NewResolver(providers []domain.GeocodeProvider, cache *Cache, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     cache,
		logger:    logger,
		metrics:   metrics,
	}
}

// ReverseGeocode converts coordinates to a structured address, cache-first.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.ResolvedAddress, error) {
	if addr, ok := r.cache.Get(lat, lng); ok {
		r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return addr, nil
	}
	r.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	for i, p := range r.providers {
		addr, err := p.ReverseGeocode(ctx, lat, lng)
		if err != nil {
			r.logger.Warn("reverse geocode failed",
				"provider", p.Name(),
				"lat", lat,
				"lng", lng,
				"error", err,
			)
			continue
		}
		r.metrics.ResolverRequests.WithLabelValues("reverse", chainOutcome(i)).Inc()
		r.cache.Put(lat, lng, addr)
		return addr, nil
	}

	r.metrics.ResolverRequests.WithLabelValues("reverse", "degraded").Inc()
	coord := &domain.Coordinate{Latitude: lat, Longitude: lng}
	return domain.UnresolvedAddress(coord), nil
}

// Search converts a partial query into place suggestions. Queries shorter
// than 2 characters return an empty slice without touching the network.
func (r *Resolver) Search(ctx context.Context, query string) ([]domain.AutocompleteResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []domain.AutocompleteResult{}, nil
	}

	for i, p := range r.providers {
		results, err := p.Search(ctx, query)
		if err != nil {
			r.logger.Warn("place search failed",
				"provider", p.Name(),
				"query", query,
				"error", err,
			)
			continue
		}
		if len(results) == 0 {
			r.metrics.ResolverRequests.WithLabelValues("search", "empty").Inc()
			return []domain.AutocompleteResult{}, nil
		}
		r.metrics.ResolverRequests.WithLabelValues("search", chainOutcome(i)).Inc()
		return results, nil
	}

	// Empty results is the honest answer when every provider is down.
	r.metrics.ResolverRequests.WithLabelValues("search", "degraded").Inc()
	return []domain.AutocompleteResult{}, nil
}

// LookupDetails resolves a place identifier to a full address. Place IDs are
// not coordinate-keyed, so the cache is not consulted.
func (r *Resolver) LookupDetails(ctx context.Context, placeID string) (domain.ResolvedAddress, error) {
	for i, p := range r.providers {
		addr, err := p.LookupDetails(ctx, placeID)
		if err != nil {
			r.logger.Warn("place details failed",
				"provider", p.Name(),
				"place_id", placeID,
				"error", err,
			)
			continue
		}
		r.metrics.ResolverRequests.WithLabelValues("details", chainOutcome(i)).Inc()
		return addr, nil
	}

	r.metrics.ResolverRequests.WithLabelValues("details", "degraded").Inc()
	return domain.UnresolvedAddress(nil), nil
}

func chainOutcome(index int) string {
	if index == 0 {
		return "primary"
	}
	return "fallback"
}
