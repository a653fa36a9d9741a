package domain

import "context"

// Geocoder converts between coordinates, free-text queries, and place
// identifiers. The resolver implements this for the orchestrator; individual
// upstream providers implement GeocodeProvider.
type Geocoder interface {
	// ReverseGeocode converts coordinates to a structured address.
	ReverseGeocode(ctx context.Context, lat, lng float64) (ResolvedAddress, error)

	// Search converts a partial query into place suggestions.
	Search(ctx context.Context, query string) ([]AutocompleteResult, error)

	// LookupDetails resolves a provider place identifier to a full address.
	LookupDetails(ctx context.Context, placeID string) (ResolvedAddress, error)
}

// GeocodeProvider is one upstream source in the resolver's fallback chain.
type GeocodeProvider interface {
	Geocoder

	// Name identifies the provider in logs and metrics.
	Name() string
}

// PositionProvider acquires a single position fix. It never retries
// internally; retry policy belongs to the caller. Failures are *GeoError.
type PositionProvider interface {
	Acquire(ctx context.Context, opts PositionOptions) (Coordinate, error)
}

// ServiceabilityChecker answers whether delivery is available at a location.
// Implementations never fail: collaborator errors become an unserviceable
// verdict with fallback copy.
type ServiceabilityChecker interface {
	Check(ctx context.Context, loc LocationRecord) ServiceabilityResult
}

// Store is the durable home of the current location and the recent list.
type Store interface {
	// Save writes loc as the current record and promotes it in the recent
	// list, deduplicating by city and state.
	Save(ctx context.Context, loc LocationRecord) error

	// Load returns the current record, or nil if none exists or the stored
	// record has passed the retention window (stale records are cleared).
	Load(ctx context.Context) (*LocationRecord, error)

	// Clear removes the current record. The recent list is kept.
	Clear(ctx context.Context) error

	// Recent returns the most recently used records, newest first.
	Recent(ctx context.Context) ([]LocationRecord, error)
}

// Publisher receives change events when the current location is set or
// cleared. Implementations must not block the orchestrator.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent)
}
