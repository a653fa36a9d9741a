package domain

import "time"

// Coordinate is a WGS-84 latitude/longitude pair. Accuracy is the radius of
// uncertainty in meters, zero when the provider did not report one.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// ResolvedAddress is the structured result of a geocode lookup. City may be
// empty when the upstream returns no locality component; that is a valid
// state, not an error.
type ResolvedAddress struct {
	City             string      `json:"city"`
	State            string      `json:"state"`
	Country          string      `json:"country"`
	PostalCode       string      `json:"postal_code,omitempty"`
	FormattedAddress string      `json:"formatted_address"`
	Coordinates      *Coordinate `json:"coordinates,omitempty"`
}

// LocationUnavailable is the formatted address of a degraded result.
const LocationUnavailable = "Location unavailable"

// UnresolvedAddress is the degraded result returned when every geocoding
// strategy has failed. Downstream consumers always have something to render.
func UnresolvedAddress(coord *Coordinate) ResolvedAddress {
	return ResolvedAddress{
		City:             "Unknown",
		State:            "Unknown",
		Country:          "Unknown",
		FormattedAddress: LocationUnavailable,
		Coordinates:      coord,
	}
}

// Unresolved reports whether the address is the degraded placeholder.
func (a ResolvedAddress) Unresolved() bool {
	return a.FormattedAddress == LocationUnavailable
}

// Source identifies how a location record was produced.
type Source string

const (
	SourceGPS     Source = "gps"
	SourceManual  Source = "manual"
	SourceDefault Source = "default"
)

// LocationRecord is the persisted form of a resolved location. Timestamp is
// epoch milliseconds, matching the storage format.
type LocationRecord struct {
	ResolvedAddress
	Timestamp int64  `json:"timestamp"`
	Source    Source `json:"source"`
	IsDefault bool   `json:"is_default"`
}

// Age returns how long ago the record was produced.
func (r LocationRecord) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.Timestamp))
}

// AutocompleteResult is a single place suggestion for a partial query.
// PlaceID is set when the suggestion came from the places provider and can be
// resolved via LookupDetails; backend suggestions carry City/State directly.
type AutocompleteResult struct {
	PlaceID     string `json:"place_id,omitempty"`
	Description string `json:"description"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
}

// ServiceabilityResult is the delivery verdict for a location. Derived, never
// persisted; recomputed on every location change.
type ServiceabilityResult struct {
	IsServiceable         bool   `json:"is_serviceable"`
	Message               string `json:"message"`
	EstimatedDeliveryTime string `json:"estimated_delivery_time,omitempty"`
}

// PositionOptions tunes a single position acquisition.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// ChangeEvent is pushed to subscribers whenever the current location changes.
// Location and Serviceability are nil for a cleared event.
type ChangeEvent struct {
	Type           string                `json:"type"` // "location_changed" or "location_cleared"
	Location       *LocationRecord       `json:"location,omitempty"`
	Serviceability *ServiceabilityResult `json:"serviceability,omitempty"`
}

const (
	EventLocationChanged = "location_changed"
	EventLocationCleared = "location_cleared"
)
