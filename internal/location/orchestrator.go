package location

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// Status is the orchestrator's user-visible state.
type Status string

const (
	StatusNoLocation Status = "no_location"
	StatusResolving  Status = "resolving"
	StatusResolved   Status = "resolved"
	StatusError      Status = "error"
)

// State is the composite published to the UI: the current location, the
// matching serviceability verdict, and any transient error. The error state
// keeps the previous location so the UI does not lose it on a failed retry.
type State struct {
	Status         Status                       `json:"status"`
	Location       *domain.LocationRecord       `json:"location,omitempty"`
	Serviceability *domain.ServiceabilityResult `json:"serviceability,omitempty"`
	IsLoading      bool                         `json:"is_loading"`
	Error          string                       `json:"error,omitempty"`
}

// Orchestrator coordinates position acquisition, geocoding, persistence, and
// serviceability into a single session state.
//
// Only the latest issued resolution may mutate state: every DetectCurrent,
// SelectManual, or Clear bumps a sequence number, and a resolution applies
// its result only while its number is still current. A late response can
// therefore never overwrite a newer user selection.
type Orchestrator struct {
	position   domain.PositionProvider
	geocoder   domain.Geocoder
	store      domain.Store
	checker    domain.ServiceabilityChecker
	publishers []domain.Publisher
	posOpts    domain.PositionOptions
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	seq   uint64
	state State

	// commitMu serializes store writes with the sequence re-check, so a
	// superseded resolution can never persist after the one that replaced it.
	commitMu sync.Mutex
}

// New creates an orchestrator in the NoLocation state.
func New(
	position domain.PositionProvider,
	geocoder domain.Geocoder,
	store domain.Store,
	checker domain.ServiceabilityChecker,
	publishers []domain.Publisher,
	posOpts domain.PositionOptions,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		position:   position,
		geocoder:   geocoder,
		store:      store,
		checker:    checker,
		publishers: publishers,
		posOpts:    posOpts,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		state:      State{Status: StatusNoLocation},
	}
}

// Restore seeds the session from the persisted record, if one survives the
// retention window. Called once at startup; emits no change notification.
func (o *Orchestrator) Restore(ctx context.Context) error {
	loc, err := o.store.Load(ctx)
	if err != nil {
		return err
	}
	if loc == nil {
		return nil
	}

	verdict := o.checker.Check(ctx, *loc)

	o.mu.Lock()
	o.state = State{
		Status:         StatusResolved,
		Location:       loc,
		Serviceability: &verdict,
	}
	o.mu.Unlock()
	return nil
}

// CurrentState returns a snapshot of the session state.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// DetectCurrent runs the full pipeline: acquire position, reverse geocode,
// persist, check serviceability. Position failures surface as the Error
// state with the previous location intact; everything downstream degrades
// gracefully instead of failing.
func (o *Orchestrator) DetectCurrent(ctx context.Context) State {
	seq := o.begin()

	coord, err := o.position.Acquire(ctx, o.posOpts)
	if err != nil {
		o.logger.Warn("position acquisition failed", "error", err)
		return o.fail(seq, err.Error())
	}

	addr, err := o.geocoder.ReverseGeocode(ctx, coord.Latitude, coord.Longitude)
	if err != nil {
		// The resolver degrades rather than erroring; this is unreachable
		// with the stock resolver but kept for other Geocoder impls.
		o.logger.Warn("reverse geocode failed", "error", err)
		return o.fail(seq, err.Error())
	}
	if addr.Coordinates == nil {
		c := coord
		addr.Coordinates = &c
	}

	rec := domain.LocationRecord{
		ResolvedAddress: addr,
		Timestamp:       o.clock.Now().UnixMilli(),
		Source:          domain.SourceGPS,
	}
	return o.commit(ctx, seq, rec)
}

// SelectManual applies a user-picked candidate, bypassing position
// acquisition. Candidates carrying a place ID are resolved to a full address
// first; plain city/state candidates are used as-is.
func (o *Orchestrator) SelectManual(ctx context.Context, candidate domain.AutocompleteResult) State {
	seq := o.begin()

	var addr domain.ResolvedAddress
	if candidate.PlaceID != "" {
		resolved, err := o.geocoder.LookupDetails(ctx, candidate.PlaceID)
		if err != nil {
			o.logger.Warn("place details failed", "place_id", candidate.PlaceID, "error", err)
			return o.fail(seq, err.Error())
		}
		addr = resolved
		if addr.Unresolved() && candidate.City != "" {
			addr = addressFromCandidate(candidate)
		}
	} else {
		addr = addressFromCandidate(candidate)
	}

	rec := domain.LocationRecord{
		ResolvedAddress: addr,
		Timestamp:       o.clock.Now().UnixMilli(),
		Source:          domain.SourceManual,
	}
	return o.commit(ctx, seq, rec)
}

// Clear drops the current location from session and store. Any in-flight
// resolution is invalidated.
func (o *Orchestrator) Clear(ctx context.Context) State {
	o.mu.Lock()
	o.seq++
	o.state = State{Status: StatusNoLocation}
	o.mu.Unlock()

	// Wait out any in-flight commit so its save cannot land after the clear.
	o.commitMu.Lock()
	if err := o.store.Clear(ctx); err != nil {
		o.logger.Warn("clear persisted location failed", "error", err)
	}
	o.commitMu.Unlock()

	o.publish(ctx, domain.ChangeEvent{Type: domain.EventLocationCleared})
	return o.CurrentState()
}

// Search delegates to the geocoder's autocomplete. Rate limiting is the
// caller's concern.
func (o *Orchestrator) Search(ctx context.Context, query string) ([]domain.AutocompleteResult, error) {
	return o.geocoder.Search(ctx, query)
}

// Recent returns the most recently used locations for quick re-selection.
func (o *Orchestrator) Recent(ctx context.Context) ([]domain.LocationRecord, error) {
	return o.store.Recent(ctx)
}

// CheckReadiness reports whether the backing store is reachable.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	_, err := o.store.Recent(ctx)
	return err
}

// begin issues a new sequence number and moves the session to Resolving. The
// previous location stays visible while the resolution runs.
func (o *Orchestrator) begin() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	o.state.Status = StatusResolving
	o.state.IsLoading = true
	o.state.Error = ""
	o.metrics.ResolutionsInFlight.Inc()
	return o.seq
}

// fail records a user-visible error. The previous location is kept.
func (o *Orchestrator) fail(seq uint64, message string) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics.ResolutionsInFlight.Dec()
	if seq != o.seq {
		o.metrics.StaleResultsDropped.Inc()
		return o.state
	}

	o.state.Status = StatusError
	o.state.IsLoading = false
	o.state.Error = message
	return o.state
}

// commit persists the record, recomputes serviceability, and applies both to
// state, provided the resolution is still the latest. Persistence failure is
// logged and the in-memory state still updates.
//
// Commits are serialized: the staleness check and the store write happen
// under one lock, so a superseded resolution that has already passed its
// check finishes its write before the superseding one starts, and the
// store's final content always matches the latest applied state.
func (o *Orchestrator) commit(ctx context.Context, seq uint64, rec domain.LocationRecord) State {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()

	if o.stale(seq) {
		o.metrics.ResolutionsInFlight.Dec()
		return o.CurrentState()
	}

	if err := o.store.Save(ctx, rec); err != nil {
		o.logger.Warn("persist location failed", "city", rec.City, "state", rec.State, "error", err)
	}

	// Serviceability is recomputed on every location change, never reused
	// across distinct locations.
	verdict := o.checker.Check(ctx, rec)

	o.mu.Lock()
	o.metrics.ResolutionsInFlight.Dec()
	if seq != o.seq {
		o.metrics.StaleResultsDropped.Inc()
		state := o.state
		o.mu.Unlock()
		return state
	}

	o.state = State{
		Status:         StatusResolved,
		Location:       &rec,
		Serviceability: &verdict,
	}
	state := o.state
	o.mu.Unlock()

	o.publish(ctx, domain.ChangeEvent{
		Type:           domain.EventLocationChanged,
		Location:       &rec,
		Serviceability: &verdict,
	})
	return state
}

func (o *Orchestrator) stale(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.seq {
		o.metrics.StaleResultsDropped.Inc()
		return true
	}
	return false
}

func (o *Orchestrator) publish(ctx context.Context, ev domain.ChangeEvent) {
	for _, p := range o.publishers {
		p.Publish(ctx, ev)
	}
}

func addressFromCandidate(c domain.AutocompleteResult) domain.ResolvedAddress {
	formatted := c.Description
	if formatted == "" {
		formatted = c.City
		if c.State != "" {
			formatted += ", " + c.State
		}
	}
	return domain.ResolvedAddress{
		City:             c.City,
		State:            c.State,
		FormattedAddress: formatted,
	}
}
