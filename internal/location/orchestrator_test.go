package location

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// --- mocks ---

type mockPosition struct {
	coord domain.Coordinate
	err   error
	block chan struct{} // when non-nil, Acquire waits until closed
	calls int
}

func (m *mockPosition) Acquire(_ context.Context, _ domain.PositionOptions) (domain.Coordinate, error) {
	m.calls++
	if m.block != nil {
		<-m.block
	}
	return m.coord, m.err
}

type mockGeocoder struct {
	reverseResult domain.ResolvedAddress
	detailsResult domain.ResolvedAddress
	searchResults []domain.AutocompleteResult
	reverseCalls  int
	detailsCalls  int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.ResolvedAddress, error) {
	m.reverseCalls++
	return m.reverseResult, nil
}

func (m *mockGeocoder) Search(_ context.Context, _ string) ([]domain.AutocompleteResult, error) {
	return m.searchResults, nil
}

func (m *mockGeocoder) LookupDetails(_ context.Context, _ string) (domain.ResolvedAddress, error) {
	m.detailsCalls++
	return m.detailsResult, nil
}

type mockStore struct {
	mu      sync.Mutex
	current *domain.LocationRecord
	saves   []domain.LocationRecord
	loadErr error

	// When gateCity is set, Save for that city signals saveStarted and
	// blocks until saveGate is closed.
	gateCity    string
	saveStarted chan struct{}
	saveGate    chan struct{}
}

func (m *mockStore) Save(_ context.Context, loc domain.LocationRecord) error {
	if m.gateCity != "" && loc.City == m.gateCity {
		m.saveStarted <- struct{}{}
		<-m.saveGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := loc
	m.current = &rec
	m.saves = append(m.saves, loc)
	return nil
}

func (m *mockStore) Load(_ context.Context) (*domain.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.loadErr
}

func (m *mockStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

func (m *mockStore) Recent(_ context.Context) ([]domain.LocationRecord, error) {
	return nil, nil
}

func (m *mockStore) savedCities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cities := make([]string, len(m.saves))
	for i, s := range m.saves {
		cities[i] = s.City
	}
	return cities
}

type mockChecker struct {
	mu     sync.Mutex
	result domain.ServiceabilityResult
	checks []domain.LocationRecord
}

func (m *mockChecker) Check(_ context.Context, loc domain.LocationRecord) domain.ServiceabilityResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, loc)
	return m.result
}

func (m *mockChecker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checks)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChangeEvent(nil), p.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	orch      *Orchestrator
	position  *mockPosition
	geocoder  *mockGeocoder
	store     *mockStore
	checker   *mockChecker
	publisher *recordingPublisher
	metrics   *observability.Metrics
}

func newFixture() *fixture {
	f := &fixture{
		position: &mockPosition{coord: domain.Coordinate{Latitude: 19.0760, Longitude: 72.8777}},
		geocoder: &mockGeocoder{
			reverseResult: domain.ResolvedAddress{
				City:             "Mumbai",
				State:            "MH",
				Country:          "India",
				FormattedAddress: "Mumbai, Maharashtra, India",
			},
		},
		store: &mockStore{},
		checker: &mockChecker{
			result: domain.ServiceabilityResult{
				IsServiceable:         true,
				Message:               "Delivery available",
				EstimatedDeliveryTime: "2-3 days",
			},
		},
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
	f.orch = New(
		f.position, f.geocoder, f.store, f.checker,
		[]domain.Publisher{f.publisher},
		domain.PositionOptions{Timeout: 10 * time.Second},
		clockwork.NewFakeClock(),
		discardLogger(),
		f.metrics,
	)
	return f
}

// --- tests ---

func TestOrchestrator_InitialStateIsNoLocation(t *testing.T) {
	f := newFixture()

	state := f.orch.CurrentState()
	assert.Equal(t, StatusNoLocation, state.Status)
	assert.Nil(t, state.Location)
	assert.False(t, state.IsLoading)
}

func TestOrchestrator_DetectCurrent_EndToEnd(t *testing.T) {
	f := newFixture()

	state := f.orch.DetectCurrent(context.Background())

	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.Location)
	assert.Equal(t, "Mumbai", state.Location.City)
	assert.Equal(t, "MH", state.Location.State)
	assert.Equal(t, "India", state.Location.Country)
	assert.Equal(t, domain.SourceGPS, state.Location.Source)
	require.NotNil(t, state.Location.Coordinates)
	assert.Equal(t, 19.0760, state.Location.Coordinates.Latitude)

	require.NotNil(t, state.Serviceability)
	assert.True(t, state.Serviceability.IsServiceable)
	assert.Equal(t, "Delivery available", state.Serviceability.Message)
	assert.Equal(t, "2-3 days", state.Serviceability.EstimatedDeliveryTime)

	assert.Equal(t, []string{"Mumbai"}, f.store.savedCities())

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventLocationChanged, events[0].Type)
	assert.Equal(t, "Mumbai", events[0].Location.City)
}

func TestOrchestrator_DetectCurrent_PermissionDeniedKeepsPreviousLocation(t *testing.T) {
	f := newFixture()

	// Establish a resolved location first.
	f.orch.DetectCurrent(context.Background())

	f.position.err = domain.NewGeoError(domain.GeoPermissionDenied, "location access denied", nil)
	state := f.orch.DetectCurrent(context.Background())

	assert.Equal(t, StatusError, state.Status)
	assert.Contains(t, state.Error, "denied")
	assert.False(t, state.IsLoading)
	require.NotNil(t, state.Location, "previous location must survive a failed detect")
	assert.Equal(t, "Mumbai", state.Location.City)
}

func TestOrchestrator_SelectManual_WithPlaceID(t *testing.T) {
	f := newFixture()
	f.geocoder.detailsResult = domain.ResolvedAddress{
		City:             "Pune",
		State:            "MH",
		Country:          "India",
		FormattedAddress: "Pune, Maharashtra, India",
	}

	state := f.orch.SelectManual(context.Background(), domain.AutocompleteResult{
		PlaceID:     "place-pune",
		Description: "Pune, Maharashtra, India",
	})

	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.Location)
	assert.Equal(t, "Pune", state.Location.City)
	assert.Equal(t, domain.SourceManual, state.Location.Source)
	assert.Equal(t, 1, f.geocoder.detailsCalls)
	assert.Equal(t, 0, f.position.calls, "manual selection bypasses position acquisition")
}

func TestOrchestrator_SelectManual_PlainCandidate(t *testing.T) {
	f := newFixture()

	state := f.orch.SelectManual(context.Background(), domain.AutocompleteResult{
		City:  "Nagpur",
		State: "MH",
	})

	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.Location)
	assert.Equal(t, "Nagpur", state.Location.City)
	assert.Equal(t, "Nagpur, MH", state.Location.FormattedAddress)
	assert.Equal(t, 0, f.geocoder.detailsCalls)
}

func TestOrchestrator_SelectManual_DegradedDetailsFallBackToCandidate(t *testing.T) {
	f := newFixture()
	f.geocoder.detailsResult = domain.UnresolvedAddress(nil)

	state := f.orch.SelectManual(context.Background(), domain.AutocompleteResult{
		PlaceID:     "place-x",
		City:        "Nashik",
		State:       "MH",
		Description: "Nashik, Maharashtra",
	})

	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.Location)
	assert.Equal(t, "Nashik", state.Location.City)
}

func TestOrchestrator_LateDetectNeverOverwritesNewerSelection(t *testing.T) {
	f := newFixture()
	f.position.block = make(chan struct{})

	done := make(chan State, 1)
	go func() {
		done <- f.orch.DetectCurrent(context.Background())
	}()

	// Wait for the detect to be in flight.
	require.Eventually(t, func() bool {
		return f.orch.CurrentState().IsLoading
	}, time.Second, time.Millisecond)

	// The user picks B before the detect resolves.
	state := f.orch.SelectManual(context.Background(), domain.AutocompleteResult{City: "Bengaluru", State: "KA"})
	assert.Equal(t, "Bengaluru", state.Location.City)

	// The superseded detect is still in flight.
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResolutionsInFlight))

	// Release the stale detect; its result must be discarded.
	close(f.position.block)
	<-done

	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ResolutionsInFlight))

	final := f.orch.CurrentState()
	assert.Equal(t, StatusResolved, final.Status)
	require.NotNil(t, final.Location)
	assert.Equal(t, "Bengaluru", final.Location.City, "late result must not overwrite the newer selection")

	assert.Equal(t, []string{"Bengaluru"}, f.store.savedCities(), "stale resolution must not persist")
}

func TestOrchestrator_StaleSaveNeverLandsAfterNewerSelection(t *testing.T) {
	f := newFixture()
	f.store.gateCity = "Mumbai"
	f.store.saveStarted = make(chan struct{})
	f.store.saveGate = make(chan struct{})

	done := make(chan State, 1)
	go func() {
		done <- f.orch.DetectCurrent(context.Background())
	}()

	// The detect has passed its staleness check and is mid-save.
	<-f.store.saveStarted

	selected := make(chan State, 1)
	go func() {
		selected <- f.orch.SelectManual(context.Background(), domain.AutocompleteResult{City: "Bengaluru", State: "KA"})
	}()

	// Wait until the selection has claimed the latest sequence number; its
	// commit then queues behind the in-flight save.
	require.Eventually(t, func() bool {
		f.orch.mu.Lock()
		defer f.orch.mu.Unlock()
		return f.orch.seq == 2
	}, time.Second, time.Millisecond)

	close(f.store.saveGate)
	<-done
	final := <-selected

	require.NotNil(t, final.Location)
	assert.Equal(t, "Bengaluru", final.Location.City)

	// The selection's write must land last, so the persisted current
	// location agrees with the session.
	assert.Equal(t, []string{"Mumbai", "Bengaluru"}, f.store.savedCities())
	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Bengaluru", loaded.City, "persisted location must match the session after a stale save")

	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ResolutionsInFlight))
}

func TestOrchestrator_ServiceabilityRecomputedPerLocationChange(t *testing.T) {
	f := newFixture()

	f.orch.DetectCurrent(context.Background())
	f.orch.SelectManual(context.Background(), domain.AutocompleteResult{City: "Pune", State: "MH"})

	require.Equal(t, 2, f.checker.callCount())
	assert.Equal(t, "Mumbai", f.checker.checks[0].City)
	assert.Equal(t, "Pune", f.checker.checks[1].City)
}

func TestOrchestrator_Clear(t *testing.T) {
	f := newFixture()
	f.orch.DetectCurrent(context.Background())

	state := f.orch.Clear(context.Background())

	assert.Equal(t, StatusNoLocation, state.Status)
	assert.Nil(t, state.Location)
	assert.Nil(t, f.store.current)

	events := f.publisher.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventLocationCleared, events[1].Type)
	assert.Nil(t, events[1].Location)
}

func TestOrchestrator_Restore(t *testing.T) {
	f := newFixture()
	f.store.current = &domain.LocationRecord{
		ResolvedAddress: domain.ResolvedAddress{City: "Mumbai", State: "MH"},
		Source:          domain.SourceGPS,
	}

	require.NoError(t, f.orch.Restore(context.Background()))

	state := f.orch.CurrentState()
	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.Location)
	assert.Equal(t, "Mumbai", state.Location.City)
	require.NotNil(t, state.Serviceability)
	assert.Equal(t, 1, f.checker.callCount(), "serviceability is computed for the restored location")
	assert.Empty(t, f.publisher.all(), "restore emits no change notification")
}

func TestOrchestrator_RestoreWithEmptyStoreStaysNoLocation(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.orch.Restore(context.Background()))
	assert.Equal(t, StatusNoLocation, f.orch.CurrentState().Status)
}

func TestOrchestrator_ErrorStateRecoversOnNextAction(t *testing.T) {
	f := newFixture()

	f.position.err = domain.NewGeoError(domain.GeoTimeout, "position request timed out", nil)
	state := f.orch.DetectCurrent(context.Background())
	require.Equal(t, StatusError, state.Status)

	f.position.err = nil
	state = f.orch.DetectCurrent(context.Background())
	assert.Equal(t, StatusResolved, state.Status)
	assert.Empty(t, state.Error)
}
