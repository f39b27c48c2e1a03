package acquire

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/enrich"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/store"
)

// scriptedLookups backs every session a test's factory hands out. One
// shared script keeps call counting simple across workers.
type scriptedLookups struct {
	mu    sync.Mutex
	calls []Query

	answer func(q Query) (*Result, error)

	created atomic.Int64
	closed  atomic.Int64
}

func (s *scriptedLookups) factory() Factory {
	return func(ctx context.Context) (Session, error) {
		s.created.Add(1)
		return &scriptSession{script: s}, nil
	}
}

func (s *scriptedLookups) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedLookups) strategiesTried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, q := range s.calls {
		out = append(out, q.Strategy)
	}
	return out
}

type scriptSession struct {
	script *scriptedLookups
}

func (ss *scriptSession) Lookup(ctx context.Context, q Query) (*Result, error) {
	ss.script.mu.Lock()
	ss.script.calls = append(ss.script.calls, q)
	ss.script.mu.Unlock()
	return ss.script.answer(q)
}

func (ss *scriptSession) Close() error {
	ss.script.closed.Add(1)
	return nil
}

// answerByName resolves every lookup to a usable result derived from the
// query name.
func answerByName(q Query) (*Result, error) {
	return &Result{
		Confidence: 90,
		Enrichment: model.EnrichmentRecord{
			PlaceID: "pr-" + q.Name,
			Phone:   "(787) 555-0100",
			Address: "Road 115, Rincon, PR",
		},
	}, nil
}

func fullLocatorRecord(id, name string) model.PlaceRecord {
	return model.PlaceRecord{
		ID:          id,
		Name:        name,
		Category:    "restaurant",
		Region:      "rincon",
		Address:     "Road 115, Rincon, PR",
		Coordinates: &model.LatLng{Lat: 18.34, Lng: -67.25},
	}
}

func newTestPool(t *testing.T, dir string, script *scriptedLookups, cfg Config, opts ...Option) (*Pool, *progress.Store) {
	t.Helper()
	state, err := progress.NewStore(dir)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	p, err := New(cfg, script.factory(), state, opts...)
	require.NoError(t, err)
	return p, state
}

func TestNew_Validation(t *testing.T) {
	state, err := progress.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = New(Config{}, nil, state)
	require.Error(t, err)
	assert.True(t, enrich.IsSetup(err))

	script := &scriptedLookups{answer: answerByName}
	_, err = New(Config{}, script.factory(), nil)
	require.Error(t, err)
	assert.True(t, enrich.IsSetup(err))
}

func TestRun_DrainsQueue(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		{ID: "tres-palmas", Name: "Tres Palmas Marine Reserve", Region: "rincon"},
		{ID: "mystery", Name: "Mystery Spot"}, // no locator
	}

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 2})
	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Planned)
	assert.Equal(t, 2, sum.Acquired)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Failed)
	assert.False(t, sum.Partial)
	assert.Equal(t, 1, sum.ByStrategy[StrategyCoordinates])
	assert.Equal(t, 1, sum.ByStrategy[StrategyNameRegion])

	// One session per worker, all closed at drain.
	assert.Equal(t, int64(2), script.created.Load())
	assert.Equal(t, int64(2), script.closed.Load())

	st, err := state.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.Equal(t, model.OutcomeEnriched, st.Processed["la-copa-llena"])
	assert.Equal(t, model.OutcomeEnriched, st.Processed["tres-palmas"])
	assert.Equal(t, model.OutcomeSkipped, st.Processed["mystery"])

	out, err := state.LoadEnriched()
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Snapshot order is stable by ID.
	assert.Equal(t, "la-copa-llena", out[0].ID)
	assert.Equal(t, "tres-palmas", out[1].ID)
	assert.Equal(t, "(787) 555-0100", out[0].Contact.Phone)
}

func TestRun_FallbackOrderStopsAtFirstUsable(t *testing.T) {
	script := &scriptedLookups{}
	script.answer = func(q Query) (*Result, error) {
		switch q.Strategy {
		case StrategyCoordinates:
			return &Result{}, nil // found nothing at the pin
		case StrategyNameCategoryRegion:
			return nil, eris.New("session: results panel never rendered")
		default:
			return answerByName(q)
		}
	}

	rec := fullLocatorRecord("la-copa-llena", "La Copa Llena")
	p, _ := newTestPool(t, t.TempDir(), script, Config{Workers: 1})
	sum, err := p.Run(context.Background(), []model.PlaceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Acquired)
	assert.Equal(t, []string{
		StrategyCoordinates,
		StrategyNameCategoryRegion,
		StrategyNameRegion,
	}, script.strategiesTried(), "address fallback must not run once a strategy succeeds")
	assert.Equal(t, 1, sum.ByStrategy[StrategyNameRegion])
}

func TestRun_AllStrategiesFailing(t *testing.T) {
	script := &scriptedLookups{}
	script.answer = func(q Query) (*Result, error) {
		if q.Name == "La Copa Llena" {
			return nil, eris.New("session: page timeout")
		}
		return answerByName(q)
	}

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		fullLocatorRecord("tres-palmas", "Tres Palmas Marine Reserve"),
	}

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 1})
	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Acquired, "one record failing must not stop the queue")

	st, err := state.Load()
	require.NoError(t, err)
	require.Contains(t, st.Failures, "la-copa-llena")
	assert.Contains(t, st.Failures["la-copa-llena"].Reason, "all strategies failed")
}

func TestRun_NoUsableDataIsFailure(t *testing.T) {
	script := &scriptedLookups{answer: func(q Query) (*Result, error) {
		return &Result{}, nil
	}}

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 1})
	sum, err := p.Run(context.Background(), []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	// Every fallback was tried before giving up.
	assert.Len(t, script.strategiesTried(), 4)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Contains(t, st.Failures["la-copa-llena"].Reason, "no strategy yielded usable data")
}

func TestRun_FreshEnrichmentSkipsLookup(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	rec := fullLocatorRecord("la-copa-llena", "La Copa Llena")
	rec.Enrichment = &model.EnrichmentRecord{PlaceID: "pr-prior", EnrichedAt: time.Now().UTC()}

	p, _ := newTestPool(t, t.TempDir(), script, Config{Workers: 1})
	sum, err := p.Run(context.Background(), []model.PlaceRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.AlreadyEnriched)
	assert.Zero(t, script.callCount())
}

func TestRun_DuplicateIDsClaimedOnce(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
	}

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 2})
	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Planned)
	assert.Equal(t, 1, sum.Acquired)
	assert.Equal(t, 1, script.callCount())

	out, err := state.LoadEnriched()
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRun_ConcurrentWorkersClaimEveryRecordOnce(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	var records []model.PlaceRecord
	for i := 1; i <= 20; i++ {
		records = append(records, fullLocatorRecord(
			fmt.Sprintf("stop-%02d", i),
			fmt.Sprintf("Stop %02d", i)))
	}

	// Workers over the cap get clamped to MaxWorkers.
	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 50})
	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 20, sum.Acquired)
	assert.Equal(t, 20, script.callCount(), "each record looked up exactly once")
	assert.Equal(t, int64(MaxWorkers), script.created.Load())
	assert.Equal(t, int64(MaxWorkers), script.closed.Load())

	seen := make(map[string]bool)
	script.mu.Lock()
	for _, q := range script.calls {
		assert.False(t, seen[q.Name], "record %s claimed twice", q.Name)
		seen[q.Name] = true
	}
	script.mu.Unlock()

	st, err := state.Load()
	require.NoError(t, err)
	assert.Len(t, st.Processed, 20)
}

func TestRun_ShutdownBeforeStartLeavesQueue(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}
	dir := t.TempDir()

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		fullLocatorRecord("tres-palmas", "Tres Palmas Marine Reserve"),
	}

	p, state := newTestPool(t, dir, script, Config{Workers: 1})
	p.Shutdown()
	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, sum.Partial)
	assert.Zero(t, sum.Acquired)
	assert.Zero(t, script.callCount())

	st, err := state.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.PhasePaused, st.Phase)

	resumed, resumedState := newTestPool(t, dir, script, Config{Workers: 1, Resume: true})
	sum2, err := resumed.Run(context.Background(), records)
	require.NoError(t, err)
	assert.False(t, sum2.Partial)
	assert.Equal(t, 2, sum2.Acquired)
	assert.Equal(t, st.RunID, sum2.RunID)

	st2, err := resumedState.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, st2.Phase)
}

func TestRun_ShutdownMidRunFinishesInFlight(t *testing.T) {
	script := &scriptedLookups{}

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		fullLocatorRecord("tres-palmas", "Tres Palmas Marine Reserve"),
		fullLocatorRecord("steps-beach", "Steps Beach"),
	}

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 1})
	script.answer = func(q Query) (*Result, error) {
		// Request shutdown while the first record is still in flight;
		// its processing must complete and be recorded.
		p.Shutdown()
		return answerByName(q)
	}

	sum, err := p.Run(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, sum.Partial)
	assert.Equal(t, 1, sum.Acquired)
	assert.Equal(t, 1, script.callCount())

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhasePaused, st.Phase)
	assert.Len(t, st.Processed, 1)
}

func TestRun_ResumeSkipsProcessed(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}
	dir := t.TempDir()

	records := []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
		fullLocatorRecord("tres-palmas", "Tres Palmas Marine Reserve"),
	}

	first, _ := newTestPool(t, dir, script, Config{Workers: 1, Limit: 1})
	sum1, err := first.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, sum1.Planned)
	assert.Equal(t, 1, sum1.Acquired)
	assert.Equal(t, 1, script.callCount())

	second, secondState := newTestPool(t, dir, script, Config{Workers: 1, Resume: true})
	sum2, err := second.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, sum2.Planned)
	assert.Equal(t, 2, sum2.Acquired)
	assert.Equal(t, 2, script.callCount(), "already-processed record must not be looked up again")

	out, err := secondState.LoadEnriched()
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRun_CanceledContextPauses(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 2})
	sum, err := p.Run(ctx, []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
	})
	require.NoError(t, err)

	assert.True(t, sum.Partial)
	assert.Zero(t, sum.Acquired)
	assert.Zero(t, script.callCount())

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhasePaused, st.Phase)
}

func TestRun_SessionFactoryFailureAborts(t *testing.T) {
	factory := func(ctx context.Context) (Session, error) {
		return nil, eris.New("browser binary not found")
	}
	state, err := progress.NewStore(t.TempDir())
	require.NoError(t, err)

	p, err := New(Config{Workers: 1}, factory, state, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	sum, err := p.Run(context.Background(), []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker 1 session")
	require.NotNil(t, sum)
	assert.True(t, sum.Partial)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, model.PhasePaused, st.Phase, "unprocessed queue stays resumable")
}

func TestRun_PersistsToKnowledgeStore(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	kb, err := store.NewSQLite(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() }) //nolint:errcheck
	require.NoError(t, kb.Migrate(context.Background()))

	seed := fullLocatorRecord("la-copa-llena", "La Copa Llena")
	_, err = kb.UpsertPlaces(context.Background(), []model.PlaceRecord{seed})
	require.NoError(t, err)

	p, _ := newTestPool(t, t.TempDir(), script, Config{Workers: 1}, WithStore(kb))
	sum, err := p.Run(context.Background(), []model.PlaceRecord{seed})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Acquired)

	got, err := kb.GetPlace(context.Background(), "la-copa-llena")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, "(787) 555-0100", got.Contact.Phone)
}

func TestRun_StoreWriteFailureMarksRecordFailed(t *testing.T) {
	script := &scriptedLookups{answer: answerByName}

	kb, err := store.NewSQLite(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() }) //nolint:errcheck
	require.NoError(t, kb.Migrate(context.Background()))

	p, state := newTestPool(t, t.TempDir(), script, Config{Workers: 1}, WithStore(kb))
	sum, err := p.Run(context.Background(), []model.PlaceRecord{
		fullLocatorRecord("la-copa-llena", "La Copa Llena"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Contains(t, st.Failures["la-copa-llena"].Reason, "place not found")
}
