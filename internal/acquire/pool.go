package acquire

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/islandways/placesync/internal/enrich"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/store"
)

const (
	// DefaultWorkers balances session cost against queue throughput.
	DefaultWorkers = 4

	// MaxWorkers caps the pool. More parallel sessions than this trips
	// the upstream's automation detection.
	MaxWorkers = 8

	// DefaultDelay and DefaultJitter pace each worker between records.
	DefaultDelay  = 1 * time.Second
	DefaultJitter = 300 * time.Millisecond
)

// Config controls a single acquisition run.
type Config struct {
	Workers      int           // concurrent sessions, capped at MaxWorkers
	SaveInterval int           // checkpoint cadence in records
	Limit        int           // max records this run, 0 = all
	Resume       bool          // continue from the saved checkpoint
	RefreshAfter time.Duration // enrichment older than this is stale, 0 = never
	Delay        time.Duration // pause per worker between records
	Jitter       time.Duration // random extra pause, up to this much
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = enrich.DefaultSaveInterval
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Summary reports how a run ended, counting the run to date including
// records processed before a resume. ByStrategy tallies only lookups
// made by this process.
type Summary struct {
	RunID           string         `json:"run_id,omitempty"`
	Planned         int            `json:"planned"`
	Acquired        int            `json:"acquired"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	AlreadyEnriched int            `json:"already_enriched"`
	ByStrategy      map[string]int `json:"by_strategy,omitempty"`
	Partial         bool           `json:"partial,omitempty"`
}

// Pool drains a queue of place records through session-owning workers.
// Workers contend only on the queue and the shared checkpoint; a record
// is never claimed twice. A Pool is good for one Run.
type Pool struct {
	cfg     Config
	factory Factory
	state   *progress.Store
	store   store.Store
	log     *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	queue      []model.PlaceRecord
	results    map[string]model.PlaceRecord
	st         *model.ProgressState
	byStrategy map[string]int
	sinceSave  int
	closed     bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithStore attaches the knowledge store acquired records are written
// to. The pool works purely against the snapshot files without one.
func WithStore(st store.Store) Option {
	return func(p *Pool) {
		p.store = st
	}
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// WithClock overrides the time source for freshness checks in tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a Pool around a session factory and a progress store.
func New(cfg Config, factory Factory, state *progress.Store, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, enrich.NewSetupError(eris.New("acquire: session factory required"))
	}
	if state == nil {
		return nil, enrich.NewSetupError(eris.New("acquire: progress store required"))
	}

	p := &Pool{
		cfg:        cfg.withDefaults(),
		factory:    factory,
		state:      state,
		log:        zap.L(),
		now:        time.Now,
		results:    make(map[string]model.PlaceRecord),
		byStrategy: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Shutdown stops handing out new work. Records already in flight finish
// and are checkpointed; the remaining queue is left for a resume.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Run drains the records until the queue is empty, the context is
// canceled, or Shutdown is called. An interrupted run checkpoints as
// paused so the next resume picks up the remaining queue.
func (p *Pool) Run(ctx context.Context, records []model.PlaceRecord) (*Summary, error) {
	st, prior, err := p.loadState()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.st = st
	p.queue = p.buildQueue(st, records)
	for _, rec := range prior {
		p.results[rec.ID] = rec
	}
	planned := len(p.queue)
	st.Phase = model.PhaseProcessing
	err = p.checkpointLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, enrich.NewSetupError(err)
	}

	workers := p.workerCount(planned)
	p.log.Info("acquisition pool starting",
		zap.String("run_id", st.RunID),
		zap.Int("records", planned),
		zap.Int("workers", workers),
		zap.Bool("resume", p.cfg.Resume))

	var werr error
	if planned > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for i := 1; i <= workers; i++ {
			g.Go(func() error {
				return p.worker(gctx, i)
			})
		}
		werr = g.Wait()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	partial := len(p.queue) > 0 || ctx.Err() != nil
	if partial {
		st.Phase = model.PhasePaused
	} else {
		st.Phase = model.PhaseCompleted
	}
	if err := p.checkpointLocked(); err != nil {
		st.Phase = model.PhaseFailed
		return p.summaryLocked(planned, partial), eris.Wrap(err, "acquire: final checkpoint")
	}

	summary := p.summaryLocked(planned, partial)
	if werr != nil {
		return summary, eris.Wrap(werr, "acquire: worker pool")
	}

	if partial {
		p.log.Info("pool paused",
			zap.String("run_id", st.RunID),
			zap.Int("processed", len(st.Processed)),
			zap.Int("remaining", len(p.queue)))
	} else {
		p.log.Info("pool completed",
			zap.String("run_id", st.RunID),
			zap.Int("acquired", summary.Acquired),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped))
	}
	return summary, nil
}

// worker owns one session and loops pop, lookup, pause until the queue
// is empty or the context is canceled. A session the factory cannot
// build aborts the run; nothing can be acquired without one.
func (p *Pool) worker(ctx context.Context, id int) error {
	sess, err := p.factory(ctx)
	if err != nil {
		return eris.Wrapf(err, "acquire: worker %d session", id)
	}
	defer func() { _ = sess.Close() }()

	log := p.log.With(zap.Int("worker", id))
	log.Debug("worker started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, ok := p.pop()
		if !ok {
			log.Debug("queue drained, worker exiting")
			return nil
		}
		p.process(ctx, sess, rec, log)
		p.pause(ctx)
	}
}

// process records one lookup's outcome into the shared state.
func (p *Pool) process(ctx context.Context, sess Session, rec model.PlaceRecord, log *zap.Logger) {
	res := p.lookup(ctx, sess, rec)
	if res.err != nil && ctx.Err() != nil {
		// The cancel raced the in-flight record. Leave it for the
		// resumed run instead of recording a spurious failure.
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.outcome {
	case model.OutcomeEnriched:
		p.st.Record(rec.ID, model.OutcomeEnriched)
		p.st.Stats.CountCategory(rec.Category)
		for _, f := range res.changes.Fields {
			p.st.Stats.CountField(f)
		}
		p.byStrategy[res.strategy]++
		if cur, ok := p.results[rec.ID]; !ok || confidence(res.record) > confidence(cur) {
			p.results[rec.ID] = res.record
		}
		log.Info("record acquired",
			zap.String("id", rec.ID),
			zap.String("strategy", res.strategy),
			zap.Int("confidence", confidence(res.record)),
			zap.Strings("fields", res.changes.Fields))
	case model.OutcomeFailed:
		p.st.Fail(rec.ID, res.err.Error())
		log.Warn("record failed",
			zap.String("id", rec.ID),
			zap.Error(res.err))
	default:
		p.st.Record(rec.ID, res.outcome)
	}
	p.st.LastIndex = len(p.st.Processed)

	p.sinceSave++
	if p.sinceSave >= p.cfg.SaveInterval {
		if err := p.checkpointLocked(); err != nil {
			log.Warn("checkpoint failed", zap.Error(err))
		}
		p.sinceSave = 0
	}
}

// lookupResult is the outcome of one record's strategy chain.
type lookupResult struct {
	outcome  model.Outcome
	record   model.PlaceRecord
	changes  enrich.Changes
	strategy string
	err      error
}

// lookup walks the record's fallback strategies and merges the first
// usable result. res.err is set only for the failed outcome.
func (p *Pool) lookup(ctx context.Context, sess Session, rec model.PlaceRecord) lookupResult {
	if rec.Enrichment.Fresh(p.cfg.RefreshAfter, p.now()) {
		return lookupResult{outcome: model.OutcomeAlreadyEnriched, record: rec}
	}

	queries := Strategies(rec)
	if len(queries) == 0 {
		p.log.Warn("record has no usable locator",
			zap.String("id", rec.ID),
			zap.String("name", rec.Name))
		return lookupResult{outcome: model.OutcomeSkipped, record: rec}
	}

	var lastErr error
	for _, q := range queries {
		if ctx.Err() != nil {
			return lookupResult{outcome: model.OutcomeFailed, record: rec, err: ctx.Err()}
		}

		res, err := sess.Lookup(ctx, q)
		if err != nil {
			p.log.Debug("lookup strategy failed, trying next",
				zap.String("id", rec.ID),
				zap.String("strategy", q.Strategy),
				zap.Error(err))
			lastErr = err
			continue
		}
		if !res.Usable() {
			continue
		}

		enr := res.Enrichment
		enr.MatchConfidence = res.Confidence
		if enr.EnrichedAt.IsZero() {
			enr.EnrichedAt = p.now().UTC()
		}
		changes := enrich.Merge(&rec, enr)

		if p.store != nil {
			if err := p.store.UpdateEnrichment(ctx, rec); err != nil {
				return lookupResult{outcome: model.OutcomeFailed, record: rec, err: eris.Wrap(err, "acquire: persist record")}
			}
		}
		return lookupResult{outcome: model.OutcomeEnriched, record: rec, changes: changes, strategy: q.Strategy}
	}

	if lastErr != nil {
		return lookupResult{outcome: model.OutcomeFailed, record: rec, err: eris.Wrap(lastErr, "acquire: all strategies failed")}
	}
	return lookupResult{outcome: model.OutcomeFailed, record: rec, err: eris.Errorf("acquire: no strategy yielded usable data for %s", rec.ID)}
}

// pop claims the next record. It returns false when the queue is empty
// or the pool is shutting down.
func (p *Pool) pop() (model.PlaceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.queue) == 0 {
		return model.PlaceRecord{}, false
	}
	rec := p.queue[0]
	p.queue = p.queue[1:]
	return rec, true
}

// pause sleeps the jittered inter-record delay, waking early on cancel.
func (p *Pool) pause(ctx context.Context) {
	d := p.cfg.Delay
	if p.cfg.Jitter > 0 {
		d += time.Duration(rand.Float64() * float64(p.cfg.Jitter))
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}
}

// buildQueue filters the input down to what this run should claim.
func (p *Pool) buildQueue(st *model.ProgressState, records []model.PlaceRecord) []model.PlaceRecord {
	var queue []model.PlaceRecord
	queued := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			p.log.Warn("record without id dropped", zap.String("name", rec.Name))
			continue
		}
		if queued[rec.ID] {
			p.log.Warn("duplicate record id dropped", zap.String("id", rec.ID))
			continue
		}
		if st.Seen(rec.ID) {
			continue
		}
		queued[rec.ID] = true
		queue = append(queue, rec)
		if p.cfg.Limit > 0 && len(queue) >= p.cfg.Limit {
			break
		}
	}
	return queue
}

func (p *Pool) loadState() (*model.ProgressState, []model.PlaceRecord, error) {
	if !p.cfg.Resume {
		return model.NewProgressState(), nil, nil
	}

	st, err := p.state.Load()
	if err != nil {
		return nil, nil, enrich.NewSetupError(err)
	}
	if st == nil {
		return model.NewProgressState(), nil, nil
	}

	prior, err := p.state.LoadEnriched()
	if err != nil {
		return nil, nil, enrich.NewSetupError(err)
	}
	return st, prior, nil
}

// checkpointLocked flushes the full snapshot. Callers hold p.mu, which
// is what serializes writers.
func (p *Pool) checkpointLocked() error {
	if err := p.state.SaveState(p.st); err != nil {
		return err
	}
	if err := p.state.SaveEnriched(p.snapshotLocked()); err != nil {
		return err
	}
	return p.state.SaveStats(p.st.Stats)
}

// snapshotLocked returns the acquired records in stable ID order.
func (p *Pool) snapshotLocked() []model.PlaceRecord {
	out := make([]model.PlaceRecord, 0, len(p.results))
	for _, rec := range p.results {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Pool) summaryLocked(planned int, partial bool) *Summary {
	counts := p.st.Counts()
	byStrategy := make(map[string]int, len(p.byStrategy))
	for k, v := range p.byStrategy {
		byStrategy[k] = v
	}
	return &Summary{
		RunID:           p.st.RunID,
		Planned:         planned,
		Acquired:        counts[model.OutcomeEnriched],
		Failed:          counts[model.OutcomeFailed],
		Skipped:         counts[model.OutcomeSkipped],
		AlreadyEnriched: counts[model.OutcomeAlreadyEnriched],
		ByStrategy:      byStrategy,
		Partial:         partial,
	}
}

func (p *Pool) workerCount(queued int) int {
	w := p.cfg.Workers
	if queued < w {
		w = queued
	}
	if w < 1 {
		w = 1
	}
	return w
}

func confidence(rec model.PlaceRecord) int {
	if rec.Enrichment == nil {
		return 0
	}
	return rec.Enrichment.MatchConfidence
}
