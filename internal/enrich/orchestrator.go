package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/cost"
	"github.com/islandways/placesync/internal/geo"
	"github.com/islandways/placesync/internal/match"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/store"
	"github.com/islandways/placesync/pkg/directory"
)

const (
	// DefaultSaveInterval checkpoints progress every N processed records.
	DefaultSaveInterval = 10

	// DefaultBiasRadius is the search circle, in meters, around a record's
	// known coordinates.
	DefaultBiasRadius = 500.0

	// DefaultMaxResults caps candidates returned per search.
	DefaultMaxResults = 10

	// DefaultCacheTTL bounds how long a search response answers repeat
	// queries without billing.
	DefaultCacheTTL = 15 * time.Minute
)

// Config controls a single enrichment run.
type Config struct {
	MinConfidence int           // match acceptance threshold, 0 = scorer default
	SaveInterval  int           // checkpoint cadence in records
	Limit         int           // max records this run, 0 = all
	Category      string        // restrict to one category
	DryRun        bool          // report the plan and cost, no network calls
	Resume        bool          // continue from the saved checkpoint
	RefreshAfter  time.Duration // enrichment older than this is stale, 0 = never
	BiasRadius    float64       // meters around known coordinates
	MaxResults    int           // candidates per search
	CacheTTL      time.Duration // search cache lifetime
}

func (c Config) withDefaults() Config {
	if c.SaveInterval <= 0 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.BiasRadius <= 0 {
		c.BiasRadius = DefaultBiasRadius
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Summary reports how a run ended. It covers the run to date, including
// records processed before a resume.
type Summary struct {
	RunID           string      `json:"run_id,omitempty"`
	Planned         int         `json:"planned"`
	Enriched        int         `json:"enriched"`
	Failed          int         `json:"failed"`
	Skipped         int         `json:"skipped"`
	AlreadyEnriched int         `json:"already_enriched"`
	EstimatedCost   float64     `json:"estimated_cost_usd"`
	Stats           model.Stats `json:"stats"`
	Partial         bool        `json:"partial,omitempty"`
}

// Orchestrator drives place records through search, match, details and
// merge against the place directory. Per-record failures are recorded
// and never abort the run.
type Orchestrator struct {
	cfg     Config
	client  directory.Client
	scorer  *match.Scorer
	state   *progress.Store
	cache   *Cache
	calc    *cost.Calculator
	regions geo.Index
	store   store.Store
	log     *zap.Logger
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore attaches the knowledge store enriched records are written to.
// The orchestrator works purely against the snapshot files without one.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) {
		o.store = st
	}
}

// WithRegions provides the region index used for restricted searches.
func WithRegions(ix geo.Index) Option {
	return func(o *Orchestrator) {
		o.regions = ix
	}
}

// WithRates overrides the billing rates used for cost estimates.
func WithRates(r cost.Rates) Option {
	return func(o *Orchestrator) {
		o.calc = cost.NewCalculator(r)
	}
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithClock overrides the time source for freshness checks in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator around a directory client and a progress
// store.
func New(cfg Config, client directory.Client, state *progress.Store, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, NewSetupError(eris.New("enrich: directory client required"))
	}
	if state == nil {
		return nil, NewSetupError(eris.New("enrich: progress store required"))
	}

	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		client: client,
		scorer: match.New(cfg.MinConfidence),
		state:  state,
		calc:   cost.NewCalculator(cost.DefaultRates()),
		log:    zap.L(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cache = NewCache(o.cfg.CacheTTL)
	return o, nil
}

// recordResult is the outcome of one record's pass through the pipeline.
type recordResult struct {
	outcome model.Outcome
	record  model.PlaceRecord
	changes Changes
	err     error
}

// Run processes records until done, canceled, or the limit is reached.
// A canceled run checkpoints as paused so the next resume picks up where
// it left off; the summary is produced either way.
func (o *Orchestrator) Run(ctx context.Context, records []model.PlaceRecord) (*Summary, error) {
	st, out, err := o.loadState()
	if err != nil {
		return nil, err
	}

	work := o.workList(st, records)

	if o.cfg.DryRun {
		return o.dryRun(st, work), nil
	}

	o.log.Info("enrichment run starting",
		zap.String("run_id", st.RunID),
		zap.Int("records", len(work)),
		zap.Bool("resume", o.cfg.Resume))

	st.Phase = model.PhaseProcessing
	if err := o.checkpoint(st, out); err != nil {
		return nil, NewSetupError(err)
	}

	// Call counters accumulate across resumes: saved totals plus what
	// this client instance adds on top of its starting point.
	startCounts := o.client.Counts()
	base := st.Stats
	refreshStats := func() {
		cur := o.client.Counts()
		st.Stats.SearchCalls = base.SearchCalls + cur.Search - startCounts.Search
		st.Stats.DetailsCalls = base.DetailsCalls + cur.Details - startCounts.Details
		st.Stats.EstimatedCostUSD = o.calc.Estimate(st.Stats.SearchCalls, st.Stats.DetailsCalls, 0)
	}

	interrupted := false
	sinceSave := 0
	for _, rec := range work {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		res := o.processRecord(ctx, rec)
		if res.err != nil && ctx.Err() != nil {
			// The cancel raced the in-flight record. Leave it for the
			// resumed run instead of recording a spurious failure.
			interrupted = true
			break
		}

		switch res.outcome {
		case model.OutcomeEnriched:
			out = append(out, res.record)
			st.Record(rec.ID, model.OutcomeEnriched)
			st.Stats.CountCategory(rec.Category)
			for _, f := range res.changes.Fields {
				st.Stats.CountField(f)
			}
			o.log.Info("record enriched",
				zap.String("id", rec.ID),
				zap.Int("confidence", res.record.Enrichment.MatchConfidence),
				zap.Int("quality", res.record.Quality.Score),
				zap.Strings("fields", res.changes.Fields))
		case model.OutcomeFailed:
			st.Fail(rec.ID, res.err.Error())
			o.log.Warn("record failed",
				zap.String("id", rec.ID),
				zap.String("kind", errKind(res.err)),
				zap.Error(res.err))
		default:
			st.Record(rec.ID, res.outcome)
		}
		st.LastIndex = len(st.Processed)

		sinceSave++
		if sinceSave >= o.cfg.SaveInterval {
			refreshStats()
			if err := o.checkpoint(st, out); err != nil {
				o.log.Warn("checkpoint failed", zap.Error(err))
			}
			sinceSave = 0
		}
	}

	refreshStats()
	if interrupted {
		st.Phase = model.PhasePaused
	} else {
		st.Phase = model.PhaseCompleted
	}
	if err := o.checkpoint(st, out); err != nil {
		st.Phase = model.PhaseFailed
		return o.summary(st, len(work), interrupted), eris.Wrap(err, "enrich: final checkpoint")
	}

	summary := o.summary(st, len(work), interrupted)
	if interrupted {
		o.log.Info("run paused",
			zap.String("run_id", st.RunID),
			zap.Int("processed", len(st.Processed)))
	} else {
		o.log.Info("run completed",
			zap.String("run_id", st.RunID),
			zap.Int("enriched", summary.Enriched),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
			zap.Float64("cost_usd", summary.EstimatedCost))
	}
	return summary, nil
}

// loadState returns the checkpoint to run against, plus any enriched
// records saved by the interrupted run.
func (o *Orchestrator) loadState() (*model.ProgressState, []model.PlaceRecord, error) {
	if !o.cfg.Resume {
		return model.NewProgressState(), nil, nil
	}

	st, err := o.state.Load()
	if err != nil {
		return nil, nil, NewSetupError(err)
	}
	if st == nil {
		return model.NewProgressState(), nil, nil
	}

	out, err := o.state.LoadEnriched()
	if err != nil {
		return nil, nil, NewSetupError(err)
	}
	return st, out, nil
}

// workList filters the input down to what this run should touch.
func (o *Orchestrator) workList(st *model.ProgressState, records []model.PlaceRecord) []model.PlaceRecord {
	var work []model.PlaceRecord
	for _, rec := range records {
		if rec.ID == "" {
			o.log.Warn("record without id dropped", zap.String("name", rec.Name))
			continue
		}
		if st.Seen(rec.ID) {
			continue
		}
		if o.cfg.Category != "" && !strings.EqualFold(rec.Category, o.cfg.Category) {
			continue
		}
		work = append(work, rec)
		if o.cfg.Limit > 0 && len(work) >= o.cfg.Limit {
			break
		}
	}
	return work
}

// dryRun reports what a live run would do without touching the network
// or the saved state.
func (o *Orchestrator) dryRun(st *model.ProgressState, work []model.PlaceRecord) *Summary {
	var fresh, locatorless, billable int
	for _, rec := range work {
		if rec.Enrichment.Fresh(o.cfg.RefreshAfter, o.now()) {
			fresh++
			continue
		}
		if _, ok := o.searchRequest(rec); !ok {
			locatorless++
			continue
		}
		billable++
	}

	return &Summary{
		RunID:           st.RunID,
		Planned:         len(work),
		Skipped:         locatorless,
		AlreadyEnriched: fresh,
		EstimatedCost:   float64(billable) * o.calc.PerRecord(),
		Stats:           st.Stats,
	}
}

// processRecord runs one record through the full pipeline. res.err is
// set only for the failed outcome.
func (o *Orchestrator) processRecord(ctx context.Context, rec model.PlaceRecord) recordResult {
	if rec.Enrichment.Fresh(o.cfg.RefreshAfter, o.now()) {
		o.log.Debug("enrichment still fresh", zap.String("id", rec.ID))
		return recordResult{outcome: model.OutcomeAlreadyEnriched, record: rec}
	}

	req, ok := o.searchRequest(rec)
	if !ok {
		o.log.Warn("record has no usable locator",
			zap.String("id", rec.ID),
			zap.String("name", rec.Name))
		return recordResult{outcome: model.OutcomeSkipped, record: rec}
	}

	resp, err := o.search(ctx, req)
	if err != nil {
		return recordResult{outcome: model.OutcomeFailed, record: rec, err: eris.Wrap(err, "enrich: search")}
	}

	best := o.scorer.Best(rec.Name, knownCoords(rec), resp.Places)
	if best == nil {
		return recordResult{
			outcome: model.OutcomeFailed,
			record:  rec,
			err:     eris.Errorf("enrich: no candidate above confidence %d among %d results", o.scorer.MinConfidence(), len(resp.Places)),
		}
	}

	details, err := o.client.Details(ctx, best.Candidate.ID)
	if err != nil {
		return recordResult{outcome: model.OutcomeFailed, record: rec, err: eris.Wrap(err, "enrich: details")}
	}

	enr := BuildRecord(details, best.Confidence)
	changes := Merge(&rec, enr)

	if o.store != nil {
		if err := o.store.UpdateEnrichment(ctx, rec); err != nil {
			return recordResult{outcome: model.OutcomeFailed, record: rec, err: eris.Wrap(err, "enrich: persist record")}
		}
	}

	return recordResult{outcome: model.OutcomeEnriched, record: rec, changes: changes}
}

// search answers from the cache when it can; only misses hit the wire.
func (o *Orchestrator) search(ctx context.Context, req directory.SearchRequest) (*directory.SearchResponse, error) {
	key := Key(req)
	if resp, ok := o.cache.Get(key); ok {
		return resp, nil
	}

	resp, err := o.client.SearchText(ctx, req)
	if err != nil {
		return nil, err
	}
	o.cache.Set(key, resp)
	return resp, nil
}

// searchRequest builds the directory query for a record. Known
// coordinates bias the search to a circle around them; otherwise a
// configured region restricts it to the region's box. Records with no
// locator at all cannot be searched.
func (o *Orchestrator) searchRequest(rec model.PlaceRecord) (directory.SearchRequest, bool) {
	coords := knownCoords(rec)
	if coords == nil && rec.Address == "" && rec.Region == "" {
		return directory.SearchRequest{}, false
	}

	query := rec.Name
	switch {
	case rec.Region != "":
		query = rec.Name + ", " + rec.Region
	case rec.Address != "":
		query = rec.Name + ", " + rec.Address
	}

	req := directory.SearchRequest{
		TextQuery:      query,
		MaxResultCount: o.cfg.MaxResults,
	}

	region, hasRegion := o.regions.Lookup(rec.Region)
	switch {
	case coords != nil:
		req.LocationBias = &directory.LocationCircle{
			Circle: directory.Circle{
				Center: directory.LatLng{Latitude: coords.Lat, Longitude: coords.Lng},
				Radius: o.cfg.BiasRadius,
			},
		}
	case hasRegion:
		sw, ne := region.SW(), region.NE()
		req.LocationRestriction = &directory.LocationRect{
			Rectangle: directory.Rectangle{
				Low:  directory.LatLng{Latitude: sw.Lat, Longitude: sw.Lng},
				High: directory.LatLng{Latitude: ne.Lat, Longitude: ne.Lng},
			},
		}
	}
	return req, true
}

func (o *Orchestrator) checkpoint(st *model.ProgressState, out []model.PlaceRecord) error {
	if err := o.state.SaveState(st); err != nil {
		return err
	}
	if err := o.state.SaveEnriched(out); err != nil {
		return err
	}
	return o.state.SaveStats(st.Stats)
}

func (o *Orchestrator) summary(st *model.ProgressState, planned int, partial bool) *Summary {
	counts := st.Counts()
	return &Summary{
		RunID:           st.RunID,
		Planned:         planned,
		Enriched:        counts[model.OutcomeEnriched],
		Failed:          counts[model.OutcomeFailed],
		Skipped:         counts[model.OutcomeSkipped],
		AlreadyEnriched: counts[model.OutcomeAlreadyEnriched],
		EstimatedCost:   st.Stats.EstimatedCostUSD,
		Stats:           st.Stats,
		Partial:         partial,
	}
}

// knownCoords returns the record's coordinates when usable. The zero
// pair means "missing" in every feed we ingest, never a real place.
func knownCoords(rec model.PlaceRecord) *model.LatLng {
	c := rec.Coordinates
	if c == nil || !c.Valid() || (c.Lat == 0 && c.Lng == 0) {
		return nil
	}
	return c
}

// errKind buckets a failure for logs and per-outcome breakdowns.
func errKind(err error) string {
	switch {
	case directory.IsRateLimited(err):
		return "rate_limit"
	case directory.IsNetwork(err):
		return "network"
	case directory.APIStatus(err) != 0:
		return "api"
	default:
		return "internal"
	}
}
