// Package monitoring derives health views from the run checkpoint and the
// knowledge store. Everything here is recomputed on read; the checkpoint's
// outcome map stays the source of truth.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/islandways/placesync/internal/cost"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/store"
)

// Snapshot holds a point-in-time view of the current run and the store.
type Snapshot struct {
	// Run metrics, from the progress checkpoint.
	RunID           string         `json:"run_id,omitempty"`
	Phase           model.RunPhase `json:"phase,omitempty"`
	Processed       int            `json:"processed"`
	Enriched        int            `json:"enriched"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	AlreadyEnriched int            `json:"already_enriched"`
	FailRate        float64        `json:"fail_rate"`

	// API usage and spend.
	SearchCalls  int64          `json:"search_calls"`
	DetailsCalls int64          `json:"details_calls"`
	CostUSD      float64        `json:"cost_usd"`
	ByCategory   map[string]int `json:"by_category,omitempty"`

	// Knowledge store.
	StorePlaces int64 `json:"store_places"`

	// Metadata.
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the progress checkpoint and the store.
type Collector struct {
	state *progress.Store
	store store.Store
	calc  *cost.Calculator
}

// NewCollector creates a metrics collector. The knowledge store is
// optional; without one the snapshot covers the checkpoint only.
func NewCollector(state *progress.Store, st store.Store, rates cost.Rates) *Collector {
	return &Collector{state: state, store: st, calc: cost.NewCalculator(rates)}
}

// Collect gathers a snapshot of the current run. A missing checkpoint
// yields an empty snapshot, not an error.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	st, err := c.state.Load()
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load checkpoint")
	}
	if st != nil {
		stats := Recompute(st, c.calc)

		snap.RunID = st.RunID
		snap.Phase = st.Phase
		snap.Processed = len(st.Processed)
		snap.Enriched = stats.ByOutcome[model.OutcomeEnriched]
		snap.Failed = stats.ByOutcome[model.OutcomeFailed]
		snap.Skipped = stats.ByOutcome[model.OutcomeSkipped]
		snap.AlreadyEnriched = stats.ByOutcome[model.OutcomeAlreadyEnriched]
		if finished := snap.Enriched + snap.Failed; finished > 0 {
			snap.FailRate = float64(snap.Failed) / float64(finished)
		}

		snap.SearchCalls = stats.SearchCalls
		snap.DetailsCalls = stats.DetailsCalls
		snap.CostUSD = stats.EstimatedCostUSD
		snap.ByCategory = stats.ByCategory
		snap.StartedAt = st.StartedAt
		snap.UpdatedAt = st.UpdatedAt
	}

	if c.store != nil {
		n, err := c.store.CountPlaces(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count places")
		}
		snap.StorePlaces = n
	}

	return snap, nil
}

// Recompute rebuilds the derived stats fields from the checkpoint. The
// outcome map wins over the embedded counters, which can lag it when a
// crash lands between a record update and a checkpoint write.
func Recompute(st *model.ProgressState, calc *cost.Calculator) model.Stats {
	stats := st.Stats
	stats.ByOutcome = st.Counts()
	stats.EstimatedCostUSD = calc.Estimate(stats.SearchCalls, stats.DetailsCalls, 0)
	return stats
}
