package model

import (
	"time"

	"github.com/google/uuid"
)

// RunPhase tracks where a run is in its lifecycle.
type RunPhase string

const (
	PhaseInitializing RunPhase = "initializing"
	PhaseProcessing   RunPhase = "processing"
	PhaseCompleted    RunPhase = "completed"
	PhasePaused       RunPhase = "paused"
	PhaseFailed       RunPhase = "failed"
)

// RecordFailure captures why a single record failed. The run keeps going.
type RecordFailure struct {
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count,omitempty"`
	At         time.Time `json:"at"`
}

// ProgressState is the durable checkpoint for a run. It is written
// atomically every few records so an interrupted run resumes without
// re-billing already-processed records.
type ProgressState struct {
	RunID     string                    `json:"run_id"`
	Phase     RunPhase                  `json:"phase"`
	Processed map[string]Outcome        `json:"processed"`
	Failures  map[string]*RecordFailure `json:"failures,omitempty"`
	LastIndex int                       `json:"last_index"`
	StartedAt time.Time                 `json:"started_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Stats     Stats                     `json:"stats"`
}

// NewProgressState starts a fresh run checkpoint.
func NewProgressState() *ProgressState {
	now := time.Now().UTC()
	return &ProgressState{
		RunID:     uuid.NewString(),
		Phase:     PhaseInitializing,
		Processed: make(map[string]Outcome),
		Failures:  make(map[string]*RecordFailure),
		StartedAt: now,
		UpdatedAt: now,
		Stats:     NewStats(),
	}
}

// Seen reports whether id was already handled in this run.
func (p *ProgressState) Seen(id string) bool {
	_, ok := p.Processed[id]
	return ok
}

// Record marks id with its final outcome.
func (p *ProgressState) Record(id string, o Outcome) {
	if p.Processed == nil {
		p.Processed = make(map[string]Outcome)
	}
	p.Processed[id] = o
	p.Stats.CountOutcome(o)
	p.UpdatedAt = time.Now().UTC()
}

// Fail marks id failed with a reason.
func (p *ProgressState) Fail(id, reason string) {
	if p.Failures == nil {
		p.Failures = make(map[string]*RecordFailure)
	}
	p.Failures[id] = &RecordFailure{Reason: reason, At: time.Now().UTC()}
	p.Record(id, OutcomeFailed)
}

// Counts tallies processed records by outcome.
func (p *ProgressState) Counts() map[Outcome]int {
	out := make(map[Outcome]int, 4)
	for _, o := range p.Processed {
		out[o]++
	}
	return out
}
