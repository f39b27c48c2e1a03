package model

// Stats aggregates API usage and field-level update counts for a run.
// Everything here is derived from the progress checkpoint and the client
// counters; it is never a source of truth.
type Stats struct {
	SearchCalls      int64           `json:"search_calls"`
	DetailsCalls     int64           `json:"details_calls"`
	EstimatedCostUSD float64         `json:"estimated_cost_usd"`
	FieldUpdates     map[string]int  `json:"field_updates,omitempty"`
	ByOutcome        map[Outcome]int `json:"by_outcome,omitempty"`
	ByCategory       map[string]int  `json:"by_category,omitempty"`
}

// NewStats returns a Stats with all maps allocated.
func NewStats() Stats {
	return Stats{
		FieldUpdates: make(map[string]int),
		ByOutcome:    make(map[Outcome]int),
		ByCategory:   make(map[string]int),
	}
}

// CountOutcome bumps the per-outcome tally.
func (s *Stats) CountOutcome(o Outcome) {
	if s.ByOutcome == nil {
		s.ByOutcome = make(map[Outcome]int)
	}
	s.ByOutcome[o]++
}

// CountCategory bumps the per-category tally.
func (s *Stats) CountCategory(category string) {
	if category == "" {
		return
	}
	if s.ByCategory == nil {
		s.ByCategory = make(map[string]int)
	}
	s.ByCategory[category]++
}

// CountField bumps the tally for a field actually updated by a merge.
func (s *Stats) CountField(field string) {
	if s.FieldUpdates == nil {
		s.FieldUpdates = make(map[string]int)
	}
	s.FieldUpdates[field]++
}
