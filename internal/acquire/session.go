// Package acquire drains place records through stateful lookup sessions,
// a small worker pool over one shared queue. It is the browser-session
// counterpart to the HTTP enrichment orchestrator: same checkpoint and
// resume rules, but each worker owns a session of its own instead of
// sharing a stateless client.
package acquire

import (
	"context"

	"github.com/islandways/placesync/internal/model"
)

// Query is one lookup attempt against a session. Strategy names which
// fallback produced it so sessions and logs can tell them apart.
type Query struct {
	Strategy string
	Name     string        // curated name, for candidate disambiguation
	Text     string        // free-text lookup, empty for pure coordinate lookups
	Coords   *model.LatLng // exact-point lookup
	Region   string        // region slug, when the strategy is region-scoped
}

// Result is what a session lookup yields for one record. A result
// without a place ID is unusable and the next strategy is tried.
type Result struct {
	Confidence int
	Enrichment model.EnrichmentRecord
}

// Usable reports whether the lookup found an identifiable place.
func (r *Result) Usable() bool {
	return r != nil && r.Enrichment.PlaceID != ""
}

// Session is a stateful lookup resource, a logged-in browser profile or
// similar. Each worker owns exactly one, so implementations do not need
// to be goroutine safe.
type Session interface {
	Lookup(ctx context.Context, q Query) (*Result, error)
	Close() error
}

// Factory builds one session per worker at pool start.
type Factory func(ctx context.Context) (Session, error)
