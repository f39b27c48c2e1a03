package store

import (
	"context"

	"github.com/islandways/placesync/internal/model"
)

// ListFilter specifies criteria for listing places.
type ListFilter struct {
	Category     string `json:"category,omitempty"`
	Region       string `json:"region,omitempty"`
	BelowQuality int    `json:"below_quality,omitempty"` // quality strictly below; 0 disables
	Unenriched   bool   `json:"unenriched,omitempty"`    // only places never enriched
	Limit        int    `json:"limit,omitempty"`         // 0 = no limit
	Offset       int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the place knowledge store.
// Columns promoted out of the record payload (category, region, quality,
// enriched_at) exist for filtering; the record column is the source of
// truth.
type Store interface {
	UpsertPlaces(ctx context.Context, recs []model.PlaceRecord) (int64, error)
	GetPlace(ctx context.Context, id string) (*model.PlaceRecord, error)
	ListPlaces(ctx context.Context, filter ListFilter) ([]model.PlaceRecord, error)
	UpdateEnrichment(ctx context.Context, rec model.PlaceRecord) error
	CountPlaces(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
