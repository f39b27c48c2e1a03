package model

import (
	"time"
)

// Outcome classifies how a record left the enrichment pipeline.
type Outcome string

const (
	OutcomeEnriched        Outcome = "enriched"
	OutcomeFailed          Outcome = "failed"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeAlreadyEnriched Outcome = "already_enriched"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the pair is inside the WGS84 envelope.
func (c LatLng) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// PlaceRecord is a curated directory entry owned by the knowledge store.
// The enrichment pipeline fills gaps in it but never clobbers curated
// content.
type PlaceRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Region      string            `json:"region"`
	Address     string            `json:"address,omitempty"`
	Coordinates *LatLng           `json:"coordinates,omitempty"`
	Contact     Contact           `json:"contact"`
	Media       Media             `json:"media"`
	Business    Business          `json:"business"`
	Quality     Quality           `json:"quality"`
	Enrichment  *EnrichmentRecord `json:"enrichment,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Contact holds how visitors reach the place.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Media holds editorial and photographic content.
type Media struct {
	Photos      []string `json:"photos,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Business holds operational attributes sourced from the directory.
type Business struct {
	Hours       []string `json:"hours,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty"`
	Status      string   `json:"status,omitempty"`
	PriceLevel  int      `json:"price_level,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
}

// Quality scores how complete a record is, 0-100.
type Quality struct {
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// EnrichmentRecord captures one successful directory match. Re-enrichment
// replaces the whole record rather than patching it.
type EnrichmentRecord struct {
	PlaceID         string    `json:"place_id"`
	MatchConfidence int       `json:"match_confidence"`
	Address         string    `json:"address,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Website         string    `json:"website,omitempty"`
	Rating          float64   `json:"rating,omitempty"`
	ReviewCount     int       `json:"review_count,omitempty"`
	PriceLevel      int       `json:"price_level,omitempty"`
	Hours           []string  `json:"hours,omitempty"`
	PhotoRefs       []string  `json:"photo_refs,omitempty"`
	BusinessStatus  string    `json:"business_status,omitempty"`
	Coordinates     *LatLng   `json:"coordinates,omitempty"`
	Amenities       []string  `json:"amenities,omitempty"`
	EnrichedAt      time.Time `json:"enriched_at"`
	APIVersion      string    `json:"api_version,omitempty"`
}

// Fresh reports whether the enrichment is recent enough to skip
// re-processing. A zero ttl treats any prior enrichment as fresh.
func (e *EnrichmentRecord) Fresh(ttl time.Duration, now time.Time) bool {
	if e == nil || e.PlaceID == "" {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.EnrichedAt) < ttl
}
