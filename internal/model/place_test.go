package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeEnriched, "enriched"},
		{OutcomeFailed, "failed"},
		{OutcomeSkipped, "skipped"},
		{OutcomeAlreadyEnriched, "already_enriched"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.outcome))
		})
	}
}

func TestLatLngValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    LatLng
		want bool
	}{
		{"zero", LatLng{}, true},
		{"caribbean", LatLng{Lat: 18.4655, Lng: -66.1057}, true},
		{"lat high", LatLng{Lat: 90.5, Lng: 0}, false},
		{"lat low", LatLng{Lat: -91, Lng: 0}, false},
		{"lng high", LatLng{Lat: 0, Lng: 180.1}, false},
		{"lng low", LatLng{Lat: 0, Lng: -181}, false},
		{"poles", LatLng{Lat: -90, Lng: 180}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}

func TestEnrichmentFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil record is never fresh", func(t *testing.T) {
		t.Parallel()
		var e *EnrichmentRecord
		assert.False(t, e.Fresh(0, now))
	})

	t.Run("missing place id is never fresh", func(t *testing.T) {
		t.Parallel()
		e := &EnrichmentRecord{EnrichedAt: now}
		assert.False(t, e.Fresh(0, now))
	})

	t.Run("zero ttl treats any enrichment as fresh", func(t *testing.T) {
		t.Parallel()
		e := &EnrichmentRecord{PlaceID: "p1", EnrichedAt: now.Add(-365 * 24 * time.Hour)}
		assert.True(t, e.Fresh(0, now))
	})

	t.Run("inside window", func(t *testing.T) {
		t.Parallel()
		e := &EnrichmentRecord{PlaceID: "p1", EnrichedAt: now.Add(-24 * time.Hour)}
		assert.True(t, e.Fresh(30*24*time.Hour, now))
	})

	t.Run("outside window", func(t *testing.T) {
		t.Parallel()
		e := &EnrichmentRecord{PlaceID: "p1", EnrichedAt: now.Add(-31 * 24 * time.Hour)}
		assert.False(t, e.Fresh(30*24*time.Hour, now))
	})
}
