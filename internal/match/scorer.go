// Package match scores directory search candidates against curated place
// records. Scoring is deterministic: the same inputs always produce the
// same match, so reruns and resumed runs agree with each other.
package match

import (
	"math"

	"github.com/agext/levenshtein"

	"github.com/islandways/placesync/internal/geo"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/pkg/directory"
)

const (
	// DefaultMinConfidence rejects matches scoring below it. A wrong
	// merge poisons curated data, so no candidate beats no match.
	DefaultMinConfidence = 60

	// neutralProximity is used when either side has no coordinates.
	neutralProximity = 50

	nameWeight     = 0.7
	locationWeight = 0.3

	// metersPerPoint converts candidate distance to a proximity penalty:
	// full marks at 0m, zero at 1km and beyond.
	metersPerPoint = 10.0
)

// Match is a scored candidate.
type Match struct {
	Candidate         directory.Candidate
	NameSimilarity    int
	LocationProximity int
	Confidence        int
}

// Scorer ranks search candidates against curated records.
type Scorer struct {
	minConfidence int
}

// New creates a Scorer. A non-positive minConfidence falls back to the
// default threshold.
func New(minConfidence int) *Scorer {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Scorer{minConfidence: minConfidence}
}

// MinConfidence returns the acceptance threshold.
func (s *Scorer) MinConfidence() int {
	return s.minConfidence
}

// Best returns the highest-confidence candidate at or above the threshold,
// or nil when nothing qualifies. Ties keep the earliest candidate so
// ordering from the API stays meaningful.
func (s *Scorer) Best(name string, known *model.LatLng, candidates []directory.Candidate) *Match {
	var best *Match
	for _, c := range candidates {
		m := s.Score(name, known, c)
		if best == nil || m.Confidence > best.Confidence {
			scored := m
			best = &scored
		}
	}
	if best == nil || best.Confidence < s.minConfidence {
		return nil
	}
	return best
}

// Score rates a single candidate against the record's name and, when both
// sides have them, coordinates.
func (s *Scorer) Score(name string, known *model.LatLng, c directory.Candidate) Match {
	ns := nameSimilarity(name, c.DisplayName.Text)
	lp := locationProximity(known, c.Location)
	conf := int(math.Round(nameWeight*float64(ns) + locationWeight*float64(lp)))

	return Match{
		Candidate:         c,
		NameSimilarity:    ns,
		LocationProximity: lp,
		Confidence:        conf,
	}
}

// nameSimilarity maps edit distance between normalized names onto 0-100.
func nameSimilarity(a, b string) int {
	na, nb := normalize(a), normalize(b)
	if na == "" && nb == "" {
		return 100
	}
	if na == "" || nb == "" {
		return 0
	}

	dist := levenshtein.Distance(na, nb, nil)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}

	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

// locationProximity maps candidate distance onto 0-100, neutral when
// either side lacks coordinates.
func locationProximity(known *model.LatLng, loc *directory.LatLng) int {
	if known == nil || loc == nil {
		return neutralProximity
	}

	d := geo.Haversine(*known, model.LatLng{Lat: loc.Latitude, Lng: loc.Longitude})
	p := 100 - d/metersPerPoint
	if p < 0 {
		return 0
	}
	return int(math.Round(p))
}
