package enrich

import "github.com/islandways/placesync/internal/model"

// Quality score weights. The contributions sum to 100 for a record with
// everything filled in.
const (
	photoWeightMax   = 25 // scaled by count, full marks at 3+ photos
	phoneWeight      = 10
	websiteWeight    = 10
	descWeightLong   = 15 // 200+ chars
	descWeightMedium = 10 // 80+ chars
	descWeightShort  = 5  // non-empty
	hoursWeight      = 10
	coordsWeight     = 10
	externalIDWeight = 5
	ratingWeight     = 10
	reviewsWeight    = 5
)

// QualityScore rates how complete a record is, 0-100. It is recomputed
// after every merge so the score always reflects the current fields.
func QualityScore(rec *model.PlaceRecord) int {
	s := 0

	if n := len(rec.Media.Photos); n > 0 {
		if n > 3 {
			n = 3
		}
		s += photoWeightMax * n / 3
	}
	if rec.Contact.Phone != "" {
		s += phoneWeight
	}
	if rec.Contact.Website != "" {
		s += websiteWeight
	}
	switch l := len(rec.Media.Description); {
	case l >= 200:
		s += descWeightLong
	case l >= 80:
		s += descWeightMedium
	case l > 0:
		s += descWeightShort
	}
	if len(rec.Business.Hours) > 0 {
		s += hoursWeight
	}
	if rec.Coordinates != nil {
		s += coordsWeight
	}
	if rec.Enrichment != nil && rec.Enrichment.PlaceID != "" {
		s += externalIDWeight
	}
	if rec.Business.Rating > 0 {
		s += ratingWeight
	}
	if rec.Business.ReviewCount > 0 {
		s += reviewsWeight
	}

	if s > 100 {
		s = 100
	}
	return s
}
