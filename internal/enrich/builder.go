package enrich

import (
	"time"

	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/pkg/directory"
)

// RefreshConfidence gates overwriting fields the directory is treated as
// canonical for. Below it, those fields are only gap-filled.
const RefreshConfidence = 80

// priceLevels maps the API's enum onto the record's 1-4 scale.
var priceLevels = map[string]int{
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// BuildRecord converts fetched details into an enrichment record. The
// record replaces any prior one wholesale; merge policy decides what flows
// into the curated fields.
func BuildRecord(d *directory.PlaceDetails, confidence int) model.EnrichmentRecord {
	rec := model.EnrichmentRecord{
		PlaceID:         d.ID,
		MatchConfidence: confidence,
		Address:         d.FormattedAddress,
		Phone:           phoneOf(d),
		Website:         d.WebsiteURI,
		Rating:          d.Rating,
		ReviewCount:     d.UserRatingCount,
		PriceLevel:      priceLevels[d.PriceLevel],
		BusinessStatus:  d.BusinessStatus,
		Amenities:       amenitiesOf(d),
		EnrichedAt:      time.Now().UTC(),
		APIVersion:      directory.APIVersion,
	}

	if d.Location != nil {
		rec.Coordinates = &model.LatLng{Lat: d.Location.Latitude, Lng: d.Location.Longitude}
	}
	if d.RegularOpeningHours != nil {
		rec.Hours = append([]string(nil), d.RegularOpeningHours.WeekdayDescriptions...)
	}
	for _, p := range d.Photos {
		if p.Name != "" {
			rec.PhotoRefs = append(rec.PhotoRefs, p.Name)
		}
	}

	return rec
}

func phoneOf(d *directory.PlaceDetails) string {
	if d.NationalPhoneNumber != "" {
		return d.NationalPhoneNumber
	}
	return d.InternationalPhoneNumber
}

func amenitiesOf(d *directory.PlaceDetails) []string {
	var out []string
	if d.Takeout {
		out = append(out, "takeout")
	}
	if d.Delivery {
		out = append(out, "delivery")
	}
	if d.DineIn {
		out = append(out, "dine_in")
	}
	if d.OutdoorSeating {
		out = append(out, "outdoor_seating")
	}
	if d.Reservable {
		out = append(out, "reservable")
	}
	if d.ServesVegetarianFood {
		out = append(out, "vegetarian_options")
	}
	return out
}

// Changes lists the curated fields a merge actually touched.
type Changes struct {
	Fields []string
}

func (c *Changes) mark(field string) {
	c.Fields = append(c.Fields, field)
}

// Touched reports whether the merge changed the named field.
func (c Changes) Touched(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Empty reports whether the merge changed nothing.
func (c Changes) Empty() bool {
	return len(c.Fields) == 0
}

// Merge folds an enrichment record into the curated record. Curated
// content wins: non-empty fields are never overwritten, with two
// exceptions. Coordinates and business status are directory-canonical, so
// a match at or above RefreshConfidence replaces them. Photos append,
// deduplicated by ref; curated images are never removed. Merging the same
// enrichment twice is a no-op.
func Merge(rec *model.PlaceRecord, enr model.EnrichmentRecord) Changes {
	var ch Changes

	if rec.Address == "" && enr.Address != "" {
		rec.Address = enr.Address
		ch.mark("address")
	}
	if rec.Contact.Phone == "" && enr.Phone != "" {
		rec.Contact.Phone = enr.Phone
		ch.mark("phone")
	}
	if rec.Contact.Website == "" && enr.Website != "" {
		rec.Contact.Website = enr.Website
		ch.mark("website")
	}
	if len(rec.Business.Hours) == 0 && len(enr.Hours) > 0 {
		rec.Business.Hours = append([]string(nil), enr.Hours...)
		ch.mark("hours")
	}
	if rec.Business.Rating == 0 && enr.Rating > 0 {
		rec.Business.Rating = enr.Rating
		ch.mark("rating")
	}
	if rec.Business.ReviewCount == 0 && enr.ReviewCount > 0 {
		rec.Business.ReviewCount = enr.ReviewCount
		ch.mark("review_count")
	}
	if rec.Business.PriceLevel == 0 && enr.PriceLevel > 0 {
		rec.Business.PriceLevel = enr.PriceLevel
		ch.mark("price_level")
	}

	if enr.Coordinates != nil {
		refresh := enr.MatchConfidence >= RefreshConfidence
		if rec.Coordinates == nil || (refresh && *rec.Coordinates != *enr.Coordinates) {
			c := *enr.Coordinates
			rec.Coordinates = &c
			ch.mark("coordinates")
		}
	}
	if enr.BusinessStatus != "" {
		refresh := enr.MatchConfidence >= RefreshConfidence
		if rec.Business.Status == "" || (refresh && rec.Business.Status != enr.BusinessStatus) {
			rec.Business.Status = enr.BusinessStatus
			ch.mark("status")
		}
	}

	if added := appendNewPhotos(rec, enr.PhotoRefs); added > 0 {
		ch.mark("photos")
	}
	if added := appendNewAmenities(rec, enr.Amenities); added > 0 {
		ch.mark("amenities")
	}

	rec.Enrichment = &enr
	now := time.Now().UTC()
	rec.Quality.Score = QualityScore(rec)
	rec.Quality.UpdatedAt = now
	rec.UpdatedAt = now

	return ch
}

func appendNewPhotos(rec *model.PlaceRecord, refs []string) int {
	seen := make(map[string]bool, len(rec.Media.Photos))
	for _, p := range rec.Media.Photos {
		seen[p] = true
	}
	added := 0
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		rec.Media.Photos = append(rec.Media.Photos, r)
		seen[r] = true
		added++
	}
	return added
}

func appendNewAmenities(rec *model.PlaceRecord, amenities []string) int {
	seen := make(map[string]bool, len(rec.Business.Amenities))
	for _, a := range rec.Business.Amenities {
		seen[a] = true
	}
	added := 0
	for _, a := range amenities {
		if a == "" || seen[a] {
			continue
		}
		rec.Business.Amenities = append(rec.Business.Amenities, a)
		seen[a] = true
		added++
	}
	return added
}
