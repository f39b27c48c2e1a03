package acquire

import (
	"github.com/islandways/placesync/internal/model"
)

// Fallback strategy names, in the order Strategies emits them.
const (
	StrategyCoordinates        = "coordinates"
	StrategyNameCategoryRegion = "name_category_region"
	StrategyNameRegion         = "name_region"
	StrategyAddress            = "address"
)

// Strategies returns the fallback queries for a record, most precise
// first. A session is handed each in turn until one yields usable data.
// Records with nothing to search by get an empty slice.
func Strategies(rec model.PlaceRecord) []Query {
	var queries []Query

	if c := rec.Coordinates; c != nil && c.Valid() && (c.Lat != 0 || c.Lng != 0) {
		queries = append(queries, Query{
			Strategy: StrategyCoordinates,
			Name:     rec.Name,
			Coords:   c,
		})
	}
	if rec.Name != "" && rec.Category != "" && rec.Region != "" {
		queries = append(queries, Query{
			Strategy: StrategyNameCategoryRegion,
			Name:     rec.Name,
			Text:     rec.Name + " " + rec.Category + " " + rec.Region,
			Region:   rec.Region,
		})
	}
	if rec.Name != "" && rec.Region != "" {
		queries = append(queries, Query{
			Strategy: StrategyNameRegion,
			Name:     rec.Name,
			Text:     rec.Name + " " + rec.Region,
			Region:   rec.Region,
		})
	}
	if rec.Address != "" {
		queries = append(queries, Query{
			Strategy: StrategyAddress,
			Name:     rec.Name,
			Text:     rec.Address,
		})
	}
	return queries
}
