package geo

import (
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/islandways/placesync/internal/model"
)

// Region is a named bounding box places are curated under. Searches for
// records without coordinates are restricted to their region's box.
type Region struct {
	Name   string
	bounds *geom.Bounds
}

// NewRegion builds a region from its southwest and northeast corners.
func NewRegion(name string, sw, ne model.LatLng) Region {
	b := geom.NewBounds(geom.XY).Set(sw.Lng, sw.Lat, ne.Lng, ne.Lat)
	return Region{Name: name, bounds: b}
}

// Contains reports whether c falls inside the region's bounding box.
func (r Region) Contains(c model.LatLng) bool {
	if r.bounds == nil {
		return false
	}
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{c.Lng, c.Lat})
}

// SW returns the southwest corner.
func (r Region) SW() model.LatLng {
	if r.bounds == nil {
		return model.LatLng{}
	}
	return model.LatLng{Lat: r.bounds.Min(1), Lng: r.bounds.Min(0)}
}

// NE returns the northeast corner.
func (r Region) NE() model.LatLng {
	if r.bounds == nil {
		return model.LatLng{}
	}
	return model.LatLng{Lat: r.bounds.Max(1), Lng: r.bounds.Max(0)}
}

// Index resolves region names to their bounds. Keys are canonical, so
// the feed spelling "Old San Juan" finds the configured "old-san-juan".
type Index map[string]Region

// Lookup returns the region for name.
func (ix Index) Lookup(name string) (Region, bool) {
	r, ok := ix[canonical(name)]
	return r, ok
}

// Add registers a region under its canonical name.
func (ix Index) Add(r Region) {
	ix[canonical(r.Name)] = r
}

func canonical(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
