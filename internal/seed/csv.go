package seed

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/model"
)

// csvAliases maps normalized feed headers onto canonical column names.
// The content team's exports have drifted over the years; every spelling
// seen in a real drop is listed here.
var csvAliases = map[string]string{
	"id":             "id",
	"place_id":       "id",
	"slug":           "id",
	"name":           "name",
	"title":          "name",
	"category":       "category",
	"type":           "category",
	"region":         "region",
	"municipality":   "region",
	"area":           "region",
	"address":        "address",
	"street_address": "address",
	"lat":            "lat",
	"latitude":       "lat",
	"lng":            "lng",
	"lon":            "lng",
	"long":           "lng",
	"longitude":      "lng",
	"phone":          "phone",
	"telephone":      "phone",
	"website":        "website",
	"url":            "website",
	"description":    "description",
	"desc":           "description",
}

func (l *Loader) parseCSV(ctx context.Context, r io.Reader) ([]model.PlaceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "seed: read csv header")
	}

	cols := headerIndex(header)
	if _, ok := cols["name"]; !ok {
		return nil, eris.New("seed: csv feed has no name column")
	}

	var records []model.PlaceRecord
	line := 1
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "seed: csv feed canceled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "seed: read csv row %d", line)
		}

		if rec, ok := l.rowRecord(cols, row); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// headerIndex resolves a header row to canonical column positions. The
// first occurrence of a column wins.
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		canon, ok := csvAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := cols[canon]; !dup {
			cols[canon] = i
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// rowRecord builds a record from one tabular row, CSV and XLSX alike.
func (l *Loader) rowRecord(cols map[string]int, row []string) (model.PlaceRecord, bool) {
	get := func(key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := model.PlaceRecord{
		ID:       get("id"),
		Name:     get("name"),
		Category: get("category"),
		Region:   get("region"),
		Address:  get("address"),
	}
	rec.Contact.Phone = get("phone")
	rec.Contact.Website = get("website")
	rec.Media.Description = get("description")

	if latRaw, lngRaw := get("lat"), get("lng"); latRaw != "" || lngRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lng, lngErr := strconv.ParseFloat(lngRaw, 64)
		if latErr != nil || lngErr != nil {
			l.log.Warn("feed coordinates unparseable, dropped",
				zap.String("name", rec.Name),
				zap.String("lat", latRaw),
				zap.String("lng", lngRaw))
		} else {
			rec.Coordinates = &model.LatLng{Lat: lat, Lng: lng}
		}
	}

	return l.validate(rec)
}
