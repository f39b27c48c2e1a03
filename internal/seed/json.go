package seed

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/islandways/placesync/internal/model"
)

// parseJSON decodes a feed shaped as a JSON array of place records,
// streaming element by element so multi-megabyte drops never load whole.
func (l *Loader) parseJSON(ctx context.Context, r io.Reader) ([]model.PlaceRecord, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "seed: read json feed")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("seed: json feed must be an array, got %v", tok)
	}

	var records []model.PlaceRecord
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "seed: json feed canceled")
		}

		var rec model.PlaceRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, eris.Wrap(err, "seed: decode json record")
		}
		if rec, ok := l.validate(rec); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
