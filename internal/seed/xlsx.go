package seed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/islandways/placesync/internal/model"
)

// parseXLSX reads the first sheet of a spreadsheet feed. Row one is the
// header and maps through the same aliases as CSV.
func (l *Loader) parseXLSX(ctx context.Context, path string) ([]model.PlaceRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: open xlsx feed")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("seed: xlsx feed has no sheets")
	}
	sheet := f.Sheets[0]

	var cols map[string]int
	var records []model.PlaceRecord
	for i, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "seed: xlsx feed canceled")
		}

		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}

		if i == 0 {
			cols = headerIndex(cells)
			if _, ok := cols["name"]; !ok {
				return nil, eris.New("seed: xlsx feed has no name column")
			}
			continue
		}

		if rec, ok := l.rowRecord(cols, cells); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
