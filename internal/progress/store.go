// Package progress persists run state to disk. Every write lands via a
// temp file and rename so a crash mid-write can never corrupt the files a
// resumed run depends on.
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/islandways/placesync/internal/model"
)

const (
	stateFile    = "progress.json"
	enrichedFile = "enriched.json"
	statsFile    = "stats.json"
)

// Store reads and writes the three run files: the progress checkpoint, the
// enriched output array and the run stats. One Store serializes all
// writers.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, eris.New("progress: state directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "progress: create state directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the progress checkpoint. A missing file means a fresh run and
// returns nil; a corrupt file is an error, never a silent reset.
func (s *Store) Load() (*model.ProgressState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "progress: read state")
	}

	var st model.ProgressState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, eris.Wrap(err, "progress: decode state")
	}
	if st.Processed == nil {
		st.Processed = make(map[string]model.Outcome)
	}

	return &st, nil
}

// SaveState checkpoints the run atomically.
func (s *Store) SaveState(st *model.ProgressState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(stateFile, st)
}

// LoadEnriched reads the enriched output written so far. Missing file
// means none.
func (s *Store) LoadEnriched() ([]model.PlaceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, enrichedFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "progress: read enriched output")
	}

	var recs []model.PlaceRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, eris.Wrap(err, "progress: decode enriched output")
	}

	return recs, nil
}

// SaveEnriched writes the full enriched output array atomically. Callers
// pass the complete set each time; partial appends would leave a torn file
// on crash.
func (s *Store) SaveEnriched(recs []model.PlaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if recs == nil {
		recs = []model.PlaceRecord{}
	}
	return s.writeJSON(enrichedFile, recs)
}

// SaveStats writes the run stats atomically.
func (s *Store) SaveStats(st model.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(statsFile, st)
}

// LoadStats reads the run stats. Missing file returns zero stats.
func (s *Store) LoadStats() (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.Stats
	raw, err := os.ReadFile(filepath.Join(s.dir, statsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, eris.Wrap(err, "progress: read stats")
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, eris.Wrap(err, "progress: decode stats")
	}

	return st, nil
}

// writeJSON writes v to name via temp file, fsync and rename.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "progress: encode %s", name)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "progress: create temp for %s", name)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: write %s", name)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: sync %s", name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: close %s", name)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: replace %s", name)
	}

	return nil
}
