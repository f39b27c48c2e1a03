package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandways/placesync/internal/model"
)

func TestLoadMissingStateIsFreshRun(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSaveAndLoadState(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	st := model.NewProgressState()
	st.Phase = model.PhaseProcessing
	st.Record("blue-iguana-beach-bar", model.OutcomeEnriched)
	st.Fail("old-mill-museum", "no candidates returned")
	st.LastIndex = 7

	require.NoError(t, s.SaveState(st))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.RunID, got.RunID)
	assert.Equal(t, model.PhaseProcessing, got.Phase)
	assert.Equal(t, model.OutcomeEnriched, got.Processed["blue-iguana-beach-bar"])
	assert.Equal(t, "no candidates returned", got.Failures["old-mill-museum"].Reason)
	assert.Equal(t, 7, got.LastIndex)
}

func TestLoadCorruptStateIsAnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "progress.json"), []byte("{truncated"), 0o644))

	s, err := NewStore(dir)
	require.NoError(t, err)

	st, err := s.Load()
	require.Error(t, err)
	assert.Nil(t, st)
	assert.Contains(t, err.Error(), "decode state")
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.SaveState(model.NewProgressState()))
	require.NoError(t, s.SaveStats(model.NewStats()))
	require.NoError(t, s.SaveEnriched(nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"progress.json", "enriched.json", "stats.json"}, names)
}

func TestEnrichedRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	none, err := s.LoadEnriched()
	require.NoError(t, err)
	assert.Empty(t, none)

	recs := []model.PlaceRecord{
		{ID: "blue-iguana-beach-bar", Name: "Blue Iguana Beach Bar", Category: "restaurant"},
		{ID: "mangrove-kayak-tours", Name: "Mangrove Kayak Tours", Category: "activity"},
	}
	require.NoError(t, s.SaveEnriched(recs))

	got, err := s.LoadEnriched()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "blue-iguana-beach-bar", got[0].ID)
}

func TestSaveEnrichedNilWritesEmptyArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.SaveEnriched(nil))

	raw, err := os.ReadFile(filepath.Join(dir, "enriched.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestStatsRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	st := model.NewStats()
	st.SearchCalls = 12
	st.DetailsCalls = 9
	st.EstimatedCostUSD = 0.537
	st.CountField("phone")

	require.NoError(t, s.SaveStats(st))

	got, err := s.LoadStats()
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.SearchCalls)
	assert.Equal(t, int64(9), got.DetailsCalls)
	assert.InDelta(t, 0.537, got.EstimatedCostUSD, 1e-9)
	assert.Equal(t, 1, got.FieldUpdates["phone"])
}

func TestCheckpointOverwriteKeepsLatest(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	st := model.NewProgressState()
	require.NoError(t, s.SaveState(st))

	st.Record("r1", model.OutcomeEnriched)
	st.LastIndex = 1
	require.NoError(t, s.SaveState(st))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, got.LastIndex)
	assert.Len(t, got.Processed, 1)
}
