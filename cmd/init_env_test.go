package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandways/placesync/internal/config"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/store"
)

func TestBuildRegions(t *testing.T) {
	ix := buildRegions(map[string]config.RegionConfig{
		"rincon": {
			SW: config.BoundsCorner{Lat: 18.28, Lng: -67.30},
			NE: config.BoundsCorner{Lat: 18.40, Lng: -67.20},
		},
	})

	region, ok := ix.Lookup("rincon")
	require.True(t, ok)
	assert.True(t, region.Contains(model.LatLng{Lat: 18.34, Lng: -67.25}))
	assert.False(t, region.Contains(model.LatLng{Lat: 18.45, Lng: -66.06}))

	_, ok = ix.Lookup("ponce")
	assert.False(t, ok)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	kb, err := store.NewSQLite(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kb.Close() })
	require.NoError(t, kb.Migrate(context.Background()))
	return kb
}

func TestLoadRecords_FromStore(t *testing.T) {
	kb := newTestStore(t)
	_, err := kb.UpsertPlaces(context.Background(), []model.PlaceRecord{
		{ID: "el-yunque", Name: "El Yunque National Forest"},
	})
	require.NoError(t, err)

	records, err := loadRecords(context.Background(), kb, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "el-yunque", records[0].ID)
}

func TestLoadRecords_FeedUpsertsIntoStore(t *testing.T) {
	kb := newTestStore(t)

	feed := filepath.Join(t.TempDir(), "places.csv")
	require.NoError(t, os.WriteFile(feed, []byte("name,municipality,category\nFlamenco Beach,Culebra,beach\n"), 0o644))

	records, err := loadRecords(context.Background(), kb, feed)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "flamenco-beach", records[0].ID)

	got, err := kb.GetPlace(context.Background(), "flamenco-beach")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Flamenco Beach", got.Name)
}

// testConfig returns a config that passes validation for the offline
// modes, with state and store rooted under dir.
func testConfig(dir string) *config.Config {
	c := &config.Config{}
	c.Directory.RequestsPerSec = 10
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "kb.db")
	c.State.Dir = filepath.Join(dir, "state")
	c.State.SaveInterval = 10
	c.Enrich.MinConfidence = 60
	c.Monitoring.FailureRateThreshold = 0.25
	return c
}

func TestInitEnv_ValidatesMode(t *testing.T) {
	cfg = testConfig(t.TempDir())
	cfg.State.Dir = ""

	_, err := initEnv(context.Background(), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.dir")
}

func TestInitEnv_ImportMode(t *testing.T) {
	cfg = testConfig(t.TempDir())

	env, err := initEnv(context.Background(), "import")
	require.NoError(t, err)
	t.Cleanup(env.Close)

	assert.Nil(t, env.Client, "no api key configured, so no directory client")
	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.State)
	assert.NotNil(t, env.Calc)
	assert.DirExists(t, cfg.State.Dir)
}
