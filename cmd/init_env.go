package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/config"
	"github.com/islandways/placesync/internal/cost"
	"github.com/islandways/placesync/internal/geo"
	"github.com/islandways/placesync/internal/model"
	"github.com/islandways/placesync/internal/progress"
	"github.com/islandways/placesync/internal/seed"
	"github.com/islandways/placesync/internal/store"
	"github.com/islandways/placesync/pkg/directory"
)

// runEnv holds the initialized knowledge store, checkpoint store,
// directory client and region index shared by the enrich, acquire,
// status and serve commands.
type runEnv struct {
	Store   store.Store
	State   *progress.Store
	Client  directory.Client // nil when no API key is configured
	Regions geo.Index
	Calc    *cost.Calculator
}

// Close releases resources held by the run environment.
func (re *runEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// initEnv validates the config for the given command mode, then sets up
// the knowledge store, the checkpoint store and the directory client.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	state, err := progress.NewStore(cfg.State.Dir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &runEnv{
		Store:   st,
		State:   state,
		Regions: buildRegions(cfg.Regions),
		Calc:    cost.NewCalculator(cfg.Pricing),
	}

	if cfg.Directory.APIKey != "" {
		env.Client = directory.NewClient(cfg.Directory.APIKey,
			directory.WithBaseURL(cfg.Directory.BaseURL),
			directory.WithRateLimit(cfg.Directory.RequestsPerSec),
			directory.WithMaxRetries(cfg.Directory.MaxRetries))
	}

	return env, nil
}

// buildRegions indexes the configured region bounding boxes.
func buildRegions(regions map[string]config.RegionConfig) geo.Index {
	ix := geo.Index{}
	for name, rc := range regions {
		ix.Add(geo.NewRegion(name,
			model.LatLng{Lat: rc.SW.Lat, Lng: rc.SW.Lng},
			model.LatLng{Lat: rc.NE.Lat, Lng: rc.NE.Lng}))
	}
	return ix
}

// loadRecords returns the work set for a run. With a feed source the
// records are loaded from it and upserted into the knowledge store
// first, so enrichment writes land on existing rows; otherwise the
// store's current contents are used.
func loadRecords(ctx context.Context, st store.Store, input string) ([]model.PlaceRecord, error) {
	if input == "" {
		records, err := st.ListPlaces(ctx, store.ListFilter{})
		if err != nil {
			return nil, eris.Wrap(err, "list places")
		}
		return records, nil
	}

	records, err := seed.New().Load(ctx, input)
	if err != nil {
		return nil, eris.Wrap(err, "load seed feed")
	}

	n, err := st.UpsertPlaces(ctx, records)
	if err != nil {
		return nil, eris.Wrap(err, "upsert seed records")
	}
	zap.L().Info("seed feed loaded",
		zap.String("source", input),
		zap.Int("records", len(records)),
		zap.Int64("upserted", n),
	)
	return records, nil
}
