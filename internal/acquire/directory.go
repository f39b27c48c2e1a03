package acquire

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/islandways/placesync/internal/enrich"
	"github.com/islandways/placesync/internal/geo"
	"github.com/islandways/placesync/internal/match"
	"github.com/islandways/placesync/pkg/directory"
)

// DirectoryConfig shapes the API-backed sessions a DirectoryFactory
// hands out.
type DirectoryConfig struct {
	APIKey         string
	BaseURL        string  // empty = production endpoint
	RequestsPerSec float64 // per session, not shared across workers
	MaxRetries     int
	MinConfidence  int     // match acceptance threshold, 0 = scorer default
	BiasRadius     float64 // meters around a coordinate query
	MaxResults     int     // candidates per search
}

// DirectoryFactory builds sessions backed by the place-directory API.
// Every session owns its own client and rate gate, so one slow worker
// never starves the others' quota windows. The factory keeps a handle
// on each client it builds so Counts can total the wire requests of
// the whole pool.
type DirectoryFactory struct {
	cfg     DirectoryConfig
	regions geo.Index

	mu      sync.Mutex
	clients []directory.Client
}

// NewDirectoryFactory validates the config and returns a factory whose
// Session method satisfies Factory.
func NewDirectoryFactory(cfg DirectoryConfig, regions geo.Index) (*DirectoryFactory, error) {
	if cfg.APIKey == "" {
		return nil, enrich.NewSetupError(eris.New("acquire: directory api key required"))
	}
	if cfg.BiasRadius <= 0 {
		cfg.BiasRadius = enrich.DefaultBiasRadius
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = enrich.DefaultMaxResults
	}
	return &DirectoryFactory{cfg: cfg, regions: regions}, nil
}

// Session builds one API-backed session with a fresh client.
func (f *DirectoryFactory) Session(_ context.Context) (Session, error) {
	var opts []directory.Option
	if f.cfg.BaseURL != "" {
		opts = append(opts, directory.WithBaseURL(f.cfg.BaseURL))
	}
	if f.cfg.RequestsPerSec > 0 {
		opts = append(opts, directory.WithRateLimit(f.cfg.RequestsPerSec))
	}
	if f.cfg.MaxRetries > 0 {
		opts = append(opts, directory.WithMaxRetries(f.cfg.MaxRetries))
	}
	client := directory.NewClient(f.cfg.APIKey, opts...)

	f.mu.Lock()
	f.clients = append(f.clients, client)
	f.mu.Unlock()

	return &directorySession{
		client:     client,
		scorer:     match.New(f.cfg.MinConfidence),
		regions:    f.regions,
		radius:     f.cfg.BiasRadius,
		maxResults: f.cfg.MaxResults,
	}, nil
}

// Counts totals the wire requests of every session built so far, for
// cost reporting after a run.
func (f *DirectoryFactory) Counts() directory.Counts {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total directory.Counts
	for _, c := range f.clients {
		n := c.Counts()
		total.Search += n.Search
		total.Details += n.Details
	}
	return total
}

// directorySession resolves queries through one directory client. Each
// worker owns one, so nothing here needs locking.
type directorySession struct {
	client     directory.Client
	scorer     *match.Scorer
	regions    geo.Index
	radius     float64
	maxResults int
}

// Lookup searches for the query, scores the candidates and fetches
// details for the best one. A result below the confidence threshold is
// returned unusable with no error so the caller moves to its next
// strategy without burning a details call.
func (s *directorySession) Lookup(ctx context.Context, q Query) (*Result, error) {
	req, err := s.searchRequest(q)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.SearchText(ctx, req)
	if err != nil {
		return nil, err
	}

	best := s.scorer.Best(q.Name, q.Coords, resp.Places)
	if best == nil {
		return &Result{}, nil
	}

	details, err := s.client.Details(ctx, best.Candidate.ID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Confidence: best.Confidence,
		Enrichment: enrich.BuildRecord(details, best.Confidence),
	}, nil
}

func (s *directorySession) Close() error {
	return nil
}

// searchRequest maps a strategy query onto the wire request. Coordinate
// queries bias to a circle around the point; region-scoped queries
// restrict to the region's box when the region is configured.
func (s *directorySession) searchRequest(q Query) (directory.SearchRequest, error) {
	text := q.Text
	if text == "" {
		text = q.Name
	}
	if text == "" {
		return directory.SearchRequest{}, eris.Errorf("acquire: strategy %s has no query text", q.Strategy)
	}

	req := directory.SearchRequest{
		TextQuery:      text,
		MaxResultCount: s.maxResults,
	}

	region, hasRegion := s.regions.Lookup(q.Region)
	switch {
	case q.Coords != nil:
		req.LocationBias = &directory.LocationCircle{
			Circle: directory.Circle{
				Center: directory.LatLng{Latitude: q.Coords.Lat, Longitude: q.Coords.Lng},
				Radius: s.radius,
			},
		}
	case hasRegion:
		sw, ne := region.SW(), region.NE()
		req.LocationRestriction = &directory.LocationRect{
			Rectangle: directory.Rectangle{
				Low:  directory.LatLng{Latitude: sw.Lat, Longitude: sw.Lng},
				High: directory.LatLng{Latitude: ne.Lat, Longitude: ne.Lng},
			},
		}
	}
	return req, nil
}
