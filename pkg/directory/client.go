// Package directory provides the place-directory API client. All outbound
// traffic goes through this one client so the rate gate, retry budget and
// request counters cover every call.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://places.googleapis.com/v1"
	defaultRPS        = 10
	defaultMaxRetries = 4

	// APIVersion tags enrichment records with the directory schema they
	// were fetched under.
	APIVersion = "places-v1"

	searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.types,places.rating,places.userRatingCount,nextPageToken"

	detailsFieldMask = "id,displayName,formattedAddress,nationalPhoneNumber," +
		"internationalPhoneNumber,websiteUri,rating,userRatingCount,location," +
		"businessStatus,priceLevel,regularOpeningHours,photos,types,takeout," +
		"delivery,dineIn,outdoorSeating,reservable,servesVegetarianFood"
)

// defaultBackoff is the wait schedule between attempts, indexed by how many
// attempts have already failed. Attempts beyond the table reuse the last
// entry.
var defaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Client performs place-directory API operations.
type Client interface {
	// SearchText runs a free-text search for candidate places.
	SearchText(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// Details fetches the full attribute set for a place.
	Details(ctx context.Context, placeID string) (*PlaceDetails, error)

	// Counts reports how many wire requests have been sent so far.
	Counts() Counts
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second budget. Burst stays at 1 so
// the limiter acts as a minimum interval between wire requests.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxRetries sets the total attempt budget for 429s and transport
// failures.
func WithMaxRetries(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffSchedule overrides the wait schedule between attempts.
func WithBackoffSchedule(schedule []time.Duration) Option {
	return func(c *httpClient) {
		if len(schedule) > 0 {
			c.backoff = schedule
		}
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    []time.Duration

	searchCount  atomic.Int64
	detailsCount atomic.Int64
}

// NewClient creates a directory API client. Retries pass through the rate
// gate like any other request.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRPS), 1),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchText(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "directory: marshal search request")
	}

	respBody, err := c.do(ctx, &c.searchCount, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "directory: create search request")
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("X-Goog-Api-Key", c.apiKey)
		r.Header.Set("X-Goog-FieldMask", searchFieldMask)
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "directory: unmarshal search response")
	}

	return &result, nil
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if placeID == "" {
		return nil, eris.New("directory: place id required")
	}

	path := placeID
	if !strings.HasPrefix(path, "places/") {
		path = "places/" + path
	}

	respBody, err := c.do(ctx, &c.detailsCount, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "directory: create details request")
		}
		r.Header.Set("X-Goog-Api-Key", c.apiKey)
		r.Header.Set("X-Goog-FieldMask", detailsFieldMask)
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	var result PlaceDetails
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "directory: unmarshal details response")
	}

	return &result, nil
}

func (c *httpClient) Counts() Counts {
	return Counts{
		Search:  c.searchCount.Load(),
		Details: c.detailsCount.Load(),
	}
}

// do sends a request under the rate gate and retry budget. Only 429
// responses and transport failures are retried; any other non-2xx status
// fails immediately with an APIError.
func (c *httpClient) do(ctx context.Context, counter *atomic.Int64, build func() (*http.Request, error)) ([]byte, error) {
	var (
		lastErr     error
		rateLimited bool
	)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				return nil, eris.Wrap(err, "directory: backoff interrupted")
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "directory: rate gate wait")
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		counter.Add(1)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "directory: request canceled")
			}
			lastErr = err
			rateLimited = false
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			rateLimited = false
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = eris.Errorf("directory: status 429: %s", string(body))
			rateLimited = true
		default:
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
	}

	if rateLimited {
		return nil, &RateLimitError{Attempts: c.maxRetries}
	}
	return nil, &NetworkError{Err: lastErr, Attempts: c.maxRetries}
}

// wait sleeps out the backoff entry for the given failed-attempt index.
func (c *httpClient) wait(ctx context.Context, idx int) error {
	if len(c.backoff) == 0 {
		return nil
	}
	if idx >= len(c.backoff) {
		idx = len(c.backoff) - 1
	}

	t := time.NewTimer(c.backoff[idx])
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
