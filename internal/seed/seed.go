// Package seed loads curated place feeds into PlaceRecords. Feeds come
// from the content team as CSV, JSON or XLSX files, dropped locally or
// on an HTTP or FTP host.
package seed

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/islandways/placesync/internal/model"
)

// DefaultTimeout bounds both HTTP and FTP feed fetches.
const DefaultTimeout = 30 * time.Second

const defaultUserAgent = "placesync/1.0"

// Loader fetches and parses one feed per call. Safe for concurrent use.
type Loader struct {
	http       *http.Client
	userAgent  string
	ftpTimeout time.Duration
	log        *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for http and https feeds.
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Loader) {
		l.http = hc
	}
}

// WithUserAgent overrides the User-Agent sent to feed hosts.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		l.userAgent = ua
	}
}

// WithFTPTimeout overrides the dial timeout for ftp feeds.
func WithFTPTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.ftpTimeout = d
	}
}

// WithLogger overrides the global logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		http:       &http.Client{Timeout: DefaultTimeout},
		userAgent:  defaultUserAgent,
		ftpTimeout: DefaultTimeout,
		log:        zap.L(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and parses the feed at source. The scheme picks the
// transport (bare paths and file:// read locally) and the extension
// picks the parser (.csv, .json, .xlsx).
func (l *Loader) Load(ctx context.Context, source string) ([]model.PlaceRecord, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: parse source %s", source)
	}

	switch u.Scheme {
	case "", "file":
		path := source
		if u.Scheme == "file" {
			path = u.Path
		}
		return l.loadFile(ctx, path)
	case "http", "https":
		return l.loadHTTP(ctx, source)
	case "ftp":
		return l.loadFTP(ctx, u)
	default:
		return nil, eris.Errorf("seed: unsupported scheme %q", u.Scheme)
	}
}

func (l *Loader) loadFile(ctx context.Context, path string) ([]model.PlaceRecord, error) {
	if feedExt(path) == ".xlsx" {
		return l.parseXLSX(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: open feed")
	}
	defer func() { _ = f.Close() }()
	return l.parseStream(ctx, path, f)
}

// validate applies the shared feed rules: a record needs a name, gets a
// slug id when the feed has none, and loses coordinates that cannot be
// real. The zero pair is the feeds' "missing" filler, dropped silently.
func (l *Loader) validate(rec model.PlaceRecord) (model.PlaceRecord, bool) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		l.log.Warn("feed record without name skipped", zap.String("id", rec.ID))
		return rec, false
	}
	if rec.ID == "" {
		rec.ID = Slug(rec.Name)
	}
	if c := rec.Coordinates; c != nil {
		switch {
		case c.Lat == 0 && c.Lng == 0:
			rec.Coordinates = nil
		case !c.Valid():
			l.log.Warn("feed coordinates out of range, dropped",
				zap.String("id", rec.ID),
				zap.Float64("lat", c.Lat),
				zap.Float64("lng", c.Lng))
			rec.Coordinates = nil
		}
	}
	return rec, true
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug derives a stable record id from a display name. Diacritics fold
// to ASCII so "Piñones" and "Pinones" land on the same id.
func Slug(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func feedExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
