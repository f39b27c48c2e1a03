package seed

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/model"
)

func (l *Loader) loadHTTP(ctx context.Context, rawURL string) ([]model.PlaceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "seed: build feed request")
	}
	req.Header.Set("User-Agent", l.userAgent)

	l.log.Debug("fetching feed", zap.String("url", rawURL))

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "seed: fetch feed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("seed: fetch feed: unexpected status %d", resp.StatusCode)
	}
	return l.parseRemote(ctx, req.URL.Path, resp.Body)
}

// loadFTP retrieves a feed from an FTP drop. Userinfo in the URL
// overrides the anonymous login.
func (l *Loader) loadFTP(ctx context.Context, u *url.URL) ([]model.PlaceRecord, error) {
	if u.Path == "" {
		return nil, eris.New("seed: empty path in ftp url")
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			pass = pw
		}
	}

	l.log.Debug("fetching feed over ftp",
		zap.String("host", host),
		zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(l.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "seed: ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrap(err, "seed: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: ftp retrieve")
	}
	defer func() { _ = resp.Close() }()

	return l.parseRemote(ctx, u.Path, resp)
}

// parseRemote parses a fetched feed body. Spreadsheets spill to a temp
// file first; the xlsx reader needs random access.
func (l *Loader) parseRemote(ctx context.Context, name string, body io.Reader) ([]model.PlaceRecord, error) {
	if feedExt(name) != ".xlsx" {
		return l.parseStream(ctx, name, body)
	}

	tmp, err := os.CreateTemp("", "placesync-feed-*.xlsx")
	if err != nil {
		return nil, eris.Wrap(err, "seed: temp feed file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return nil, eris.Wrap(err, "seed: buffer xlsx feed")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "seed: buffer xlsx feed")
	}
	return l.parseXLSX(ctx, tmp.Name())
}

func (l *Loader) parseStream(ctx context.Context, name string, r io.Reader) ([]model.PlaceRecord, error) {
	switch feedExt(name) {
	case ".csv":
		return l.parseCSV(ctx, r)
	case ".json":
		return l.parseJSON(ctx, r)
	default:
		return nil, eris.Errorf("seed: unsupported feed format %q", feedExt(name))
	}
}
