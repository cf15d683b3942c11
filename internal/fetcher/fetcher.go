// Package fetcher downloads the external datasets safe-zone reads (hazard
// perimeters, neighbor rosters) and decodes the tabular formats they ship in.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download returns the resource body. The caller closes it.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)

	// DownloadToFile writes the resource to path and returns the bytes written.
	DownloadToFile(ctx context.Context, rawURL, path string) (int64, error)
}

// ConditionalFetcher can skip a download when the remote ETag is unchanged.
type ConditionalFetcher interface {
	// DownloadIfChanged returns (body, etag, changed). When changed is false
	// body is nil.
	DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error)
}

// Multi picks a fetcher by URL scheme: http and https go to HTTP, ftp to FTP,
// and file URLs or bare paths are opened from disk.
type Multi struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewMulti returns a Multi backed by the given fetchers.
func NewMulti(httpFetcher, ftpFetcher Fetcher) *Multi {
	return &Multi{HTTP: httpFetcher, FTP: ftpFetcher}
}

func (m *Multi) route(rawURL string) (Fetcher, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if m.HTTP == nil {
			return nil, "", eris.New("fetcher: no http fetcher configured")
		}
		return m.HTTP, "", nil
	case "ftp":
		if m.FTP == nil {
			return nil, "", eris.New("fetcher: no ftp fetcher configured")
		}
		return m.FTP, "", nil
	case "file":
		return nil, u.Path, nil
	case "":
		return nil, rawURL, nil
	default:
		return nil, "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download fetches rawURL with the fetcher for its scheme.
func (m *Multi) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, local, err := m.route(rawURL)
	if err != nil {
		return nil, err
	}
	if f != nil {
		return f.Download(ctx, rawURL)
	}
	file, err := os.Open(local)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", local)
	}
	return file, nil
}

// DownloadToFile fetches rawURL into path.
func (m *Multi) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := m.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return writeFile(body, path)
}

// DownloadIfChanged uses a conditional request when the routed fetcher
// supports one and falls back to a full download otherwise.
func (m *Multi) DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	f, _, err := m.route(rawURL)
	if err != nil {
		return nil, "", false, err
	}
	if cf, ok := f.(ConditionalFetcher); ok {
		return cf.DownloadIfChanged(ctx, rawURL, etag)
	}
	body, err := m.Download(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return body, "", true, nil
}

// writeFile copies r into path through a temporary sibling so a failed
// download never leaves a truncated file behind.
func writeFile(r io.Reader, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}

// SyncResult describes a Sync call.
type SyncResult struct {
	Path    string
	Changed bool
	Bytes   int64
	ETag    string
}

// Sync refreshes path from rawURL. The last ETag is kept next to the file in
// path+".etag"; when the remote reports it unchanged the file is left alone.
func (m *Multi) Sync(ctx context.Context, rawURL, path string) (SyncResult, error) {
	res := SyncResult{Path: path}
	etagPath := path + ".etag"

	var prev string
	if _, err := os.Stat(path); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			prev = strings.TrimSpace(string(b))
		}
	}

	body, etag, changed, err := m.DownloadIfChanged(ctx, rawURL, prev)
	if err != nil {
		return res, err
	}
	if !changed {
		res.ETag = prev
		return res, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeFile(body, path)
	if err != nil {
		return res, err
	}
	res.Changed, res.Bytes, res.ETag = true, n, etag

	if etag == "" {
		_ = os.Remove(etagPath)
		return res, nil
	}
	if err := os.WriteFile(etagPath, []byte(etag+"\n"), 0o644); err != nil {
		return res, eris.Wrap(err, "fetcher: write etag")
	}
	return res, nil
}
