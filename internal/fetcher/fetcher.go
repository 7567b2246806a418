// Package fetcher downloads source documents over HTTP(S) and FTP.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Fetcher downloads a single document. Implementations make exactly one
// attempt; retries belong to the caller's retry policy.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// FetchError is returned for network failures, timeouts and non-2xx
// responses. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error

	transient bool
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying the fetch may succeed.
func (e *FetchError) Transient() bool { return e.transient }

func statusError(rawURL string, code int) *FetchError {
	return &FetchError{
		URL:        rawURL,
		StatusCode: code,
		transient:  resilience.IsTransientHTTPStatus(code),
	}
}

func transportError(ctx context.Context, rawURL string, err error) *FetchError {
	return &FetchError{
		URL:       rawURL,
		Err:       err,
		transient: ctx.Err() == nil && resilience.IsTransient(err),
	}
}

// Router sends each URL to the fetcher registered for its scheme.
type Router struct {
	http Fetcher
	ftp  Fetcher
}

// NewRouter returns a Router using httpF for http/https and ftpF for ftp.
func NewRouter(httpF, ftpF Fetcher) *Router {
	return &Router{http: httpF, ftp: ftpF}
}

func (r *Router) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.http != nil {
			return r.http, nil
		}
	case "ftp":
		if r.ftp != nil {
			return r.ftp, nil
		}
	}
	return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// copyToFile drains body into a new file at path.
func copyToFile(rawURL string, body io.ReadCloser, path string) (int64, error) {
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		// A connection dropped mid-body is worth another attempt.
		return n, &FetchError{URL: rawURL, Err: err, transient: true}
	}
	return n, nil
}
