package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/judgment-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:         "test-agent",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 100,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/order.pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("judgment bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	n, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL+"/doc.pdf", path)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "judgment bytes", string(data))
}

func TestDownload_SingleAttemptOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.True(t, resilience.IsTransient(err))
}

func TestDownload_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestDownload_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 50 * time.Millisecond, RequestsPerSecond: 100})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
	assert.True(t, fe.Transient())
}

func TestDownload_CancelledContextIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher().Download(ctx, srv.URL)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestDownload_RateLimitedSlowsHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	lim := f.limiterFor(srv.Listener.Addr().String())
	assert.Equal(t, rate.Limit(50), lim.Limit())
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for i := 0; i < 20; i++ {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), a.Limit())

	for i := 0; i < 20; i++ {
		a.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), a.Limit())
}

type stubFetcher struct{ name string }

func (s stubFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(nil), errors.New(s.name)
}

func (s stubFetcher) DownloadToFile(context.Context, string, string) (int64, error) {
	return 0, errors.New(s.name)
}

func TestRouter(t *testing.T) {
	r := NewRouter(stubFetcher{"http"}, stubFetcher{"ftp"})

	_, err := r.Download(context.Background(), "https://example.org/a.pdf")
	assert.EqualError(t, err, "http")

	_, err = r.DownloadToFile(context.Background(), "ftp://files.example.org/a.pdf", "x")
	assert.EqualError(t, err, "ftp")

	_, err = r.Download(context.Background(), "gopher://example.org/a")
	assert.ErrorContains(t, err, "unsupported scheme")

	_, err = NewRouter(stubFetcher{"http"}, nil).Download(context.Background(), "ftp://x/a.pdf")
	assert.ErrorContains(t, err, "unsupported scheme")
}
