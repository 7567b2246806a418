package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/judgment-cli/internal/resilience"
)

func TestSummarize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cercind.gov.in/2024/orders/12.pdf", req["pdf_url"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"The petition seeks approval of tariff.","id":"sum-81","new_url":"https://cdn.example.org/12.pdf"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Summarize(context.Background(), "https://cercind.gov.in/2024/orders/12.pdf")
	require.NoError(t, err)
	assert.Equal(t, &Result{
		Summary: "The petition seeks approval of tariff.",
		ID:      "sum-81",
		NewURL:  "https://cdn.example.org/12.pdf",
		Found:   true,
	}, res)
}

func TestSummarize_NoSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":"sum-9"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Summarize(context.Background(), "https://example.org/a.pdf")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, "sum-9", res.ID)
	assert.Empty(t, res.NewURL)
}

func TestSummarize_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Summarize(context.Background(), "https://example.org/a.pdf")
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestSummarize_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"summary":"late"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond)).Summarize(context.Background(), "https://example.org/a.pdf")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSummarize_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Summarize(context.Background(), "https://example.org/a.pdf")
	assert.ErrorContains(t, err, "summarizer: decode response")
}
