// Package summarizer is a client for the judgment summary service, which
// takes a PDF URL and returns a generated summary.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Client defines the summary service operations.
type Client interface {
	// Summarize asks the service to summarize the PDF at pdfURL. It makes a
	// single attempt.
	Summarize(ctx context.Context, pdfURL string) (*Result, error)
}

// Result is the service's answer. Found is false when the response carried
// no summary. NewURL is the service's canonical link for the document, or
// empty when it did not send one.
type Result struct {
	Summary string
	ID      string
	NewURL  string
	Found   bool
}

type summarizeRequest struct {
	PDFURL string `json:"pdf_url"`
}

type summarizeResponse struct {
	Summary *string `json:"summary"`
	ID      *string `json:"id"`
	NewURL  *string `json:"new_url"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Default: 50s.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a summary service client posting to endpoint.
func NewClient(endpoint string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 50 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Summarize(ctx context.Context, pdfURL string) (*Result, error) {
	body, err := json.Marshal(summarizeRequest{PDFURL: pdfURL})
	if err != nil {
		return nil, eris.Wrap(err, "summarizer: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "summarizer: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "summarizer: request cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "summarizer: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "summarizer: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("summarizer: status %d: %s", resp.StatusCode, truncate(respBody, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed summarizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, eris.Wrap(err, "summarizer: decode response")
	}

	out := &Result{}
	if parsed.Summary != nil {
		out.Summary = *parsed.Summary
		out.Found = true
	}
	if parsed.ID != nil {
		out.ID = *parsed.ID
	}
	if parsed.NewURL != nil {
		out.NewURL = *parsed.NewURL
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
