package model

import "time"

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of the pipeline over a record file.
type Run struct {
	ID        string     `json:"id"`
	Input     string     `json:"input"`
	Output    string     `json:"output,omitempty"`
	Stages    []Stage    `json:"stages"`
	Status    RunStatus  `json:"status"`
	Stats     BatchStats `json:"stats"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BatchStats are the counters reported after a batch. Processed, Skipped and
// Failed always sum to Total. Dropped counts duplicates removed afterwards.
type BatchStats struct {
	Total      int   `json:"total"`
	Processed  int   `json:"processed"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Dropped    int   `json:"dropped"`
	DurationMs int64 `json:"duration_ms"`
}

// PageMode selects how a document page is materialized.
type PageMode string

const (
	PageModeText  PageMode = "text"
	PageModeImage PageMode = "image"
)

// PageContent is one page of a fetched document. Number is 1-based.
type PageContent struct {
	Number    int
	Text      string
	Image     []byte
	MediaType string
}
