package resilience

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/judgment-cli/internal/model"
)

// DeadLetter is a record whose enrichment left at least one stage failed.
// It is kept so the record can be resubmitted with only those stages.
type DeadLetter struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	Record    model.CaseRecord `json:"record"`
	Stages    []model.Stage    `json:"stages"`
	Error     string           `json:"error"`
	ErrorType string           `json:"error_type"` // "transient" or "permanent"
	CreatedAt time.Time        `json:"created_at"`
}

// DeadLetterFilter narrows a dead-letter listing.
type DeadLetterFilter struct {
	RunID string
	Limit int
}

// NewDeadLetter builds a dead letter from a record's stage errors. It
// returns nil when the record has none. cause, when known, decides the
// error type.
func NewDeadLetter(runID string, rec model.CaseRecord, cause error) *DeadLetter {
	if !rec.Failed() {
		return nil
	}

	stages := make([]model.Stage, 0, len(rec.EnrichmentErrors))
	for s := range rec.EnrichmentErrors {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	msgs := make([]string, 0, len(stages))
	for _, s := range stages {
		msgs = append(msgs, string(s)+": "+rec.EnrichmentErrors[s])
	}

	errType := "permanent"
	if cause != nil {
		errType = ClassifyError(cause)
	}

	return &DeadLetter{
		ID:        uuid.New().String(),
		RunID:     runID,
		Record:    rec,
		Stages:    stages,
		Error:     strings.Join(msgs, "; "),
		ErrorType: errType,
		CreatedAt: time.Now().UTC(),
	}
}
