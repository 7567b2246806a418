// Package export publishes enriched records outside the JSON pipeline: as
// an XLSX workbook or as pages in a Notion database.
package export

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/judgment-cli/internal/model"
)

// column is one exported field.
type column struct {
	Header string
	Value  func(r *model.CaseRecord) string
}

func str(p *string) string { return strings.TrimSpace(model.Deref(p)) }

// columns lists the exported fields in sheet order.
var columns = []column{
	{"Serial Number", func(r *model.CaseRecord) string { return string(r.SerialNumber) }},
	{"Case Name", func(r *model.CaseRecord) string { return str(r.CaseName) }},
	{"Party Name", func(r *model.CaseRecord) string { return str(r.PartyName) }},
	{"Judges", func(r *model.CaseRecord) string { return str(r.Judges) }},
	{"Date of Decision", func(r *model.CaseRecord) string { return str(r.DateOfDecision) }},
	{"Category", func(r *model.CaseRecord) string { return str(r.Category) }},
	{"Type", func(r *model.CaseRecord) string { return string(r.Classification) }},
	{"PDF Link", func(r *model.CaseRecord) string { return r.DocumentLink }},
	{"Summary", func(r *model.CaseRecord) string { return str(r.Summary) }},
	{"Rephrased Summary", func(r *model.CaseRecord) string { return str(r.RephrasedSummary) }},
	{"Area of Law", func(r *model.CaseRecord) string { return string(model.Deref(r.AreaOfLaw)) }},
	{"Novelty", func(r *model.CaseRecord) string { return string(model.Deref(r.NoveltyScore)) }},
	{"Reasons", func(r *model.CaseRecord) string { return strings.Join(r.NoveltyReasons, "\n") }},
	{"Errors", stageErrors},
}

// stageErrors renders enrichment errors as "stage: message" lines in stage
// order.
func stageErrors(r *model.CaseRecord) string {
	if len(r.EnrichmentErrors) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.EnrichmentErrors))
	for stage, msg := range r.EnrichmentErrors {
		lines = append(lines, fmt.Sprintf("%s: %s", stage, msg))
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

// extraKeys returns the union of the records' uninterpreted keys, sorted.
func extraKeys(records []model.CaseRecord) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range records {
		for k := range r.Extra {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// extraValue renders a raw JSON value: strings unquoted, null empty,
// anything else as its JSON text.
func extraValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
