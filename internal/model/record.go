// Package model defines the case record and the closed vocabularies shared by
// every enrichment stage.
package model

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// SerialNumber is the scraper's row identifier. Sources emit it as either a
// JSON string or a number; it is always written back as a string.
type SerialNumber string

// UnmarshalJSON accepts a string or a bare number.
func (s *SerialNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = SerialNumber(v)
		return nil
	}
	*s = SerialNumber(b)
	return nil
}

// Reasons is the ordered list of novelty reasons. Older outputs stored the
// reasons joined into one string, which is read back as a single element.
type Reasons []string

// UnmarshalJSON accepts a string array or a single string.
func (r *Reasons) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v == "" {
			*r = nil
			return nil
		}
		*r = Reasons{v}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// CaseRecord is one judgment listing and everything the pipeline learns about it.
type CaseRecord struct {
	SerialNumber     SerialNumber     `json:"serial_number,omitempty"`
	DocumentLink     string           `json:"pdf_link,omitempty"`
	CaseName         *string          `json:"case_name,omitempty"`
	PartyName        *string          `json:"party_name,omitempty"`
	Judges           *string          `json:"judges,omitempty"`
	DateOfDecision   *string          `json:"date_of_decision,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Classification   Classification   `json:"type,omitempty"`
	Summary          *string          `json:"summary,omitempty"`
	RephrasedSummary *string          `json:"new_summary,omitempty"`
	SummaryID        string           `json:"id,omitempty"`
	AreaOfLaw        *AreaOfLaw       `json:"area_of_law,omitempty"`
	NoveltyScore     *NoveltyScore    `json:"score,omitempty"`
	NoveltyReasons   Reasons          `json:"reasons,omitempty"`
	EnrichmentErrors map[Stage]string `json:"enrichment_errors,omitempty"`

	// Extra holds scraped columns the pipeline does not interpret
	// (petition_number, subject, hearing_date, ...). They are written back
	// unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// caseRecordFields has CaseRecord's layout without its JSON methods.
type caseRecordFields CaseRecord

// keyAliases maps alternate scraper keys onto the canonical key.
var keyAliases = map[string]string{
	"s_no":          "serial_number",
	"date_of_order": "date_of_decision",
	"date":          "date_of_decision",
}

var recordKeys = map[string]bool{
	"serial_number":     true,
	"pdf_link":          true,
	"case_name":         true,
	"party_name":        true,
	"judges":            true,
	"date_of_decision":  true,
	"category":          true,
	"type":              true,
	"summary":           true,
	"new_summary":       true,
	"id":                true,
	"area_of_law":       true,
	"score":             true,
	"reasons":           true,
	"enrichment_errors": true,
}

// UnmarshalJSON decodes known keys into fields, folds alias keys onto their
// canonical names and keeps everything else in Extra.
func (r *CaseRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "model: decode case record")
	}

	for alias, canonical := range keyAliases {
		v, ok := raw[alias]
		if !ok {
			continue
		}
		if _, exists := raw[canonical]; !exists {
			raw[canonical] = v
		}
		delete(raw, alias)
	}

	known := make(map[string]json.RawMessage, len(raw))
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if recordKeys[k] {
			known[k] = v
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}

	canon, err := json.Marshal(known)
	if err != nil {
		return eris.Wrap(err, "model: re-encode known keys")
	}
	var f caseRecordFields
	if err := json.Unmarshal(canon, &f); err != nil {
		return eris.Wrap(err, "model: decode case record fields")
	}
	f.Extra = extra
	*r = CaseRecord(f)
	return nil
}

// MarshalJSON writes the record's fields merged with Extra. HTML characters
// are not escaped.
func (r CaseRecord) MarshalJSON() ([]byte, error) {
	fields, err := encodeNoEscape(caseRecordFields(r))
	if err != nil {
		return nil, eris.Wrap(err, "model: encode case record")
	}
	if len(r.Extra) == 0 {
		return fields, nil
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+len(recordKeys))
	for k, v := range r.Extra {
		merged[k] = v
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(fields, &own); err != nil {
		return nil, eris.Wrap(err, "model: merge extra keys")
	}
	for k, v := range own {
		merged[k] = v
	}
	return encodeNoEscape(merged)
}

func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HasDocument reports whether the record carries a usable document link.
// Empty links, "N/A" placeholders and links without an http(s) or ftp host
// are not usable.
func (r *CaseRecord) HasDocument() bool {
	link := strings.TrimSpace(r.DocumentLink)
	if link == "" || strings.Contains(strings.ToUpper(link), "N/A") {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	default:
		return false
	}
}

// DedupKey returns the natural key used by deduplication. ok is false when
// the record has no party name.
func (r *CaseRecord) DedupKey() (key string, ok bool) {
	if r.PartyName == nil {
		return "", false
	}
	return *r.PartyName, true
}

// SetStageError records a failed stage's error placeholder.
func (r *CaseRecord) SetStageError(stage Stage, err error) {
	if err == nil {
		return
	}
	if r.EnrichmentErrors == nil {
		r.EnrichmentErrors = make(map[Stage]string)
	}
	r.EnrichmentErrors[stage] = err.Error()
}

// ClearStageError removes a stage's placeholder after a successful rerun.
func (r *CaseRecord) ClearStageError(stage Stage) {
	delete(r.EnrichmentErrors, stage)
	if len(r.EnrichmentErrors) == 0 {
		r.EnrichmentErrors = nil
	}
}

// Failed reports whether any stage left an error placeholder.
func (r *CaseRecord) Failed() bool {
	return len(r.EnrichmentErrors) > 0
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
