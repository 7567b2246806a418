package extract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Task is one kind of extraction call: its prompt name, result schema,
// token budget and retry policy. A Task without a schema returns free text.
type Task struct {
	Name      string
	MaxTokens int
	Retry     resilience.Policy

	schema *jsonschema.Schema
}

// WithRetry returns a copy of t using p.
func (t Task) WithRetry(p resilience.Policy) Task {
	t.Retry = p
	return t
}

// decode validates raw against the task schema and unmarshals it into out.
func (t Task) decode(raw string, out any) error {
	cleaned := cleanJSON(raw)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &MalformedResultError{Task: t.Name, Raw: raw, Err: err}
	}
	if t.schema != nil {
		if err := t.schema.Validate(doc); err != nil {
			return &MalformedResultError{Task: t.Name, Raw: raw, Err: err}
		}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &MalformedResultError{Task: t.Name, Raw: raw, Err: err}
	}
	return nil
}

const judgesSchema = `{
  "type": "object",
  "properties": {"judges": {"type": ["string", "null"]}},
  "required": ["judges"],
  "additionalProperties": false
}`

const partiesSchema = `{
  "type": "object",
  "properties": {"party_name": {"type": ["string", "null"]}},
  "required": ["party_name"],
  "additionalProperties": false
}`

const classificationSchema = `{
  "type": "object",
  "properties": {"type": {"enum": ["Order", "Judgment", "Oral Judgment", "Null"]}},
  "required": ["type"],
  "additionalProperties": false
}`

// noveltySchema is built from the closed vocabularies in model. Each field
// may be missing or null.
func noveltySchema() string {
	scores := []any{nil}
	for _, s := range model.NoveltyScores() {
		scores = append(scores, string(s))
	}
	areas := []any{nil}
	for _, a := range model.AreasOfLaw() {
		areas = append(areas, string(a))
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{"enum": scores},
			"reasons": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "string"},
			},
			"area_of_law": map[string]any{"enum": areas},
		},
		"additionalProperties": false,
	}
	b, _ := json.Marshal(schema)
	return string(b)
}

func mustSchema(name, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString("mem://schemas/"+name+".json", schema)
}

// Built-in tasks. Their Retry is the package default until the caller sets
// the configured policy with WithRetry.
var (
	Judges = Task{
		Name:      string(model.StageJudges),
		MaxTokens: 512,
		Retry:     resilience.FixedBackoff(2, 2*time.Second),
		schema:    mustSchema("judges", judgesSchema),
	}
	Parties = Task{
		Name:      string(model.StageParties),
		MaxTokens: 512,
		Retry:     resilience.FixedBackoff(2, 2*time.Second),
		schema:    mustSchema("parties", partiesSchema),
	}
	Classification = Task{
		Name:      string(model.StageClassification),
		MaxTokens: 300,
		Retry:     resilience.ExponentialBackoff(3, 2*time.Second, 2*time.Second, 6*time.Second),
		schema:    mustSchema("classification", classificationSchema),
	}
	Rephrase = Task{
		Name:      string(model.StageRephrase),
		MaxTokens: 1024,
		Retry:     resilience.ExponentialBackoff(3, 2*time.Second, 2*time.Second, 6*time.Second),
	}
	Novelty = Task{
		Name:      string(model.StageNovelty),
		MaxTokens: 1024,
		Retry:     resilience.ExponentialBackoff(3, 2*time.Second, 2*time.Second, 6*time.Second),
		schema:    mustSchema("novelty", noveltySchema()),
	}
)
