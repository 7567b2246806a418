// Package prompts loads the extraction prompt set and renders it for a
// record.
package prompts

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/judgment-cli/internal/model"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt is one task's instruction pair.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Data is the template input.
type Data struct {
	Text      string
	PartyName string
	Summary   string
}

// Set holds parsed templates keyed by task name.
type Set struct {
	prompts map[string]Prompt
	user    map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Load reads a prompt set from path. Tasks missing from the file fall back
// to the embedded prompts. An empty path returns Default.
func Load(path string) (*Set, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompts: read %s", path)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for name, p := range override.prompts {
		base.prompts[name] = p
		base.user[name] = override.user[name]
	}
	return base, nil
}

// Parse parses a YAML prompt document with a top-level "prompts" key.
func Parse(data []byte) (*Set, error) {
	var wrapper struct {
		Prompts map[string]Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "prompts: parse")
	}

	s := &Set{
		prompts: make(map[string]Prompt, len(wrapper.Prompts)),
		user:    make(map[string]*template.Template, len(wrapper.Prompts)),
	}
	for name, p := range wrapper.Prompts {
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, eris.Wrapf(err, "prompts: template %s", name)
		}
		s.prompts[name] = p
		s.user[name] = tmpl
	}
	return s, nil
}

// Render returns the system instruction and the rendered user instruction
// for task.
func (s *Set) Render(task string, data Data) (system, user string, err error) {
	p, ok := s.prompts[task]
	if !ok {
		return "", "", eris.Errorf("prompts: unknown task %q", task)
	}

	var buf bytes.Buffer
	err = s.user[task].Execute(&buf, struct {
		Data
		Areas []string
	}{Data: data, Areas: areaNames()})
	if err != nil {
		return "", "", eris.Wrapf(err, "prompts: render %s", task)
	}
	return strings.TrimSpace(p.System), strings.TrimSpace(buf.String()), nil
}

// Has reports whether the set defines task.
func (s *Set) Has(task string) bool {
	_, ok := s.prompts[task]
	return ok
}

func areaNames() []string {
	areas := model.AreasOfLaw()
	out := make([]string, len(areas))
	for i, a := range areas {
		out[i] = string(a)
	}
	return out
}
