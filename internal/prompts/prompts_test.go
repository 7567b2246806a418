package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasEveryTask(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	for _, task := range []string{"judges", "parties", "classification", "rephrase", "novelty"} {
		assert.True(t, s.Has(task), task)
	}
}

func TestRender_InsertsDocumentText(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	system, user, err := s.Render("parties", Data{Text: "PETITION NO. 12/MP/2024 NTPC LIMITED ... PETITIONER"})
	require.NoError(t, err)
	assert.Contains(t, system, "AND ORS.")
	assert.Contains(t, user, "PETITION NO. 12/MP/2024 NTPC LIMITED")
}

func TestRender_NoveltyListsAreas(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	_, user, err := s.Render("novelty", Data{PartyName: "A VS B", Summary: "Tariff dispute."})
	require.NoError(t, err)
	assert.Contains(t, user, "Administrative Law, Arbitration Law")
	assert.Contains(t, user, "A VS B\n\nTariff dispute.")
}

func TestRender_UnknownTask(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	_, _, err = s.Render("headnotes", Data{})
	assert.ErrorContains(t, err, `unknown task "headnotes"`)
}

func TestLoad_OverridesSingleTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  judges:
    system: "Only judges."
    user: "Find judges in: {{.Text}}"
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	system, user, err := s.Render("judges", Data{Text: "CORAM: Justice X"})
	require.NoError(t, err)
	assert.Equal(t, "Only judges.", system)
	assert.Equal(t, "Find judges in: CORAM: Justice X", user)
	assert.True(t, s.Has("parties"))
}

func TestParse_BadTemplate(t *testing.T) {
	_, err := Parse([]byte("prompts:\n  judges:\n    user: \"{{.Text\"\n"))
	assert.ErrorContains(t, err, "prompts: template judges")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
