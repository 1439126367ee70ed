package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/config"
	"github.com/roach88/noderepo/internal/ir"
)

const passingScenario = `name: created
description: Creating a content node fires OnCreateNode.
behaviours:
  - {id: seen, policy: OnCreateNode, class: cm:content}
steps:
  - {op: create_node, parent: root, type: cm:content, as: doc}
assertions:
  - {type: exists, node: doc}
  - {type: fired, behaviour: seen, node: doc}
`

const failingScenario = `name: wrong
description: Asserts the opposite of what happens.
steps:
  - {op: create_node, parent: root, type: cm:content, as: doc}
assertions:
  - {type: not_exists, node: doc}
`

func testResult(t *testing.T, out string) (string, TestResult) {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Status, resp.Data
}

func TestTestCommand_Args(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_CommandErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing dir", []string{"/nonexistent/scenarios"}, "scenarios directory not found"},
		{"bad filter", []string{dir, "--filter", "[a-"}, "invalid filter pattern"},
		{"bad parallel", []string{dir, "--parallel", "0"}, "--parallel must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_GoldenLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "created.yaml"), passingScenario)
	goldenPath := filepath.Join(dir, "golden", "created.golden")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ created")
	assert.NoFileExists(t, goldenPath)

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ created (golden updated)")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t, "OnCreateNode seen doc\n", string(data))

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)
	status, result := testResult(t, out)
	assert.Equal(t, "ok", status)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)
	assert.Equal(t, 1, result.Invocations)

	writeFile(t, goldenPath, "OnCreateNode seen other\n")
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "created.yaml"), passingScenario)
	writeFile(t, filepath.Join(dir, "wrong.yaml"), failingScenario)
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: [\n")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir, "--parallel", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, result := testResult(t, out)
	assert.Equal(t, "error", status)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)

	// Results keep file order regardless of completion order.
	require.Len(t, result.Scenarios, 3)
	assert.Equal(t, "broken.yaml", result.Scenarios[0].File)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "created", result.Scenarios[1].Name)
	assert.True(t, result.Scenarios[1].Pass)
	assert.Equal(t, "wrong", result.Scenarios[2].Name)
	assert.False(t, result.Scenarios[2].Pass)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "archive", "one.yaml"), passingScenario)
	writeFile(t, filepath.Join(dir, "move", "two.yml"), failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir, "--filter", "archive/**")
	require.NoError(t, err)
	_, result := testResult(t, out)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, filepath.Join("archive", "one.yaml"), result.Scenarios[0].File)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "nested/c.yaml", "golden/x.yaml", "notes.txt"} {
		writeFile(t, filepath.Join(dir, name), "name: x\n")
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{"a.yml", "b.yaml", "nested/c.yaml"}, rel)

	files, err = findScenarioFiles(dir, "*")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestTestCommand_ConfigDefaults(t *testing.T) {
	t.Run("excluded store", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "quiet.yaml"), `name: quiet
description: Behaviours of an excluded store never fire.
behaviours:
  - {id: seen, policy: OnCreateNode, class: cm:content}
steps:
  - {op: create_node, parent: root, type: cm:content, as: doc}
assertions:
  - {type: exists, node: doc}
  - {type: not_fired, behaviour: seen}
`)
		cfgPath := filepath.Join(t.TempDir(), "noderepo.toml")
		writeFile(t, cfgPath, "[dispatch]\nexcluded_stores = ['workspace://main']\n")

		out, err := execute(t, NewRootCommand(), "--config", cfgPath, "--format", "json", "test", dir)
		require.NoError(t, err)
		status, result := testResult(t, out)
		assert.Equal(t, "ok", status)
		assert.Equal(t, 1, result.Passed)
		assert.Zero(t, result.Invocations)

		out, err = execute(t, NewRootCommand(), "--format", "json", "test", dir)
		require.Error(t, err)
		_, result = testResult(t, out)
		assert.Equal(t, 1, result.Failed, "without the config the behaviour fires")
	})

	t.Run("default locale", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "titles.yaml"), `name: titles
description: Localized reads fall back to the configured locale.
steps:
  - op: create_node
    parent: root
    type: cm:content
    as: doc
    properties: {cm:title: {en: Report, fr: Rapport}}
assertions:
  - {type: localized_property, node: doc, property: cm:title, value: Rapport}
`)
		cfgPath := filepath.Join(t.TempDir(), "noderepo.toml")
		writeFile(t, cfgPath, "[locale]\ndefault = 'fr'\n")

		out, err := execute(t, NewRootCommand(), "--config", cfgPath, "test", dir)
		require.NoError(t, err, out)
		assert.Contains(t, out, "✓ titles")
	})
}

func TestHarnessDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.ExcludedStores = []string{"system://system"}
	cfg.Archive = []config.ArchiveConfig{{Store: "workspace://main", Archive: "archive://main"}}

	d, err := harnessDefaults(cfg)
	require.NoError(t, err)
	assert.Equal(t, []ir.StoreRef{ir.NewStoreRef("system", "system")}, d.ExcludedStores)
	assert.Equal(t, "cm:versionable", d.VersionableAspect)
	assert.Equal(t, 64, d.MaxDepth)
	assert.Equal(t, language.English, d.Locale)
	assert.Len(t, d.Archives, 1)

	_, err = harnessDefaults(config.Config{})
	assert.NoError(t, err, "an empty config keeps the harness defaults")

	cfg.Dispatch.ExcludedStores = []string{"nope"}
	_, err = harnessDefaults(cfg)
	assert.Error(t, err)
}
