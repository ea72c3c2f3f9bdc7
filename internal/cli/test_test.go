package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericnething/roll2d6-client/internal/harness"
)

const authFailedScenario = `name: auth-failed
description: A rejected login surfaces a single auth-failed signal.
flow:
  - op: remote_fail
    status: 401
  - op: load
  - op: expect_signal
    signal: auth-failed
assertions:
  - type: trace_count
    name: auth-failed
    count: 1
`

const authFailedGolden = `{"game_id":"game_harness","scenario_name":"auth-failed","trace":[{"data":{"status":401},"name":"remote_fail","seq":1,"type":"step"},{"data":{"outcome":"auth-failed"},"name":"load","seq":2,"type":"step"},{"data":{"id":"game_harness"},"name":"auth-failed","seq":3,"type":"signal"}]}`

const failingScenario = `name: never-loaded
description: Expects a load that the server refuses.
flow:
  - op: remote_fail
    status: 401
  - op: load
assertions:
  - type: trace_count
    name: game-loaded
    count: 1
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := executeTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "auth-failed.yaml", authFailedScenario)

	out, err := executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ auth-failed")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "never-loaded.yaml", failingScenario)

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ never-loaded")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "never-loaded.yaml", failingScenario)

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrCodeScenarioFailed, response.Error.Code)
	require.Len(t, response.Data.Scenarios, 1)
	assert.False(t, response.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, response.Data.Scenarios[0].Errors)
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nflow:\n  - op: dance\n")

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandScenarioWithoutDescription(t *testing.T) {
	dir := t.TempDir()
	undescribed := strings.Replace(authFailedScenario, "description: A rejected login surfaces a single auth-failed signal.\n", "", 1)
	require.NotEqual(t, authFailedScenario, undescribed)
	writeScenario(t, dir, "auth-failed.yaml", undescribed)

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ auth-failed.yaml")
	assert.Contains(t, out, "description is required")
}

func TestTestCommandFixturesParse(t *testing.T) {
	for name, content := range map[string]string{
		"auth-failed":  authFailedScenario,
		"never-loaded": failingScenario,
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := harness.ParseScenario([]byte(content))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)
		})
	}
}

func TestTestCommandGoldenMatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "auth-failed.yaml", authFailedScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "auth-failed.golden"), []byte(authFailedGolden), 0644))

	out, err := executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ auth-failed")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "auth-failed.yaml", authFailedScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "auth-failed.golden"), []byte(`{"trace":[]}`), 0644))

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "auth-failed.yaml", authFailedScenario)

	out, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "auth-failed.golden"))
	require.NoError(t, err)
	assert.Equal(t, authFailedGolden, string(golden))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "live-changes.yaml", authFailedScenario)
	writeScenario(t, dir, "live-deletes.yml", authFailedScenario)
	writeScenario(t, dir, "auth.yaml", authFailedScenario)
	writeScenario(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	writeScenario(t, filepath.Join(dir, "golden"), "stray.yaml", authFailedScenario)

	all, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	live, err := findScenarioFiles(dir, "live-*")
	require.NoError(t, err)
	assert.Len(t, live, 2)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "live.golden"),
		goldenFilePath(filepath.Join("scenarios", "live.yaml")))
}
