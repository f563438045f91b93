package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/config"
	"github.com/flowctl/agentrt/session"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "ANTHROPIC_API_KEY=sk-test-123\n")
	writeFile(t, dir, "triage.js", "function* handleSteps() { yield 'end_turn'; }")
	yamlPath := writeFile(t, dir, "agents.yaml", `
agents:
  - id: support.triage
    model: claude-sonnet
    system_prompt: "You triage support tickets."
    tools: [search_docs, escalate]
    handle_steps_file: triage.js
  - id: support.native
    model: claude-sonnet
    system_prompt: "Native handler agent."
    tools: []
    native_handler: nativeSupportHandler
providers:
  - name: anthropic
    api_key: "${ANTHROPIC_API_KEY}"
    default_model: claude-sonnet-4-20250514
`)

	native := map[string]any{"nativeSupportHandler": func() {}}
	cfg, err := config.Load(filepath.Join(dir, ".env"), yamlPath, native)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)

	triage, ok := cfg.Template("support.triage")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet", triage.Model)
	assert.Len(t, triage.ToolNames, 2)
	require.NotNil(t, triage.HandleSteps)
	assert.Equal(t, session.HandleStepsSandboxed, triage.HandleSteps.Kind)
	assert.Contains(t, triage.HandleSteps.Source, "handleSteps")

	nativeTmpl, ok := cfg.Template("support.native")
	require.True(t, ok)
	require.NotNil(t, nativeTmpl.HandleSteps)
	assert.Equal(t, session.HandleStepsNative, nativeTmpl.HandleSteps.Kind)
	assert.NotNil(t, nativeTmpl.HandleSteps.Native)

	provider, ok := cfg.Provider("anthropic")
	require.True(t, ok)
	assert.Equal(t, "sk-test-123", os.Getenv("ANTHROPIC_API_KEY"))
	assert.Equal(t, "sk-test-123", config.ExpandEnv(provider.APIKey))
}

func TestLoadMissingEnvFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "agents.yaml", `
agents:
  - id: solo
    model: gpt-5
    tools: []
    handle_steps_source: "function* handleSteps() {}"
`)

	cfg, err := config.Load(filepath.Join(dir, ".env"), yamlPath, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 1)
}

func TestLoadRejectsAmbiguousHandleStepsSource(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "agents.yaml", `
agents:
  - id: bad
    model: gpt-5
    tools: []
    handle_steps_source: "function* x() {}"
    native_handler: alsoSet
`)

	_, err := config.Load("", yamlPath, map[string]any{"alsoSet": struct{}{}})
	require.Error(t, err)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "agents.yaml", `
agents:
  - id: dup
    model: gpt-5
    tools: []
    handle_steps_source: "function* x() {}"
  - id: dup
    model: gpt-5
    tools: []
    handle_steps_source: "function* y() {}"
`)

	_, err := config.Load("", yamlPath, nil)
	require.Error(t, err)
}
