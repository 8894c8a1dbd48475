package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"companion/internal/config"
	"companion/internal/logging"
	"companion/internal/pipeline"
	"companion/internal/session"
	"companion/internal/store"
	"companion/internal/types"
	"companion/internal/usage"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTest points the CLI at a fresh data directory and loads defaults.
func setupTest(t *testing.T) {
	t.Helper()
	for _, key := range []string{"COMPANION_DB", "COMPANION_CATALOG", "COMPANION_REGION", "COMPANION_DEBUG", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
	logger = zap.NewNop()
	dataDir = t.TempDir()
	configPath = ""
	verbose = false
	require.NoError(t, setup())
	t.Cleanup(func() {
		cfg = nil
		triageJSON, triageRegion = false, ""
		replayBuiltin, replayJSON, replayWorkers = false, false, 0
		sessionsJSON, sessionsLimit = false, 20
		catalogJSON, catalogOut, catalogForce = false, "", false
		configForce = false
		usageJSON = false
	})
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "one two three", joinArgs([]string{"one", "two", "three"}))
	assert.Equal(t, "", joinArgs(nil))
}

func TestTriageCommand(t *testing.T) {
	setupTest(t)
	cmd, buf := newTestCommand()

	require.NoError(t, runTriage(cmd, []string{"I", "just", "want", "to", "die"}))
	out := buf.String()
	assert.Contains(t, out, "suicide_active")
	assert.Contains(t, out, "988")
	assert.Contains(t, out, "Are you safe right now?")
}

func TestTriageCommandJSON(t *testing.T) {
	setupTest(t)
	triageJSON = true
	triageRegion = "gb"
	cmd, buf := newTestCommand()

	require.NoError(t, runTriage(cmd, []string{"I just want to die"}))
	var out pipeline.Output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, types.CategorySuicideActive, out.Analysis.Category)
	assert.Equal(t, "GB", out.Region)
	assert.Contains(t, out.ResponseTemplate, "116 123")
}

func TestChatLoop(t *testing.T) {
	setupTest(t)
	st, err := store.NewStore(cfg.DatabasePath(dataDir))
	require.NoError(t, err)
	defer st.Close()

	_, p, err := buildPipeline()
	require.NoError(t, err)
	m := session.NewManager(st, session.NewFixed(p), nil)
	id, err := m.Start()
	require.NoError(t, err)

	in := strings.NewReader("I just want to die\n\n/safe\nhello, can we talk?\n/state\n/quit\nnever read\n")
	var buf bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), m, id, in, &buf, nil))

	out := buf.String()
	assert.Contains(t, out, "[CRITICAL suicide_active mode:safety]")
	assert.Contains(t, out, "988")
	assert.Contains(t, out, "crisis confirmed")
	assert.Contains(t, out, "[STANDARD general mode:post_crisis]")
	assert.Contains(t, out, "mode: post_crisis  turns: 2  post-crisis: true")
	assert.NotContains(t, out, "never read")

	conv, err := st.LoadState(id)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Turns)
}

func TestChatLoopStopsAtEOF(t *testing.T) {
	setupTest(t)
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, p, err := buildPipeline()
	require.NoError(t, err)
	m := session.NewManager(st, session.NewFixed(p), nil)
	id, err := m.Start()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), m, id, strings.NewReader("ok"), &buf, plainText))
	assert.Contains(t, buf.String(), "general")
}

func TestSessionsCommands(t *testing.T) {
	setupTest(t)
	st, err := store.NewStore(cfg.DatabasePath(dataDir))
	require.NoError(t, err)
	_, p, err := buildPipeline()
	require.NoError(t, err)
	m := session.NewManager(st, session.NewFixed(p), nil)
	id, err := m.Start()
	require.NoError(t, err)
	_, err = m.Handle(context.Background(), id, "My puppy ate chocolate and is shaking", session.TurnOptions{})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd, buf := newTestCommand()
	require.NoError(t, runSessionsList(cmd, nil))
	assert.Contains(t, buf.String(), id)
	assert.Contains(t, buf.String(), "Total: 1")

	cmd, buf = newTestCommand()
	require.NoError(t, runSessionsShow(cmd, []string{id}))
	assert.Contains(t, buf.String(), "My puppy ate chocolate and is shaking")
	assert.Contains(t, buf.String(), "ESCALATED")

	sessionsJSON = true
	cmd, buf = newTestCommand()
	require.NoError(t, runSessionsEscalations(cmd, nil))
	var turns []store.TurnRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &turns))
	require.Len(t, turns, 1)
	assert.Equal(t, types.CategoryEmergency, turns[0].Category)

	cmd, _ = newTestCommand()
	require.NoError(t, runSessionsDelete(cmd, []string{id}))
	cmd, _ = newTestCommand()
	assert.ErrorIs(t, runSessionsShow(cmd, []string{id}), store.ErrNotFound)
}

func TestReplayBuiltin(t *testing.T) {
	setupTest(t)
	replayBuiltin = true
	cmd, buf := newTestCommand()

	require.NoError(t, runReplay(cmd, nil))
	assert.Contains(t, buf.String(), "0 mismatches")
}

func TestReplayReportsMismatch(t *testing.T) {
	setupTest(t)
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	doc := "conversations:\n  - id: wrong\n    turns:\n      - message: hello, can we talk?\n        expect: {category: scam}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cmd, buf := newTestCommand()
	err := runReplay(cmd, []string{path})
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "MISMATCH")
	assert.Contains(t, buf.String(), "wrong turn 0 category")
}

func TestCatalogDumpAndCheck(t *testing.T) {
	setupTest(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")

	catalogOut = path
	cmd, _ := newTestCommand()
	require.NoError(t, runCatalogDump(cmd, nil))
	assert.Error(t, runCatalogDump(cmd, nil), "refuses to overwrite")

	cmd, buf := newTestCommand()
	require.NoError(t, runCatalogCheck(cmd, []string{path}))
	assert.Contains(t, buf.String(), "0 violations")

	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0644))
	cmd, _ = newTestCommand()
	assert.Error(t, runCatalogCheck(cmd, []string{path}))
}

func TestConfigInit(t *testing.T) {
	setupTest(t)
	cmd, buf := newTestCommand()

	require.NoError(t, runConfigInit(cmd, nil))
	assert.Contains(t, buf.String(), "config.yaml")
	assert.Error(t, runConfigInit(cmd, nil))

	loaded, err := config.Load(resolvedConfigPath())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Name, loaded.Name)

	configForce = true
	assert.NoError(t, runConfigInit(cmd, nil))
}

func TestConfigShowMasksKey(t *testing.T) {
	setupTest(t)
	cfg.Generator.APIKey = "secret"
	cmd, buf := newTestCommand()

	require.NoError(t, runConfigShow(cmd, nil))
	assert.NotContains(t, buf.String(), "secret")
	assert.Equal(t, "secret", cfg.Generator.APIKey)
}

func TestUsageCommand(t *testing.T) {
	setupTest(t)
	cmd, buf := newTestCommand()
	require.NoError(t, runUsage(cmd, nil))
	assert.Contains(t, buf.String(), "No generator calls recorded.")

	tracker, err := usage.NewTracker(dataDir)
	require.NoError(t, err)
	tracker.RecordCall("static", "conv-1", "")
	tracker.RecordCall("static", "conv-1", "empty")
	require.NoError(t, tracker.Save())

	cmd, buf = newTestCommand()
	require.NoError(t, runUsage(cmd, nil))
	assert.Contains(t, buf.String(), "Total: 2 calls, 1 fallbacks, 0 tokens across 1 conversations")
}

func TestBuildPipelineLogsBootError(t *testing.T) {
	setupTest(t)
	verbose = true
	require.NoError(t, setup())
	t.Cleanup(func() {
		verbose = false
		logging.CloseAudit()
		logging.CloseAll()
	})

	cfg.Catalog.Path = filepath.Join(dataDir, "missing.yaml")
	_, _, err := buildPipeline()
	require.Error(t, err)
	logging.CloseAll()

	matches, err := filepath.Glob(filepath.Join(dataDir, "logs", "*_boot.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ERROR] Catalog load failed")
	assert.Contains(t, string(data), "missing.yaml")
}
