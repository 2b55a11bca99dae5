package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/db"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

type stubGenerator struct {
	reply string
}

func (g stubGenerator) Generate(ctx context.Context, req chat.GenerateRequest) (string, error) {
	return g.reply, nil
}

// setupTestEnv creates an environment backed by a temporary SQLite database.
func setupTestEnv(t *testing.T) *env {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	st := store.Open(context.Background(), store.NewSQLiteBackend(database))
	return &env{
		cfg:    cfg,
		store:  st,
		relay:  chat.NewRelay(st, stubGenerator{reply: "ゆっくり深呼吸しましょう"}),
		policy: ops.NewPathPolicy(tmpDir, cfg),
	}
}

// runCLI runs the app with args and returns what it wrote to stdout.
func runCLI(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := newCLIApp(e).Run(append([]string{"nami"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
}

// exitMessage returns the message of a cli.Exit error.
func exitMessage(t *testing.T, err error) string {
	t.Helper()
	exitErr, ok := err.(cli.ExitCoder)
	if !ok {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
	return exitErr.Error()
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"nami"}, false},
		{[]string{"nami", "urge"}, true},
		{[]string{"nami", "serve"}, true},
		{[]string{"nami", "--version"}, true},
		{[]string{"nami", "-h"}, true},
		{[]string{"nami", "bogus"}, false},
	}
	for _, tt := range tests {
		if got := isCLIMode(tt.args); got != tt.want {
			t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	if !isHelpOrVersion([]string{"nami", "help"}) {
		t.Error("help should be recognized")
	}
	if isHelpOrVersion([]string{"nami", "urge"}) {
		t.Error("urge is not help")
	}
	if isHelpOrVersion([]string{"nami"}) {
		t.Error("no args is not help")
	}
}

func TestCLIVersionWithoutEnv(t *testing.T) {
	out, err := runCLI(t, nil, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("expected version in output, got %q", out)
	}
}

func TestCLIUrge(t *testing.T) {
	e := setupTestEnv(t)

	out, err := runCLI(t, e, "urge",
		"--strength=8", "--trigger=money", "--trigger=感情",
		"--strategy=breathing", "--saved=3000", "--memo=給料日", "--effectiveness=2")
	if err != nil {
		t.Fatalf("urge command failed: %v", err)
	}

	var output ops.RecordUrgeOutput
	decodeOutput(t, out, &output)
	if output.Event.ID == "" {
		t.Error("expected non-empty ID")
	}
	if output.Event.Strength != 8 {
		t.Errorf("strength = %d, want 8", output.Event.Strength)
	}
	if !output.Event.Triggers.Has(tracker.TriggerMoney) || !output.Event.Triggers.Has(tracker.TriggerEmotion) {
		t.Errorf("triggers = %v", output.Event.Triggers.Triggers())
	}
	if output.TotalSaved != 3000 || output.EventCount != 1 {
		t.Errorf("total = %v, count = %d", output.TotalSaved, output.EventCount)
	}
}

func TestCLIUrge_Defaults(t *testing.T) {
	e := setupTestEnv(t)

	out, err := runCLI(t, e, "urge")
	if err != nil {
		t.Fatalf("urge command failed: %v", err)
	}
	var output ops.RecordUrgeOutput
	decodeOutput(t, out, &output)
	if output.Event.Strength != tracker.DefaultStrength {
		t.Errorf("strength = %d, want default", output.Event.Strength)
	}
	if len(output.Event.UsedStrategies) != 0 {
		t.Errorf("strategies = %v, want none", output.Event.UsedStrategies)
	}
}

func TestCLIUrge_Errors(t *testing.T) {
	e := setupTestEnv(t)

	_, err := runCLI(t, e, "urge", "--strength=11")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q", msg)
	}

	_, err = runCLI(t, e, "urge", "--strategy=meditation")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q", msg)
	}

	_, err = runCLI(t, e, "urge", "--start=yesterday")
	if msg := exitMessage(t, err); !strings.Contains(msg, "RFC 3339") {
		t.Errorf("message = %q", msg)
	}

	if n := len(e.store.Snapshot().UrgeEvents); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestCLIMood(t *testing.T) {
	e := setupTestEnv(t)

	out, err := runCLI(t, e, "mood", "--icon=😥", "--body=肩が重い", "--strength=3")
	if err != nil {
		t.Fatalf("mood command failed: %v", err)
	}

	var output ops.LogMoodOutput
	decodeOutput(t, out, &output)
	if output.Mood.MoodIcon != "😥" || output.Mood.Strength != 3 || output.Mood.Color != tracker.DefaultMoodColor {
		t.Errorf("mood = %+v", output.Mood)
	}
}

func TestCLIStatsAndHistory(t *testing.T) {
	e := setupTestEnv(t)
	for _, s := range []string{"9", "4"} {
		if _, err := runCLI(t, e, "urge", "--strength="+s, "--saved=500"); err != nil {
			t.Fatalf("urge: %v", err)
		}
	}
	if _, err := runCLI(t, e, "mood"); err != nil {
		t.Fatalf("mood: %v", err)
	}

	out, err := runCLI(t, e, "stats")
	if err != nil {
		t.Fatalf("stats command failed: %v", err)
	}
	var stats ops.StatsOutput
	decodeOutput(t, out, &stats)
	if stats.EventCount != 2 || stats.TotalSaved != 1000 {
		t.Errorf("stats = %d events, %v saved", stats.EventCount, stats.TotalSaved)
	}
	if stats.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", stats.Timezone)
	}

	out, err = runCLI(t, e, "history", "--kind=urge", "--limit=1")
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	var hist ops.HistoryOutput
	decodeOutput(t, out, &hist)
	if len(hist.Items) != 1 || !hist.Pagination.HasMore || hist.Pagination.Total != 2 {
		t.Errorf("history = %d items, pagination %+v", len(hist.Items), hist.Pagination)
	}

	_, err = runCLI(t, e, "history", "--kind=chat")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q", msg)
	}
}

func TestCLIChat(t *testing.T) {
	e := setupTestEnv(t)

	out, err := runCLI(t, e, "chat", "今日は", "つらい")
	if err != nil {
		t.Fatalf("chat command failed: %v", err)
	}
	var output ops.SendChatOutput
	decodeOutput(t, out, &output)
	if output.User.Text != "今日は つらい" {
		t.Errorf("user text = %q", output.User.Text)
	}
	if output.Reply.Text != "ゆっくり深呼吸しましょう" || output.Fallback {
		t.Errorf("reply = %+v", output.Reply)
	}

	out, err = runCLI(t, e, "chat", "history")
	if err != nil {
		t.Fatalf("chat history failed: %v", err)
	}
	var hist ops.ChatHistoryOutput
	decodeOutput(t, out, &hist)
	if len(hist.Items) != 2 || hist.Items[0].Role != tracker.RoleUser {
		t.Errorf("chat history = %+v", hist.Items)
	}
}

func TestCLIStrategies(t *testing.T) {
	out, err := runCLI(t, setupTestEnv(t), "strategies")
	if err != nil {
		t.Fatalf("strategies command failed: %v", err)
	}
	var output ops.StrategiesOutput
	decodeOutput(t, out, &output)
	if len(output.Items) != len(tracker.Strategies) {
		t.Errorf("strategies = %d, want %d", len(output.Items), len(tracker.Strategies))
	}
}

func TestCLISettings(t *testing.T) {
	e := setupTestEnv(t)

	out, err := runCLI(t, e, "settings", "show")
	if err != nil {
		t.Fatalf("settings show failed: %v", err)
	}
	var output ops.SettingsOutput
	decodeOutput(t, out, &output)
	if output.Settings.Nickname != tracker.DefaultNickname {
		t.Errorf("nickname = %q, want default", output.Settings.Nickname)
	}

	out, err = runCLI(t, e, "settings", "set", "なみ")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	decodeOutput(t, out, &output)
	if output.Settings.Nickname != "なみ" {
		t.Errorf("nickname = %q, want なみ", output.Settings.Nickname)
	}

	_, err = runCLI(t, e, "settings", "set")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q", msg)
	}
}

func TestCLIExportImport(t *testing.T) {
	e := setupTestEnv(t)
	for range 2 {
		if _, err := runCLI(t, e, "urge", "--saved=100"); err != nil {
			t.Fatalf("urge: %v", err)
		}
	}
	if _, err := runCLI(t, e, "chat", "hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	exportPath := filepath.Join(e.policy.ExportsDir, "backup.jsonl")

	t.Run("export", func(t *testing.T) {
		out, err := runCLI(t, e, "export", "--path="+exportPath)
		if err != nil {
			t.Fatalf("export command failed: %v", err)
		}
		var output ops.ExportOutput
		decodeOutput(t, out, &output)
		if output.Path != exportPath {
			t.Errorf("path = %s, want %s", output.Path, exportPath)
		}
		if output.Counts.UrgeEvents != 2 || output.Counts.ChatMessages != 2 {
			t.Errorf("counts = %+v", output.Counts)
		}
	})

	t.Run("export outside allowed dirs", func(t *testing.T) {
		_, err := runCLI(t, e, "export", "--path="+filepath.Join(t.TempDir(), "x.jsonl"))
		if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("import replace", func(t *testing.T) {
		// A second environment shares the exports directory.
		e2 := setupTestEnv(t)
		e2.policy = e.policy

		out, err := runCLI(t, e2, "import", "--path="+exportPath, "--mode=replace")
		if err != nil {
			t.Fatalf("import command failed: %v", err)
		}
		var output ops.ImportOutput
		decodeOutput(t, out, &output)
		if output.Imported != 4 {
			t.Errorf("imported = %d, want 4", output.Imported)
		}
		if got := len(e2.store.Snapshot().UrgeEvents); got != 2 {
			t.Errorf("urge events = %d, want 2", got)
		}
	})

	t.Run("import missing file", func(t *testing.T) {
		_, err := runCLI(t, e, "import", "--path="+filepath.Join(e.policy.ExportsDir, "missing.jsonl"))
		if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[FILE_NOT_FOUND]") {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestCLIServe_InvalidPort(t *testing.T) {
	_, err := runCLI(t, setupTestEnv(t), "serve", "--port=70000")
	if msg := exitMessage(t, err); !strings.Contains(msg, "port") {
		t.Errorf("message = %q", msg)
	}
}

func TestEnvWarnsOnUnknownDisabled(t *testing.T) {
	e := setupTestEnv(t)
	e.cfg.DisabledTools = []string{"urge_record", "nope"}
	e.cfg.DisabledTypes = []string{"data"}
	core, logs := observer.New(zap.WarnLevel)
	e.log = zap.New(core)

	e.warnUnknownDisabled()

	if n := logs.FilterMessage("unknown tools in disabled_tools").Len(); n != 1 {
		t.Errorf("tool warnings = %d, want 1", n)
	}
	if n := logs.FilterMessage("unknown types in disabled_types").Len(); n != 0 {
		t.Errorf("type warnings = %d, want 0", n)
	}
}
