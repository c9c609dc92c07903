package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/stagekit/types"
)

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		verbose int
		want    zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{3, TraceLevel},
		{9, TraceLevel},
	}
	for _, tt := range tests {
		if got := LevelForVerbosity(tt.verbose); got != tt.want {
			t.Errorf("LevelForVerbosity(%d) = %v, want %v", tt.verbose, got, tt.want)
		}
	}
}

func TestNewTerminal_RespectsVerbosity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTerminal(0, &buf)

	logger.Info("hidden", nil)
	logger.Warn("shown", map[string]any{"k": "v"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at verbosity 0: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "WARN") {
		t.Errorf("warning missing: %q", out)
	}
}

func TestLoggerWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	logger.Trace("deep", map[string]any{"n": 1})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry["level"] != "trace" {
		t.Errorf("level = %v, want trace", entry["level"])
	}
	if entry["message"] != "deep" {
		t.Errorf("message = %v, want deep", entry["message"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestAttachRunDirectory(t *testing.T) {
	runDir := t.TempDir()
	var terminal bytes.Buffer
	logger := NewTerminal(0, &terminal)

	if err := logger.AttachRunDirectory(runDir); err != nil {
		t.Fatalf("AttachRunDirectory failed: %v", err)
	}
	logger.Debug("file only", nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if strings.Contains(terminal.String(), "file only") {
		t.Error("debug message reached the terminal at verbosity 0")
	}

	text, err := os.ReadFile(filepath.Join(runDir, types.LogDir, types.LogFileName))
	if err != nil {
		t.Fatalf("read text log: %v", err)
	}
	if !strings.Contains(string(text), "file only") {
		t.Errorf("text log missing entry: %q", text)
	}

	detailed, err := os.ReadFile(filepath.Join(runDir, types.LogDir, types.DetailedLogFileName))
	if err != nil {
		t.Fatalf("read json log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(detailed), &entry); err != nil {
		t.Fatalf("json log not JSON: %v", err)
	}
	if entry["message"] != "file only" {
		t.Errorf("json log message = %v", entry["message"])
	}
}

func TestFilterOrchestrator_DemotesChatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTerminal(2, &buf)

	orch := logger.Named("orchestrator")
	orch.Info("heartbeat")
	orch.Warn("task failed")
	logger.Named("stage").Info("stage info")

	out := buf.String()
	if strings.Contains(out, "heartbeat") {
		t.Errorf("orchestrator info leaked at debug verbosity: %q", out)
	}
	if !strings.Contains(out, "task failed") {
		t.Errorf("orchestrator warning dropped: %q", out)
	}
	if !strings.Contains(out, "stage info") {
		t.Errorf("non-orchestrator info dropped: %q", out)
	}
}

func TestFilterOrchestrator_TraceShowsEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTerminal(3, &buf)

	logger.Named("orchestrator.client").Info("heartbeat")

	if !strings.Contains(buf.String(), "heartbeat") || !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("expected demoted entry at trace: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := NewNop()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
