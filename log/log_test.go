package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// newTestLogger returns a Logger that writes JSON into buf.
func newTestLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewWithHandler(h)
}

func TestLogger_Module(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	child := l.Module("aggregator")

	child.Info("leaf dropped")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if entry["module"] != "aggregator" {
		t.Fatalf("module = %v, want %q", entry["module"], "aggregator")
	}
	if entry["msg"] != "leaf dropped" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "leaf dropped")
	}
}

func TestLogger_ModuleChain(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	l.Module("admission").With("seq", 10).Info("admitted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if entry["module"] != "admission" {
		t.Fatalf("module = %v, want %q", entry["module"], "admission")
	}
	// slog renders numbers as float64 in JSON.
	if v, ok := entry["seq"].(float64); !ok || v != 10 {
		t.Fatalf("seq = %v, want 10", entry["seq"])
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level  slog.Level
		logFn  func(l *Logger)
		expect bool
	}{
		{slog.LevelInfo, func(l *Logger) { l.Debug("nope") }, false},
		{slog.LevelInfo, func(l *Logger) { l.Info("yes") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Warn("yes") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Error("yes") }, true},
		{slog.LevelWarn, func(l *Logger) { l.Info("nope") }, false},
		{slog.LevelDebug, func(l *Logger) { l.Debug("yes") }, true},
	}

	for i, tt := range tests {
		var buf bytes.Buffer
		l := newTestLogger(&buf, tt.level)
		tt.logFn(l)

		if got := buf.Len() > 0; got != tt.expect {
			t.Errorf("test %d: output=%v, want %v (level=%v, buf=%s)",
				i, got, tt.expect, tt.level, buf.String())
		}
	}
}

func TestNewWithFormat(t *testing.T) {
	var jsonBuf, textBuf bytes.Buffer
	NewWithFormat(&jsonBuf, slog.LevelInfo, "JSON").Info("hello", "k", "v")
	NewWithFormat(&textBuf, slog.LevelInfo, "text").Info("hello", "k", "v")

	if !json.Valid(bytes.TrimSpace(jsonBuf.Bytes())) {
		t.Fatalf("json output is not valid JSON: %s", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "k=v") {
		t.Fatalf("text output missing k=v: %s", textBuf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVerbosityToLevel(t *testing.T) {
	if VerbosityToLevel(0) != slog.LevelError {
		t.Fatal("verbosity 0 should map to error")
	}
	if VerbosityToLevel(3) != slog.LevelInfo {
		t.Fatal("verbosity 3 should map to info")
	}
	if VerbosityToLevel(5) != slog.LevelDebug {
		t.Fatal("verbosity 5 should map to debug")
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}

	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)
	SetDefault(l)
	defer SetDefault(New(slog.LevelInfo))

	Default().Info("test info", "k", "v")
	if !strings.Contains(buf.String(), "test info") {
		t.Fatalf("output missing 'test info': %s", buf.String())
	}

	// SetDefault(nil) is a no-op.
	SetDefault(nil)
	if Default() != l {
		t.Fatal("SetDefault(nil) replaced the logger")
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic.
	Discard().Module("x").Error("dropped")
}
