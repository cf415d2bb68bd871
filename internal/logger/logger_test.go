package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sentinel.log")
	log, err := New(Config{Level: "info", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	log.WithComponent("test").Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"test"`) {
		t.Errorf("Expected component field in file log, got %s", data)
	}
}

func TestLogRequestRedactsHeaders(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := (&Logger{Logger: zap.New(core)}).WithRequestID("req-1")

	log.LogRequest("POST", "/v1/filter", map[string][]string{
		"Authorization": {"Bearer secret"},
		"Content-Type":  {"application/json"},
	}, 200, 5*time.Millisecond)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Errorf("Missing request ID: %v", fields)
	}
	headers, ok := fields["headers"].(map[string]string)
	if !ok {
		t.Fatalf("Unexpected headers field type: %T", fields["headers"])
	}
	if headers["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization should be redacted, got %q", headers["Authorization"])
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type should pass through, got %q", headers["Content-Type"])
	}
}
