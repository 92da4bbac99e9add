package logging

import (
	"log/slog"
	"testing"

	"github.com/nerrad567/omni-lock-gateway/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewDoesNotPanic(t *testing.T) {
	cfgs := []config.LoggingConfig{
		{Level: "debug", Format: "text", Output: "stderr"},
		{Level: "info", Format: "json", Output: "stdout"},
		{}, // all defaults
	}

	for _, cfg := range cfgs {
		logger := New(cfg, "test")
		if logger == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
		logger.Debug("debug message", "key", "value")
	}
}

func TestWithAddsAttributes(t *testing.T) {
	logger := Default()
	child := logger.With("component", "test")
	if child == nil || child.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	// Parent must be unchanged (new logger returned, not mutated)
	if child == logger {
		t.Error("With() returned the same logger instance")
	}
}
