package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWithFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := Config{
		Level:  "debug",
		Stdout: false,
		File: FileConfig{
			Enabled: true,
			Path:    dir,
			Name:    "test.log",
		},
	}
	log, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("hello")
	_ = log.Sync()
	if _, err := os.Stat(filepath.Join(dir, "test.log")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}
