package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"DEBUG", zap.DebugLevel},
		{"warn", zap.WarnLevel},
		{"warning", zap.WarnLevel},
		{"error", zap.ErrorLevel},
		{"info", zap.InfoLevel},
		{"", zap.InfoLevel},
		{"loud", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewConfig(t *testing.T) {
	t.Setenv("GO_ENV", "")
	cfg := NewConfig(zap.WarnLevel)
	if cfg.Encoding != "console" {
		t.Errorf("Encoding = %q, want console", cfg.Encoding)
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stderr" {
		t.Errorf("OutputPaths = %v, want [stderr]", cfg.OutputPaths)
	}
	if cfg.Level.Level() != zap.WarnLevel {
		t.Errorf("Level = %v, want warn", cfg.Level.Level())
	}

	t.Setenv("GO_ENV", "production")
	if cfg := NewConfig(zap.InfoLevel, "a.log"); cfg.Encoding != "json" || cfg.OutputPaths[0] != "a.log" {
		t.Errorf("production config = %q %v", cfg.Encoding, cfg.OutputPaths)
	}
}

func TestInitWritesToFile(t *testing.T) {
	t.Setenv("GO_ENV", "")
	t.Setenv(EnvLevel, "debug")
	path := filepath.Join(t.TempDir(), "lightarm.log")

	if err := Init("error", path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("aiming", zap.String("arm", "arm.0"))
	With(zap.Int("tick", 3)).Info("tick done")
	if err := Sync(); err != nil {
		t.Logf("Sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"aiming", "arm.0", "tick done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	SetLevel(zap.ErrorLevel)
	if L().Core().Enabled(zap.WarnLevel) {
		t.Error("warn still enabled after SetLevel(error)")
	}
}
