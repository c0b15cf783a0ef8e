package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type sample struct {
	Server struct {
		Port    string        `yaml:"port"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"server"`
	Protocols []string `yaml:"protocols" env:"SAMPLE_PROTOCOLS"`
	Enabled   bool     `yaml:"enabled"`
	Ignored   string   `yaml:"ignored" env:"-"`
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: \"9000\"\n  timeout: 5s\nprotocols: [ocpp1.6]\nenabled: false\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SERVER_TIMEOUT", "45")
	t.Setenv("SAMPLE_PROTOCOLS", "ocpp2.0.1, ocpp1.6,")
	t.Setenv("ENABLED", "true")
	t.Setenv("IGNORED", "should not apply")

	var cfg sample
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 45*time.Second {
		t.Fatalf("expected bare integer env to mean seconds, got %s", cfg.Server.Timeout)
	}
	if want := []string{"ocpp2.0.1", "ocpp1.6"}; !reflect.DeepEqual(cfg.Protocols, want) {
		t.Fatalf("expected %v, got %v", want, cfg.Protocols)
	}
	if !cfg.Enabled {
		t.Fatalf("expected env override of enabled")
	}
	if cfg.Ignored != "" {
		t.Fatalf("expected env:\"-\" field to be skipped, got %q", cfg.Ignored)
	}
}

func TestLoadFileRejectsBadInput(t *testing.T) {
	var cfg sample
	if err := LoadFile("", cfg); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}

	t.Setenv("SERVER_TIMEOUT", "soon")
	if err := LoadFile("", &cfg); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}

func TestParseDurationAcceptsGoSyntax(t *testing.T) {
	d, err := parseDuration("1m30s")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
}
