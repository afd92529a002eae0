package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PackagesDir != "custom_nodes" {
		t.Errorf("PackagesDir = %q, want custom_nodes", cfg.PackagesDir)
	}
	if cfg.Registry.BaseURL == "" {
		t.Error("Registry.BaseURL default missing")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
packages_dir: /srv/nodes
registry:
  base_url: https://registry.internal.example.com
  timeout: 10s
  retry_max: 5
database:
  path: /var/lib/nodekeeper/state.db
deps:
  skip: true
telemetry:
  log_level: debug
  log_format: json
  tracing_exporter: none
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PackagesDir != "/srv/nodes" {
		t.Errorf("PackagesDir = %q", cfg.PackagesDir)
	}
	if cfg.Registry.Timeout.Std() != 10*time.Second {
		t.Errorf("Registry.Timeout = %v, want 10s", cfg.Registry.Timeout.Std())
	}
	if cfg.Registry.RetryMax != 5 {
		t.Errorf("Registry.RetryMax = %d, want 5", cfg.Registry.RetryMax)
	}
	if !cfg.Deps.Skip {
		t.Error("Deps.Skip not applied")
	}
	if cfg.Telemetry.LogLevel != "debug" || cfg.Telemetry.LogFormat != "json" {
		t.Errorf("telemetry overrides not applied: %+v", cfg.Telemetry)
	}

	// Untouched sections keep their defaults.
	if cfg.Git.Binary != "git" {
		t.Errorf("Git.Binary = %q, want git", cfg.Git.Binary)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "telemetry:\n  log_level: verbose\n"},
		{"bad registry url", "registry:\n  base_url: not-a-url\n"},
		{"empty packages dir", "packages_dir: \"\"\n"},
		{"bad duration", "registry:\n  timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "packages_dir: /srv/nodes\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *AppConfig, 1)
	w := NewWatcher(path, zerolog.Nop())
	if err := w.Watch(ctx, func(cfg *AppConfig) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("packages_dir: /srv/other\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.PackagesDir != "/srv/other" {
			t.Errorf("reloaded PackagesDir = %q, want /srv/other", cfg.PackagesDir)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodekeeper.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
