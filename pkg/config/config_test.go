package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Surface.Transport != "stdio" {
		t.Fatalf("default transport should be stdio, got %q", cfg.Surface.Transport)
	}
	if cfg.Evidence.Store != "memory" {
		t.Fatalf("default evidence store should be memory, got %q", cfg.Evidence.Store)
	}
	if cfg.Services.WatchInterval != "2s" {
		t.Fatalf("unexpected watch interval: %q", cfg.Services.WatchInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
  format: json
services:
  dir: /etc/civitas/services
surface:
  transport: http
  addr: ":9090"
evidence:
  store: sqlite
  path: /var/lib/civitas/evidence.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("file values not applied: %+v", cfg.Log)
	}
	if cfg.Services.Dir != "/etc/civitas/services" {
		t.Fatalf("services dir not applied: %q", cfg.Services.Dir)
	}
	if cfg.Surface.Transport != "http" || cfg.Surface.Addr != ":9090" {
		t.Fatalf("surface config not applied: %+v", cfg.Surface)
	}
	if cfg.Evidence.Store != "sqlite" {
		t.Fatalf("evidence store not applied: %q", cfg.Evidence.Store)
	}
	// Defaults still fill what the file omits.
	if cfg.Adapters.LLM.Provider != "ollama" {
		t.Fatalf("default adapter provider lost: %q", cfg.Adapters.LLM.Provider)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CIVITAS_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("env override not applied: %q", cfg.Log.Level)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestWatcherNotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	svcDir := filepath.Join(dir, "dwp.apply-benefit")
	if err := os.MkdirAll(svcDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := filepath.Join(svcDir, "manifest.yaml")
	if err := os.WriteFile(manifest, []byte("id: dwp.apply-benefit\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := NewWatcher(dir, WithWatchInterval(20*time.Millisecond))
	changed := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	w.Start(context.Background())
	defer w.Stop()

	// Touch the manifest with a mod time clearly in the future so the
	// change is visible regardless of filesystem timestamp granularity.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(manifest, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcherSeesNewService(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, WithWatchInterval(20*time.Millisecond))
	changed := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	w.Start(context.Background())
	defer w.Stop()

	svcDir := filepath.Join(dir, "hmrc.update-details")
	if err := os.MkdirAll(svcDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(svcDir, "manifest.yaml"), []byte("id: hmrc.update-details\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not notice the new service")
	}
}
