package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "server:\n  port: 8080\n")

	w, err := NewWatcher(path, NewLoader(), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	if !w.IsRunning() {
		t.Fatal("expected watcher to be running")
	}

	writeConfigFile(t, path, "server:\n  port: 9090\n")

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 9090 {
			t.Errorf("expected reloaded port 9090, got %d", cfg.Server.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", NewLoader()); err == nil {
		t.Error("expected error for empty config path")
	}
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "server:\n  port: 8080\n")

	w, err := NewWatcher(path, NewLoader())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestHotReloadableConfig_Changed(t *testing.T) {
	base := ExtractHotReloadable(DefaultConfig())

	same := base
	if base.Changed(same) {
		t.Error("identical configs should not report a change")
	}

	updated := DefaultConfig()
	updated.Chain.MinProvenance = 0.95
	if !base.Changed(ExtractHotReloadable(updated)) {
		t.Error("expected provenance change to be detected")
	}

	updated = DefaultConfig()
	updated.Log.Level = "debug"
	if !base.Changed(ExtractHotReloadable(updated)) {
		t.Error("expected log level change to be detected")
	}
}
