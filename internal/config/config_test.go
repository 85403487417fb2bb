package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		Listen:       "127.0.0.1:9000",
		DataFile:     "/var/lib/relay/data.json",
		PollInterval: Duration{10 * time.Second},
		ProbeTimeout: Duration{500 * time.Millisecond},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q, want %q", loaded.Listen, "127.0.0.1:9000")
	}
	if loaded.DataFile != "/var/lib/relay/data.json" {
		t.Errorf("DataFile = %q, want %q", loaded.DataFile, "/var/lib/relay/data.json")
	}
	if loaded.PollInterval.Duration != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", loaded.PollInterval.Duration)
	}
	if loaded.ProbeTimeout.Duration != 500*time.Millisecond {
		t.Errorf("ProbeTimeout = %v, want 500ms", loaded.ProbeTimeout.Duration)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	// Only data_file set; the rest should come from defaults.
	if err := os.WriteFile(path, []byte("data_file = \"/tmp/data.json\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want default %q", cfg.Listen, DefaultListen)
	}
	if cfg.PollInterval.Duration != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default %v", cfg.PollInterval.Duration, DefaultPollInterval)
	}
	if cfg.ProbeTimeout.Duration != DefaultProbeTimeout {
		t.Errorf("ProbeTimeout = %v, want default %v", cfg.ProbeTimeout.Duration, DefaultProbeTimeout)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
