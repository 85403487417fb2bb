package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults used when a field is absent from the config file or the file is
// missing entirely.
const (
	DefaultListen       = ":8000"
	DefaultPollInterval = 5 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Duration wraps time.Duration so TOML values can be written as "5s", "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the global ~/.relay/config.toml.
type Config struct {
	Listen       string   `toml:"listen"`
	DataFile     string   `toml:"data_file"`
	PollInterval Duration `toml:"poll_interval"`
	ProbeTimeout Duration `toml:"probe_timeout"`
}

// Default returns a config populated with defaults. DataFile is left empty;
// the daemon resolves it against the home dir when unset.
func Default() *Config {
	return &Config{
		Listen:       DefaultListen,
		PollInterval: Duration{DefaultPollInterval},
		ProbeTimeout: Duration{DefaultProbeTimeout},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval = Duration{DefaultPollInterval}
	}
	if cfg.ProbeTimeout.Duration <= 0 {
		cfg.ProbeTimeout = Duration{DefaultProbeTimeout}
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
