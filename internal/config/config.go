package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"cmodel/internal/fit"
)

const (
	defaultConfigPath = "~/.config/cmodel/config.json"
	defaultWorkers    = 4
)

// Config holds user-editable settings for the measurement service.
type Config struct {
	Fit         fit.Config  `json:"fit"`
	Pipeline    Pipeline    `json:"pipeline"`
	Logging     Logging     `json:"logging"`
	Paths       Paths       `json:"paths"`
	Server      Server      `json:"server"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Pipeline captures execution preferences for batch measurement.
type Pipeline struct {
	Workers int `json:"workers"`
}

// Logging controls logging verbosity and format.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Paths configures default input/output locations.
type Paths struct {
	DatabasePath     string `json:"database_path"`
	ReferenceCatalog string `json:"reference_catalog"`
	PriorDir         string `json:"prior_dir"`
	WatchDir         string `json:"watch_dir"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `json:"addr"`
}

// Diagnostics controls persisted optimizer traces. Traces are only
// written for the listed object ids.
type Diagnostics struct {
	Enabled bool    `json:"enabled"`
	IDs     []int64 `json:"ids"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CMODEL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		if err := cfg.Paths.expandPaths(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Fit.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Paths.expandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPaths resolves a leading ~ in every configured path so
// downstream consumers always see absolute locations.
func (p *Paths) expandPaths() error {
	for _, path := range []*string{&p.DatabasePath, &p.ReferenceCatalog, &p.PriorDir, &p.WatchDir} {
		expanded, err := expandUser(*path)
		if err != nil {
			return err
		}
		*path = expanded
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Fit: fit.DefaultConfig(),
		Pipeline: Pipeline{
			Workers: defaultWorkers,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "cmodel.db"),
			PriorDir:     "~/.config/cmodel/priors",
		},
		Server: Server{
			Addr: ":8080",
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
