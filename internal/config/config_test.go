package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CMODEL_CONFIG", filepath.Join(t.TempDir(), "nope.json"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Workers != defaultWorkers {
		t.Fatalf("workers = %d, want %d", cfg.Pipeline.Workers, defaultWorkers)
	}
	if err := cfg.Fit.Validate(); err != nil {
		t.Fatalf("default fit config invalid: %v", err)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"pipeline":{"workers":9},"server":{"addr":":9999"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CMODEL_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Workers != 9 {
		t.Fatalf("workers = %d, want 9", cfg.Pipeline.Workers)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %q, want :9999", cfg.Server.Addr)
	}
	// untouched fields keep their defaults
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadExpandsTildePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"paths":{"prior_dir":"~/priors","reference_catalog":"~/cat/ref.db"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CMODEL_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, "priors"); cfg.Paths.PriorDir != want {
		t.Fatalf("prior dir = %q, want %q", cfg.Paths.PriorDir, want)
	}
	if want := filepath.Join(home, "cat", "ref.db"); cfg.Paths.ReferenceCatalog != want {
		t.Fatalf("reference catalog = %q, want %q", cfg.Paths.ReferenceCatalog, want)
	}
}

func TestLoadDefaultPriorDirIsAbsolute(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CMODEL_CONFIG", filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, ".config", "cmodel", "priors"); cfg.Paths.PriorDir != want {
		t.Fatalf("prior dir = %q, want %q", cfg.Paths.PriorDir, want)
	}
}

func TestLoadRejectsInvalidFitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"fit":{"region":{"max_area":-1}}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CMODEL_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("invalid fit config accepted")
	}
}
