package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cmodel/internal/config"
	"cmodel/internal/pipeline"
	"cmodel/internal/storage"
)

func TestMeasureCommandSubmitsJobPerBundle(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "notes.txt"} {
		touch(t, filepath.Join(dir, name))
	}

	cmd := newCommands(root)
	cmd.SetArgs([]string{"measure", dir})
	cmd.SetOut(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("measure failed: %v", err)
	}

	if len(fakePipe.jobs) != 2 {
		t.Fatalf("expected 2 jobs for 2 bundles, got %d", len(fakePipe.jobs))
	}
	for _, job := range fakePipe.jobs {
		if job.Type != pipeline.JobMeasure {
			t.Fatalf("expected measure job, got %s", job.Type)
		}
	}
}

func TestMeasureCommandRejectsMissingInput(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	cmd := newCommands(root)
	cmd.SetArgs([]string{"measure", filepath.Join(t.TempDir(), "missing")})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for missing input path")
	}
	if len(fakePipe.jobs) != 0 {
		t.Fatalf("no jobs should be submitted for invalid input")
	}
}

func TestForcedCommandRequiresReferenceCatalog(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	root.cfg.Paths.ReferenceCatalog = ""

	bundle := filepath.Join(t.TempDir(), "a.json")
	touch(t, bundle)

	cmd := newCommands(root)
	cmd.SetArgs([]string{"forced", bundle})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without reference catalog configured")
	}

	root.cfg.Paths.ReferenceCatalog = filepath.Join(t.TempDir(), "ref.db")
	fakePipe.reset()
	cmd.SetArgs([]string{"forced", bundle})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("forced failed: %v", err)
	}
	if len(fakePipe.jobs) != 1 || fakePipe.jobs[0].Type != pipeline.JobForced {
		t.Fatalf("expected one forced job, got %+v", fakePipe.jobs)
	}
}

func TestRunJobsPropagatesProcessingErrors(t *testing.T) {
	root, fakePipe := newTestRoot(t)
	fakePipe.failAll = context.DeadlineExceeded

	bundle := filepath.Join(t.TempDir(), "a.json")
	touch(t, bundle)
	if err := root.runJobs(context.Background(), pipeline.JobMeasure, []string{bundle}); err == nil {
		t.Fatalf("expected error from failed job result")
	}
}

func TestConfigShowPrintsSettings(t *testing.T) {
	root, _ := newTestRoot(t)
	cmd := newCommands(root)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "show"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"Current configuration", "Database:", "Workers:", "Max region area"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in config output, got %q", want, out.String())
		}
	}
}

func TestConfigValidateFlagsBadFitConfig(t *testing.T) {
	root, _ := newTestRoot(t)
	root.cfg.Fit.Region.MaxArea = -1

	cmd := newCommands(root)
	cmd.SetArgs([]string{"config", "validate"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected validation error for negative max area")
	}
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	cmd := newCommands(root)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "cmodel v1.0.0-dev") {
		t.Fatalf("expected version string, got %q", out.String())
	}
}

// Test helpers

// fakePipeline records submitted jobs and immediately publishes a
// result for each.
type fakePipeline struct {
	mu      sync.Mutex
	jobs    []pipeline.Job
	failAll error
	subs    []chan pipeline.Result
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{}
}

func (f *fakePipeline) Submit(job pipeline.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	res := pipeline.Result{Job: job, Measured: 1, Error: f.failAll}
	for _, ch := range f.subs {
		select {
		case ch <- res:
		default:
		}
	}
	return nil
}

func (f *fakePipeline) Subscribe() (<-chan pipeline.Result, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan pipeline.Result, 64)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakePipeline) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = nil
	f.failAll = nil
}

func newTestRoot(t *testing.T) (*Root, *fakePipeline) {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("CMODEL_CONFIG", filepath.Join(tmp, "missing-config.json"))
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.Paths.DatabasePath = filepath.Join(tmp, "cmodel.db")

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fakePipe := newFakePipeline()
	root := &Root{
		pipeline: fakePipe,
		cfg:      cfg,
		log:      logger,
		store:    store,
		serveFn:  defaultServe,
	}
	return root, fakePipe
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
