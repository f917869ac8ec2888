package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cmodel/internal/config"
	"cmodel/internal/fsutil"
	"cmodel/internal/pipeline"
	"cmodel/internal/server"
	"cmodel/internal/storage"

	"github.com/google/uuid"
)

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

type serverFunc func(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, log *slog.Logger) error

func defaultServe(ctx context.Context, addr string, store *storage.Store, pipe pipelineClient, log *slog.Logger) error {
	if real, ok := pipe.(*pipeline.Pipeline); ok {
		return server.Serve(ctx, addr, store, real, log)
	}
	return fmt.Errorf("pipeline does not support server operation")
}

// Root wires CLI commands to the pipeline.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	serveFn  serverFunc
}

// NewRoot constructs the CLI command backend.
func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		serveFn:  defaultServe,
	}
}

// collectBundles expands a file-or-directory argument into bundle paths.
func collectBundles(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("cannot read input %s: %w", input, err)
	}
	if !info.IsDir() {
		if !fsutil.IsBundleFile(input) {
			return nil, fmt.Errorf("%s is not an exposure bundle", input)
		}
		return []string{input}, nil
	}
	bundles, err := fsutil.ListBundles(input)
	if err != nil {
		return nil, err
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("no exposure bundles found under %s", input)
	}
	return bundles, nil
}

// runJobs submits one job per bundle and waits for all of them.
func (r *Root) runJobs(ctx context.Context, jobType pipeline.JobType, bundles []string) error {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()

	pending := make(map[string]bool, len(bundles))
	for _, bundle := range bundles {
		job := pipeline.Job{
			ID:         uuid.New().String(),
			Type:       jobType,
			BundlePath: bundle,
		}
		if err := r.pipeline.Submit(job); err != nil {
			return err
		}
		pending[job.ID] = true
		r.log.Info("job queued", "type", job.Type, "id", job.ID, "bundle", bundle)
	}

	var measured, failed int
	var firstErr error
	start := time.Now()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return fmt.Errorf("pipeline stopped before completion")
			}
			if !pending[res.Job.ID] {
				continue
			}
			delete(pending, res.Job.ID)
			measured += res.Measured
			failed += res.Failed
			if res.Error != nil && firstErr == nil {
				firstErr = res.Error
			}
		}
	}

	r.log.Info("measurement batch finished",
		"bundles", len(bundles),
		"measured", measured,
		"failed", failed,
		"elapsed", time.Since(start),
	)
	if firstErr != nil {
		return firstErr
	}
	return nil
}
