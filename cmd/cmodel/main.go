package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cmodel/internal/cli"
	"cmodel/internal/config"
	"cmodel/internal/fit"
	"cmodel/internal/logging"
	"cmodel/internal/pipeline"
	"cmodel/internal/refcat"
	"cmodel/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cmodel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logging.Setup(cfg)

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open measurement database: %w", err)
	}
	defer store.Close()

	cfg.Fit.PriorDir = cfg.Paths.PriorDir
	alg, err := fit.New(cfg.Fit)
	if err != nil {
		return fmt.Errorf("invalid fit configuration: %w", err)
	}

	var refs *refcat.Catalog
	if cfg.Paths.ReferenceCatalog != "" {
		refs, err = refcat.Open(cfg.Paths.ReferenceCatalog)
		if err != nil {
			return fmt.Errorf("failed to open reference catalog: %w", err)
		}
		defer refs.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var measurer *pipeline.Measurer
	if refs != nil {
		measurer = pipeline.NewMeasurer(log, store, alg, cfg.Diagnostics, refs)
	} else {
		measurer = pipeline.NewMeasurer(log, store, alg, cfg.Diagnostics, nil)
	}
	pipe := pipeline.New(ctx, cfg.Pipeline.Workers, log, store, measurer)
	defer pipe.Stop()

	rootCmd := cli.NewRootCmd(cfg, log, store, pipe)
	return rootCmd.ExecuteContext(ctx)
}
