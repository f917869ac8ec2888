package cli

import (
	"context"
	"fmt"
	"log/slog"

	"cmodel/internal/config"
	"cmodel/internal/pipeline"
	"cmodel/internal/storage"
	"cmodel/internal/web"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	return newCommands(NewRoot(pipe, cfg, log, store))
}

func newCommands(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cmodel",
		Short: "CModel measures galaxy fluxes with multi-stage model fitting",
		Long: `CModel fits exponential and de Vaucouleurs galaxy models to exposure
bundles and blends them into a composite flux measurement.`,
	}

	rootCmd.AddCommand(newMeasureCmd(root))
	rootCmd.AddCommand(newForcedCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newMeasureCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure <bundle-or-directory>",
		Short: "Measure all sources in one or more exposure bundles",
		Long: `Run the full measurement over each source in the given bundle, or over
every bundle found under the given directory. Results are written to
the measurement database.

Examples:
  # Measure a single bundle
  cmodel measure /data/exposures/visit-1228.json

  # Measure every bundle under a directory
  cmodel measure /data/exposures/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundles, err := collectBundles(args[0])
			if err != nil {
				return err
			}
			return root.runJobs(context.Background(), pipeline.JobMeasure, bundles)
		},
	}
	return cmd
}

func newForcedCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forced <bundle-or-directory>",
		Short: "Measure fluxes at shapes taken from a reference catalog",
		Long: `Run forced measurement: every stage fits amplitude only, at the ellipse
recorded for the same object in the reference catalog. Requires
paths.reference_catalog to point at a previously measured catalog.

Examples:
  cmodel forced /data/exposures/visit-1229.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.cfg.Paths.ReferenceCatalog == "" {
				return fmt.Errorf("forced measurement requires paths.reference_catalog in the configuration")
			}
			bundles, err := collectBundles(args[0])
			if err != nil {
				return err
			}
			return root.runJobs(context.Background(), pipeline.JobForced, bundles)
		},
	}
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr       string
		watchPaths []string
		webPort    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with optional bundle monitoring",
		Long: `Start an HTTP server exposing jobs, measurements, and optimizer traces.
Optionally watches directories for new exposure bundles and measures
them as they arrive.

Examples:
  # Basic server
  cmodel serve --addr :8080

  # Server with bundle monitoring and live dashboard
  cmodel serve --addr :8080 --watch /data/exposures --web-port 8081`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(watchPaths) == 0 && root.cfg.Paths.WatchDir != "" {
				watchPaths = []string{root.cfg.Paths.WatchDir}
			}

			root.log.Info("starting server",
				"addr", addr,
				"watch_paths", watchPaths,
				"web_port", webPort,
			)

			realPipeline, ok := root.pipeline.(*pipeline.Pipeline)
			if !ok && (len(watchPaths) > 0 || webPort > 0) {
				return fmt.Errorf("pipeline unavailable for server startup")
			}

			if len(watchPaths) > 0 {
				watcher, err := pipeline.NewWatcher(watchPaths, realPipeline, pipeline.JobMeasure, root.log)
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				if err := watcher.Start(); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer watcher.Stop()
			}

			if webPort > 0 {
				dashboard := web.NewWebServer(webPort, realPipeline, root.log)
				go func() {
					if err := dashboard.Start(ctx); err != nil {
						root.log.Error("dashboard stopped", "error", err)
					}
				}()
			}

			return root.serveFn(ctx, addr, root.store, root.pipeline, root.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr, "server address (host:port)")
	cmd.Flags().StringSliceVar(&watchPaths, "watch", nil, "directories to monitor for new exposure bundles")
	cmd.Flags().IntVar(&webPort, "web-port", 0, "port for the live dashboard (0 disables it)")

	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate the cmodel configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow(cmd)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configValidate(cmd)
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("cmodel v1.0.0-dev\n")
		},
	}
}
