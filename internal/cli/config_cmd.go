package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func (r *Root) configShow(cmd *cobra.Command) error {
	cfgPath := os.Getenv("CMODEL_CONFIG")
	if cfgPath == "" {
		cfgPath = "(default) ~/.config/cmodel/config.json"
	}
	cmd.Printf("Current configuration:\n")
	cmd.Printf("Config file: %s\n", cfgPath)
	cmd.Printf("\nPaths:\n")
	cmd.Printf("  Database: %s\n", r.cfg.Paths.DatabasePath)
	cmd.Printf("  Reference catalog: %s\n", r.cfg.Paths.ReferenceCatalog)
	cmd.Printf("  Prior directory: %s\n", r.cfg.Paths.PriorDir)
	cmd.Printf("  Watch directory: %s\n", r.cfg.Paths.WatchDir)
	cmd.Printf("\nPipeline:\n")
	cmd.Printf("  Workers: %d\n", r.cfg.Pipeline.Workers)
	cmd.Printf("\nFit:\n")
	cmd.Printf("  Initial: %s, %d components\n", r.cfg.Fit.Initial.ProfileName, r.cfg.Fit.Initial.NComponents)
	cmd.Printf("  Exp:     %s, %d components\n", r.cfg.Fit.Exp.ProfileName, r.cfg.Fit.Exp.NComponents)
	cmd.Printf("  Dev:     %s, %d components\n", r.cfg.Fit.Dev.ProfileName, r.cfg.Fit.Dev.NComponents)
	cmd.Printf("  Max region area: %d pixels\n", r.cfg.Fit.Region.MaxArea)
	cmd.Printf("\nLogging:\n")
	cmd.Printf("  Level: %s\n", r.cfg.Logging.Level)
	cmd.Printf("  Format: %s\n", r.cfg.Logging.Format)
	cmd.Printf("\nServer:\n")
	cmd.Printf("  Addr: %s\n", r.cfg.Server.Addr)
	return nil
}

func (r *Root) configValidate(cmd *cobra.Command) error {
	if err := r.cfg.Fit.Validate(); err != nil {
		return err
	}
	r.log.Info("configuration validation", "status", "valid")
	cmd.Printf("Configuration is valid\n")
	return nil
}
