// Package cmd implements the sentinel CLI: setup-db, run-initial and
// run-stream.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openepi/sentinel/internal/ioconfig"
	"github.com/openepi/sentinel/internal/iofs"
	"github.com/openepi/sentinel/internal/iologger"
	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/sentinel"
)

var (
	cfg     *config.Config
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Near-real-time ingestion and coding pipeline for surveillance forms",
	Long: `sentinel ingests clinical surveillance form submissions, validates
and deduplicates them, codes them against a configurable rule catalogue,
detects outbreak alerts and persists raw and coded records to PostgreSQL.

Commands:
  setup-db     create the schema and seed the reference tables
  run-initial  import a historical snapshot, then optimize the store
  run-stream   consume live submissions until interrupted`,
	Version:           fmt.Sprintf("version: %s\nbuild:   %s", sentinel.Version, sentinel.Build),
	PersistentPreRunE: bootstrap,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

// bootstrap loads .env, the YAML configuration and flag overrides, then
// initializes logging. Every subcommand runs after this.
func bootstrap(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	res, err := ioconfig.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	cfg = res.Config

	if cfg, err = ioconfig.BindFlags(cmd, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	if err = iologger.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	if err = iofs.EnsureDirs(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	slog.Info("Configuration loaded",
		"source", res.Source, "path", res.SourcePath)
	return nil
}

// Execute runs the CLI. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Flags().BoolP("version", "V", false, "version for sentinel")

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "",
		"path to the configuration file (default ./sentinel.yaml)")
	pf.String("database-url", "", "postgres:// connection string")
	pf.String("country-config", "", "path to the country YAML")
	pf.String("config-dir", "", "directory with catalogue, links and location files")
	pf.String("data-dir", "", "directory with local CSV snapshots")
	pf.IntP("jobs", "j", 0, "number of concurrent source readers")

	rootCmd.AddCommand(getSetupDBCmd())
	rootCmd.AddCommand(getRunInitialCmd())
	rootCmd.AddCommand(getRunStreamCmd())
}
