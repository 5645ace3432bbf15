// Package main provides the CLI entry point for tabstream.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ukaji3/tabstream-go/internal/config"
	"github.com/ukaji3/tabstream-go/internal/logging"
)

var (
	envFile string
	cfg     *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabstream",
		Short: "Stream tabular documents between CSV and XLSX",
		Long: `tabstream reads and writes CSV and XLSX documents row by row, keeping
memory use flat regardless of the number of rows.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")

	rootCmd.AddCommand(
		newConvertCmd(),
		newCountCmd(),
		newInspectCmd(),
		newServeCmd(),
		newExportCmd(),
	)
	return rootCmd
}

// loadConfig reads the dotenv file, loads the configuration and sets up
// logging for every subcommand.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadEnvFile(envFile)
	if err != nil {
		return err
	}

	cfg, err = config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Debug("configuration loaded", "env_file", loaded, "config", cfg.String())
	return nil
}
