package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nefsim/internal/config"
	"nefsim/internal/logging"
	"nefsim/pkg/nefsim"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nefsimctl",
		Short: "Run and inspect neural engineering framework simulations",
		Long: `nefsimctl builds a registered scenario network, steps it with the
phase-barrier scheduler and persists probe series and decoder error
estimates for later inspection.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn|info|debug|trace")
	rootCmd.PersistentFlags().String("store", "", "Store backend: memory|sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newProbesCmd(),
		newDecoderErrorsCmd(),
		newExportCmd(),
		newScenariosCmd(),
		newFunctionsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads --config, applies environment overrides and then the
// global flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if kind, _ := cmd.Flags().GetString("store"); kind != "" {
		cfg.Store.Kind = kind
	}
	if dbPath, _ := cmd.Flags().GetString("db-path"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

func newClient(cmd *cobra.Command, cfg *config.Config) (*nefsim.Client, error) {
	return nefsim.New(nefsim.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.DBPath,
		Logger:    newLogger(cmd, cfg),
	})
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nefsimctl version %s\n", version)
			return nil
		},
	}
}
