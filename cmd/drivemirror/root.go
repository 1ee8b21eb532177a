package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jun/drivemirror/internal/app"
	"github.com/jun/drivemirror/internal/config"
	"github.com/jun/drivemirror/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
)

// resolvedCfg is populated by PersistentPreRunE before any subcommand runs.
var resolvedCfg *config.Config

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drivemirror",
		Short:         "Read-only Google Drive client with a local mirror",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (.yaml, .json or .toml)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newNameCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newZoneCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(path, os.Getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if flagVerbose {
		level = "debug"
	}
	// Logs go to stderr so stdout stays parseable.
	if err := logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	resolvedCfg = cfg
	return nil
}

// buildDeps wires the client from the resolved config.
func buildDeps(cmd *cobra.Command) (*app.Deps, error) {
	if resolvedCfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return app.NewDeps(cmd.Context(), resolvedCfg)
}
