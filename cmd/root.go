// Package cmd defines and implements the CLI commands for the cachewarmer executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cache-warmer/internal/config"
	"github.com/JakeFAU/cache-warmer/internal/server"
)

// buildApp is the application factory. It's a variable so tests can swap it.
var buildApp = server.Build

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cachewarmer",
		Short: "Resumable cache warmer for published site content.",
		Long: `cachewarmer walks published content in small batches and requests each
page so the CDN and application caches are populated. Progress is stored
between batches, so a run survives restarts and can be stopped at any time.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML); env vars prefixed WARMER_ override it")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return &cfg, nil
	}

	cmd.AddCommand(
		newServeCmd(loadConfig),
		newRunCmd(loadConfig),
		newStartCmd(loadConfig),
		newStopCmd(loadConfig),
		newStatusCmd(loadConfig),
	)
	return cmd
}

type configLoader func() (*config.Config, error)

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
