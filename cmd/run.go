package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

type runOptions struct {
	maxItems  int
	delayMs   int
	batchSize int
	resume    bool
}

// newRunCmd creates the 'run' subcommand, which performs one warm run in the
// foreground and prints the completion as JSON.
func newRunCmd(load configLoader) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Warms the cache once in the foreground",
		Long: `Starts a warm run and drives it to completion in this process. Interrupting
the command keeps the run state; use --resume to continue it later.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, load, opts)
		},
	}
	cmd.Flags().IntVar(&opts.maxItems, "max-items", 0, "item limit for this run; 0 warms everything")
	cmd.Flags().IntVar(&opts.delayMs, "delay-ms", 0, "pause between items in milliseconds")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "items fetched per tick")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "continue an active run instead of starting a new one")
	return cmd
}

func runOnce(cmd *cobra.Command, load configLoader, opts runOptions) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			app.Logger().Warn("Failed to close application", zap.Error(cerr))
		}
	}()

	completion, err := app.RunOnce(ctx, startRequest(cmd, opts), opts.resume)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted; continue with --resume: %w", err)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(completion)
}

// startRequest only sets fields whose flags were given, so the configured
// defaults apply to the rest.
func startRequest(cmd *cobra.Command, opts runOptions) warmer.StartRequest {
	var req warmer.StartRequest
	flags := cmd.Flags()
	if flags.Changed("max-items") {
		req.MaxItems = &opts.maxItems
	}
	if flags.Changed("delay-ms") {
		req.DelayMs = &opts.delayMs
	}
	if flags.Changed("batch-size") {
		req.BatchSize = &opts.batchSize
	}
	return req
}
