package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nao1215/chaincrawl/internal/config"
	"github.com/nao1215/chaincrawl/internal/model"
)

// NewLabelCmd creates the label command.
func NewLabelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label <address>...",
		Short: "Resolve labels for addresses through the label cache",
		Long: `Label resolves each address through the label cache and the configured
providers, exactly as a crawl would, and prints one line per address:

  <address>\t<label|UNLABELLED>

Resolved labels are stored in the cache, so this also warms the cache
before a crawl.

Examples:
  chaincrawl label 0x28c6c06298d514db089934071355e5743bf21d60

  # Ask MetaDock only
  chaincrawl label --providers metadock 0xabc... 0xdef...`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLabelCmd,
	}

	addLabelFlags(cmd, config.NewConfig())

	return cmd
}

// runLabelCmd executes the label command.
func runLabelCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyLabelFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.ValidateLabeling(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	addrs := make([]model.Address, len(args))
	for i, arg := range args {
		addr, err := model.ParseAddress(arg)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", arg, err)
		}
		addrs[i] = addr
	}

	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runLabel(ctx, cfg, addrs, cmd.OutOrStdout(), logger)
}

// runLabel resolves addrs and prints them in argument order.
func runLabel(ctx context.Context, cfg *config.Config, addrs []model.Address, out io.Writer, logger *slog.Logger) error {
	pipeline, err := newLabelPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("failed to close label store", "error", err)
		}
	}()

	labels := pipeline.cache.Resolve(ctx, addrs)
	if err := ctx.Err(); err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	for _, addr := range addrs {
		l, ok := labels[addr]
		if !ok {
			l = model.Unlabelled
		}
		fmt.Fprintf(w, "%s\t%s\n", addr, l)
	}
	return w.Flush()
}
