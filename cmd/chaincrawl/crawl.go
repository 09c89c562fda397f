package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/chaincrawl/internal/config"
	"github.com/nao1215/chaincrawl/internal/crawler"
	"github.com/nao1215/chaincrawl/internal/etherscan"
	"github.com/nao1215/chaincrawl/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <address>",
		Short: "Crawl the transfer graph around an address",
		Long: `Crawl walks the transfer graph outwards from the root address.

Each address is expanded by fetching its transfers from Etherscan. New
counterparties are labelled through the label cache; labelled addresses are
reported and not expanded further, unlabelled ones are expanded until the
depth limit.

Output (stdout, one record per line):
  Node: id=[0x...] label=[STARTER|<label>|UNLABELLED] depth=[n]
  Edge:{"from":"0x...","to":"0x...","txs":["0x..."]}

Examples:
  # Crawl two hops in both directions
  chaincrawl crawl -d 2 0x28c6c06298d514db089934071355e5743bf21d60

  # Follow only outgoing transfers, breadth-first, with 8 workers
  chaincrawl crawl --backward=false -m bfs --concurrency 8 0x...

  # Save the stream and a Markdown summary
  chaincrawl crawl -s summary.md --summary-format markdown 0x... > graph.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	defaults := config.NewConfig()

	// Traversal flags
	cmd.Flags().IntP("depth", "d", defaults.MaxDepth,
		"Maximum hop count from the root (0 reports only the root)")
	cmd.Flags().Int("fan-out", defaults.MaxFanOut,
		"Maximum transfer edges processed per address")
	cmd.Flags().Bool("forward", defaults.Forward,
		"Follow transfers sent by an address")
	cmd.Flags().Bool("backward", defaults.Backward,
		"Follow transfers received by an address")
	cmd.Flags().StringP("mode", "m", defaults.Mode,
		"Traversal order: depth-first (dfs) or breadth-first (bfs)")
	cmd.Flags().Int("concurrency", defaults.Concurrency,
		"Parallel expansions per breadth-first level")
	cmd.Flags().Int64("chain-id", defaults.ChainID,
		"Etherscan chain id (1 = Ethereum mainnet)")

	addLabelFlags(cmd, defaults)

	// Summary flags
	cmd.Flags().StringP("summary", "s", "",
		"Write a crawl summary to this file (creates directories if needed)")
	cmd.Flags().String("summary-format", string(report.FormatText),
		"Summary format: text, markdown or json")

	return cmd
}

// addLabelFlags registers the flags shared by every command that resolves labels.
func addLabelFlags(cmd *cobra.Command, defaults *config.Config) {
	cmd.Flags().StringSlice("providers", defaults.Providers,
		"Label providers in the order they are consulted (metadock, etherscan)")
	cmd.Flags().String("cache-backend", defaults.CacheBackend,
		"Label store: sqlite or badger")
	cmd.Flags().String("cache-dir", defaults.CacheDir,
		"Directory holding the label store")
	cmd.Flags().Bool("no-cache", false,
		"Keep labels in memory for this run only")
	cmd.Flags().Duration("negative-ttl", defaults.NegativeTTL,
		"Skip a provider for addresses it failed to label within this period (0 disables)")
	cmd.Flags().StringP("proxy", "p", "",
		"Route provider traffic through a SOCKS5 proxy (host:port)")
	cmd.Flags().DurationP("timeout", "t", defaults.Timeout,
		"Per-request HTTP timeout")
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildCrawlConfig loads the configuration and applies the crawl flags
// the user set explicitly.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("fan-out") {
		if cfg.MaxFanOut, err = flags.GetInt("fan-out"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("forward") {
		if cfg.Forward, err = flags.GetBool("forward"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("backward") {
		if cfg.Backward, err = flags.GetBool("backward"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("mode") {
		if cfg.Mode, err = flags.GetString("mode"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("chain-id") {
		if cfg.ChainID, err = flags.GetInt64("chain-id"); err != nil {
			return nil, err
		}
	}

	if err := applyLabelFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.SummaryFile, err = flags.GetString("summary"); err != nil {
		return nil, err
	}
	if cfg.SummaryFormat, err = flags.GetString("summary-format"); err != nil {
		return nil, err
	}

	cfg.Root = args[0]
	return cfg, nil
}

// applyLabelFlags applies the label flags the user set explicitly.
func applyLabelFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("providers") {
		if cfg.Providers, err = flags.GetStringSlice("providers"); err != nil {
			return err
		}
	}
	if flags.Changed("cache-backend") {
		if cfg.CacheBackend, err = flags.GetString("cache-backend"); err != nil {
			return err
		}
	}
	if flags.Changed("cache-dir") {
		if cfg.CacheDir, err = flags.GetString("cache-dir"); err != nil {
			return err
		}
	}
	if cfg.NoCache, err = flags.GetBool("no-cache"); err != nil {
		return err
	}
	if flags.Changed("negative-ttl") {
		if cfg.NegativeTTL, err = flags.GetDuration("negative-ttl"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	return nil
}

// runCrawl executes one crawl and writes the event stream to out.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	root, err := cfg.RootAddress()
	if err != nil {
		return err
	}
	settings, err := cfg.CrawlSettings()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.SummaryFormat)
	if err != nil {
		return err
	}

	pipeline, err := newLabelPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("failed to close label store", "error", err)
		}
	}()

	collector := report.NewCollector()
	sink := crawler.MultiSink{crawler.NewLineSink(out), collector}

	engine := crawler.New(
		etherscan.NewGraphProvider(pipeline.etherscan),
		pipeline.cache,
		sink,
		crawler.WithLogger(logger),
	)

	logger.Debug("crawl configuration",
		"chainID", cfg.ChainID,
		"providers", cfg.Providers,
		"concurrency", settings.Concurrency,
	)

	stats, crawlErr := engine.Crawl(ctx, root, settings)

	cacheStats := pipeline.cache.Stats()
	logger.Info("label cache",
		"hits", cacheStats.Hits,
		"misses", cacheStats.Misses,
		"providerCalls", cacheStats.ProviderCalls,
	)
	if stats.Failures > 0 {
		logger.Warn("some addresses could not be expanded; the graph is incomplete",
			"failures", stats.Failures)
	}

	// A partial crawl still gets its summary.
	if cfg.SummaryFile != "" {
		if err := writeSummary(cfg.SummaryFile, format, collector.Summary()); err != nil {
			logger.Error("failed to write summary", "file", cfg.SummaryFile, "error", err)
			if crawlErr == nil {
				return err
			}
		}
	}

	return crawlErr
}

// writeSummary writes summary to path in format.
func writeSummary(path string, format report.Format, summary *report.Summary) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	w, err := report.NewWriter(format, f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := w.Write(summary); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return f.Close()
}
