package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/chaincrawl/internal/config"
	"github.com/nao1215/chaincrawl/internal/database"
	"github.com/nao1215/chaincrawl/internal/etherscan"
	"github.com/nao1215/chaincrawl/internal/label"
	seclog "github.com/nao1215/chaincrawl/internal/log"
	"github.com/nao1215/chaincrawl/internal/metadock"
	"github.com/nao1215/chaincrawl/internal/transport"
)

// badgerSubdir is the directory under the cache dir holding Badger files.
const badgerSubdir = "badger"

// labelCounter is implemented by the persistent label stores.
type labelCounter interface {
	CountLabels(ctx context.Context) (map[string]int, error)
}

// getBoolFlag retrieves a boolean flag from the command or its root.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// loadConfig builds the configuration from defaults, the config file,
// the environment and the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		configPath, _ = cmd.Root().PersistentFlags().GetString("config") //nolint:errcheck // flag is registered on root
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")
	return cfg, nil
}

// newLogger creates the secure logger for one command run. Every record
// carries a run id so that concurrent runs sharing a log sink can be told
// apart.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	var logger *slog.Logger
	if cfg.LogJSON {
		logger = seclog.NewSecureJSONLogger(cmd.ErrOrStderr(), cfg.Verbose)
	} else {
		logger = seclog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	}
	return logger.With("run", uuid.NewString())
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// newHTTPClient creates the HTTP client shared by all providers. When a
// proxy is configured it must answer as SOCKS5 before any request is sent.
func newHTTPClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*http.Client, error) {
	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(cfg.UserAgent),
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, transport.WithProxy(cfg.ProxyAddress))
	}

	client, err := transport.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	if client.ProxyAddress() != "" {
		if status := client.CheckProxy(ctx); status != transport.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), client.ProxyAddress())
		}
		logger.Info("proxy connection verified", "address", client.ProxyAddress())
	}

	return client.HTTPClient(), nil
}

// openStore opens the label store selected by the configuration.
func openStore(cfg *config.Config, logger *slog.Logger) (label.Store, error) {
	if cfg.NoCache {
		logger.Debug("label cache disabled, using memory store")
		return label.NewMemoryStore(), nil
	}

	switch cfg.CacheBackend {
	case config.CacheBackendBadger:
		dir := filepath.Join(cfg.CacheDir, badgerSubdir)
		store, err := database.OpenBadger(database.BadgerOptions{Dir: dir, Logger: logger})
		if err != nil {
			return nil, err
		}
		logger.Debug("label store opened", "backend", cfg.CacheBackend, "dir", dir)
		return store, nil
	default:
		store, err := database.Open(cfg.CacheDir, database.DefaultOptions())
		if err != nil {
			return nil, err
		}
		logger.Debug("label store opened", "backend", cfg.CacheBackend, "path", store.Path())
		return store, nil
	}
}

// logStoreContents reports how many cached labels each provider holds.
func logStoreContents(ctx context.Context, store label.Store, logger *slog.Logger) {
	counter, ok := store.(labelCounter)
	if !ok {
		return
	}
	counts, err := counter.CountLabels(ctx)
	if err != nil {
		logger.Warn("failed to count cached labels", "error", err)
		return
	}
	for provider, n := range counts {
		logger.Info("cached labels", "provider", provider, "count", n)
	}
}

// newEtherscanClient creates the Etherscan client if the configuration
// has an API key. It returns nil otherwise.
func newEtherscanClient(cfg *config.Config, hc *http.Client, logger *slog.Logger) (*etherscan.Client, error) {
	if cfg.EtherscanAPIKey == "" {
		return nil, nil //nolint:nilnil // no key means no client
	}

	opts := []etherscan.Option{
		etherscan.WithHTTPClient(hc),
		etherscan.WithChainID(cfg.ChainID),
		etherscan.WithRateLimit(cfg.EtherscanRPS),
		etherscan.WithLogger(logger),
	}
	if cfg.EtherscanBaseURL != "" {
		opts = append(opts, etherscan.WithBaseURL(cfg.EtherscanBaseURL))
	}
	return etherscan.NewClient(cfg.EtherscanAPIKey, opts...)
}

// newProviders builds the configured label providers in order.
func newProviders(cfg *config.Config, hc *http.Client, es *etherscan.Client, logger *slog.Logger) ([]label.Provider, error) {
	providers := make([]label.Provider, 0, len(cfg.Providers))

	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderMetadock:
			opts := []metadock.Option{
				metadock.WithHTTPClient(hc),
				metadock.WithChain(cfg.MetadockChain),
				metadock.WithRateLimit(cfg.MetadockRPS),
				metadock.WithLogger(logger),
			}
			if cfg.MetadockURL != "" {
				opts = append(opts, metadock.WithURL(cfg.MetadockURL))
			}
			providers = append(providers, metadock.New(opts...))
		case config.ProviderEtherscan:
			if es == nil {
				return nil, config.ErrNoEtherscanKey
			}
			providers = append(providers, etherscan.NewContractLabeler(es))
		default:
			return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, name)
		}
	}

	return providers, nil
}

// labelPipeline is the label cache with the store and client it owns.
type labelPipeline struct {
	cache     *label.Cache
	store     label.Store
	etherscan *etherscan.Client
}

// Close releases the store.
func (p *labelPipeline) Close() error {
	return p.store.Close()
}

// newLabelPipeline wires transport, store and providers into a label cache.
func newLabelPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*labelPipeline, error) {
	hc, err := newHTTPClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	es, err := newEtherscanClient(cfg, hc, logger)
	if err != nil {
		return nil, err
	}

	providers, err := newProviders(cfg, hc, es, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open label store: %w", err)
	}
	logStoreContents(ctx, store, logger)

	cache := label.NewCache(store, providers,
		label.WithLogger(logger),
		label.WithNegativeTTL(cfg.NegativeTTL),
	)

	return &labelPipeline{cache: cache, store: store, etherscan: es}, nil
}
