package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/chaincrawl/internal/etherscan"
	"github.com/nao1215/chaincrawl/internal/metadock"
	"github.com/nao1215/chaincrawl/internal/model"
	"github.com/nao1215/chaincrawl/internal/transport"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "chaincrawl"

	// EnvEtherscanAPIKey is the environment variable holding the Etherscan API key.
	EnvEtherscanAPIKey = "ETHERSCAN_API_KEY"

	// DefaultTimeout bounds each HTTP request to a provider.
	DefaultTimeout = transport.DefaultTimeout

	// CacheBackendSQLite stores labels in a SQLite database.
	CacheBackendSQLite = "sqlite"

	// CacheBackendBadger stores labels in a Badger key-value store.
	CacheBackendBadger = "badger"

	// DefaultCacheBackend is the label store used when none is configured.
	DefaultCacheBackend = CacheBackendSQLite

	// ProviderMetadock and ProviderEtherscan name the label providers.
	ProviderMetadock  = metadock.ProviderName
	ProviderEtherscan = etherscan.ProviderName
)

// DefaultProviders is the provider order used when none is configured.
// MetaDock answers whole batches in one request, so it goes first and
// Etherscan only sees what MetaDock left unlabelled.
var DefaultProviders = []string{ProviderMetadock, ProviderEtherscan}

// Config holds all configuration options for chaincrawl.
// This struct is populated from defaults, the config file, the environment
// and CLI flags, in that order, and passed through the application via
// dependency injection rather than global state.
type Config struct {
	// Root is the address the crawl starts from.
	Root string

	// MaxDepth is the deepest hop count reported. 0 reports only the root.
	MaxDepth int

	// MaxFanOut caps the edges processed per expanded address.
	MaxFanOut int

	// Forward follows transfers sent by an expanded address.
	Forward bool

	// Backward follows transfers received by an expanded address.
	Backward bool

	// Mode is the traversal order name (depth-first, dfs, breadth-first, bfs).
	Mode string

	// Concurrency is the number of parallel expansions per breadth-first level.
	Concurrency int

	// EtherscanAPIKey authenticates Etherscan requests.
	EtherscanAPIKey string

	// EtherscanBaseURL overrides the Etherscan API endpoint.
	EtherscanBaseURL string

	// ChainID selects the chain queried through Etherscan.
	ChainID int64

	// EtherscanRPS is the client-side Etherscan request rate. 0 disables limiting.
	EtherscanRPS float64

	// MetadockURL overrides the MetaDock endpoint.
	MetadockURL string

	// MetadockChain is the chain name sent to MetaDock.
	MetadockChain string

	// MetadockRPS is the client-side MetaDock request rate. 0 disables limiting.
	MetadockRPS float64

	// Providers lists the label providers in the order they are consulted.
	Providers []string

	// ProxyAddress routes provider traffic through a SOCKS5 proxy when set.
	ProxyAddress string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent is sent with every HTTP request.
	UserAgent string

	// CacheBackend selects the label store (sqlite or badger).
	CacheBackend string

	// CacheDir is the directory holding the label store.
	// Defaults to the XDG cache directory (~/.cache/chaincrawl on Linux).
	CacheDir string

	// NoCache keeps labels in memory for this run only.
	NoCache bool

	// NegativeTTL enables per-provider miss records when positive.
	NegativeTTL time.Duration

	// SummaryFile receives a crawl summary when set.
	SummaryFile string

	// SummaryFormat is the summary format (text, markdown or json).
	SummaryFormat string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .chaincrawl in the current directory
	// and then in the user's home directory.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
func NewConfig() *Config {
	return &Config{
		MaxDepth:      model.DefaultMaxDepth,
		MaxFanOut:     model.DefaultMaxFanOut,
		Forward:       true,
		Backward:      true,
		Mode:          model.DepthFirst.String(),
		Concurrency:   model.DefaultConcurrency,
		ChainID:       etherscan.DefaultChainID,
		EtherscanRPS:  etherscan.DefaultRequestsPerSecond,
		MetadockChain: metadock.DefaultChain,
		MetadockRPS:   metadock.DefaultRequestsPerSecond,
		Providers:     slices.Clone(DefaultProviders),
		Timeout:       DefaultTimeout,
		UserAgent:     transport.DefaultUserAgent,
		CacheBackend:  DefaultCacheBackend,
		CacheDir:      XDGCacheDir(),
	}
}

// XDGCacheDir returns the XDG cache directory for chaincrawl.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.cache/chaincrawl
// On macOS: ~/Library/Caches/chaincrawl
// On Windows: %LOCALAPPDATA%\chaincrawl\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// XDGConfigDir returns the XDG config directory for chaincrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// CrawlSettings converts the crawl options into engine settings.
func (c *Config) CrawlSettings() (model.CrawlSettings, error) {
	order, err := model.ParseTraversalOrder(c.Mode)
	if err != nil {
		return model.CrawlSettings{}, err
	}

	s := model.CrawlSettings{
		MaxDepth:    c.MaxDepth,
		MaxFanOut:   c.MaxFanOut,
		Forward:     c.Forward,
		Backward:    c.Backward,
		Order:       order,
		Concurrency: c.Concurrency,
	}
	if err := s.Validate(); err != nil {
		return model.CrawlSettings{}, err
	}
	return s, nil
}

// RootAddress parses Root.
func (c *Config) RootAddress() (model.Address, error) {
	if strings.TrimSpace(c.Root) == "" {
		return model.Address{}, ErrNoRoot
	}
	return model.ParseAddress(c.Root)
}

// UsesProvider reports whether name is among the configured providers.
func (c *Config) UsesProvider(name string) bool {
	return slices.Contains(c.Providers, name)
}

// ValidateLabeling checks the options shared by every command that
// resolves labels.
func (c *Config) ValidateLabeling() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	for _, p := range c.Providers {
		switch p {
		case ProviderMetadock, ProviderEtherscan:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
	}

	if c.UsesProvider(ProviderEtherscan) {
		if strings.TrimSpace(c.EtherscanAPIKey) == "" {
			return ErrNoEtherscanKey
		}
		if c.ChainID <= 0 {
			return ErrInvalidChainID
		}
	}

	switch c.CacheBackend {
	case CacheBackendSQLite, CacheBackendBadger:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCacheBackend, c.CacheBackend)
	}

	if c.NegativeTTL < 0 {
		return ErrInvalidNegativeTTL
	}
	if c.EtherscanRPS < 0 || c.MetadockRPS < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// Validate checks the configuration of a crawl.
// It returns a specific error describing what is invalid.
//
// The crawl always reads transfers from Etherscan, so an API key and chain
// id are required even when Etherscan is not a label provider.
func (c *Config) Validate() error {
	if _, err := c.RootAddress(); err != nil {
		return err
	}
	if _, err := c.CrawlSettings(); err != nil {
		return err
	}
	if strings.TrimSpace(c.EtherscanAPIKey) == "" {
		return ErrNoEtherscanKey
	}
	if c.ChainID <= 0 {
		return ErrInvalidChainID
	}
	return c.ValidateLabeling()
}
