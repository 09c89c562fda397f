package config

import (
	"time"
)

// EtherscanFile is the etherscan section of the configuration file.
type EtherscanFile struct {
	// APIKey authenticates Etherscan requests. ETHERSCAN_API_KEY overrides it.
	APIKey string `yaml:"apiKey,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"baseURL,omitempty"`

	// ChainID selects the chain (1 is Ethereum mainnet).
	ChainID int64 `yaml:"chainID,omitempty"`

	// RequestsPerSecond is the client-side request rate.
	RequestsPerSecond *float64 `yaml:"requestsPerSecond,omitempty"`
}

// MetadockFile is the metadock section of the configuration file.
type MetadockFile struct {
	// URL overrides the address-label endpoint.
	URL string `yaml:"url,omitempty"`

	// Chain is the chain name sent with requests.
	Chain string `yaml:"chain,omitempty"`

	// RequestsPerSecond is the client-side request rate.
	RequestsPerSecond *float64 `yaml:"requestsPerSecond,omitempty"`
}

// CrawlFile is the crawl section of the configuration file.
// Pointer fields distinguish "not set" from a zero value.
type CrawlFile struct {
	Depth       *int   `yaml:"depth,omitempty"`
	FanOut      *int   `yaml:"fanOut,omitempty"`
	Forward     *bool  `yaml:"forward,omitempty"`
	Backward    *bool  `yaml:"backward,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
	Concurrency *int   `yaml:"concurrency,omitempty"`
}

// CacheFile is the cache section of the configuration file.
type CacheFile struct {
	// Backend selects the label store (sqlite or badger).
	Backend string `yaml:"backend,omitempty"`

	// Dir is the directory holding the label store.
	Dir string `yaml:"dir,omitempty"`

	// NegativeTTL enables per-provider miss records, e.g. "24h".
	NegativeTTL *time.Duration `yaml:"negativeTTL,omitempty"`
}

// File represents the structure of the .chaincrawl configuration file.
type File struct {
	Etherscan EtherscanFile `yaml:"etherscan,omitempty"`
	Metadock  MetadockFile  `yaml:"metadock,omitempty"`
	Crawl     CrawlFile     `yaml:"crawl,omitempty"`
	Cache     CacheFile     `yaml:"cache,omitempty"`

	// Providers lists label providers in the order they are consulted.
	Providers []string `yaml:"providers,omitempty"`

	// Proxy is a SOCKS5 proxy address (host:port).
	Proxy string `yaml:"proxy,omitempty"`

	// Timeout bounds each HTTP request, e.g. "30s".
	Timeout *time.Duration `yaml:"timeout,omitempty"`

	// UserAgent is sent with every HTTP request.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// Apply overrides cfg with every value set in the file.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.EtherscanAPIKey, f.Etherscan.APIKey)
	setString(&cfg.EtherscanBaseURL, f.Etherscan.BaseURL)
	if f.Etherscan.ChainID != 0 {
		cfg.ChainID = f.Etherscan.ChainID
	}
	setPtr(&cfg.EtherscanRPS, f.Etherscan.RequestsPerSecond)

	setString(&cfg.MetadockURL, f.Metadock.URL)
	setString(&cfg.MetadockChain, f.Metadock.Chain)
	setPtr(&cfg.MetadockRPS, f.Metadock.RequestsPerSecond)

	setPtr(&cfg.MaxDepth, f.Crawl.Depth)
	setPtr(&cfg.MaxFanOut, f.Crawl.FanOut)
	setPtr(&cfg.Forward, f.Crawl.Forward)
	setPtr(&cfg.Backward, f.Crawl.Backward)
	setString(&cfg.Mode, f.Crawl.Mode)
	setPtr(&cfg.Concurrency, f.Crawl.Concurrency)

	setString(&cfg.CacheBackend, f.Cache.Backend)
	setString(&cfg.CacheDir, f.Cache.Dir)
	setPtr(&cfg.NegativeTTL, f.Cache.NegativeTTL)

	if len(f.Providers) > 0 {
		cfg.Providers = append([]string(nil), f.Providers...)
	}
	setString(&cfg.ProxyAddress, f.Proxy)
	setPtr(&cfg.Timeout, f.Timeout)
	setString(&cfg.UserAgent, f.UserAgent)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
