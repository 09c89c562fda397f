package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
var (
	// ErrNoRoot is returned when no root address is given to crawl.
	ErrNoRoot = errors.New("no root address specified")

	// ErrNoEtherscanKey is returned when an Etherscan API key is required
	// but neither the config file nor ETHERSCAN_API_KEY provides one.
	ErrNoEtherscanKey = errors.New("etherscan API key required: set etherscan.apiKey in the config file or " + EnvEtherscanAPIKey)

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidChainID is returned when the chain id is not positive.
	ErrInvalidChainID = errors.New("invalid chain id: must be positive")

	// ErrUnknownProvider is returned for a label provider name that is not supported.
	ErrUnknownProvider = errors.New("unknown label provider")

	// ErrUnknownCacheBackend is returned for a cache backend that is not supported.
	ErrUnknownCacheBackend = errors.New("unknown cache backend")

	// ErrInvalidNegativeTTL is returned when the negative cache TTL is negative.
	// Use 0 to disable negative caching.
	ErrInvalidNegativeTTL = errors.New("invalid negative TTL: must be non-negative")

	// ErrInvalidRateLimit is returned when a requests-per-second value is negative.
	// Use 0 to disable client-side rate limiting.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")
)
