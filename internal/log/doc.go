// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (API keys, tokens, secrets)
//   - Masking of credentials carried in request URLs and wrapped errors
//   - Configurable log levels with verbose mode support
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, X-Api-Key)
//   - Attributes whose key names a secret (password, token, api_key, ...)
//   - Secret values detected by pattern matching (JWT, bearer, long API keys)
//   - apikey= query parameters inside URLs and error messages
//
// Addresses and transaction hashes are 0x-prefixed hex and are never masked,
// even though they are as long as the API keys matched by pattern.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("request sent",
//	    "url", "https://api.etherscan.io/v2/api?apikey=K&module=account",
//	    "address", "0xdac17f958d2ee523a2206206994597c13d831ec7",
//	)
//	// url=https://api.etherscan.io/v2/api?apikey=***REDACTED***&module=account
//
//	slog.SetDefault(logger)
package log
