// Package etherscan adapts the Etherscan API to the crawler.
//
// GraphProvider turns account/txlist into transfer edges, aggregated per
// (from, to) pair with their transaction hashes. ContractLabeler is a
// label.Provider that names verified contracts via contract/getsourcecode.
//
// Both share a Client, which targets the v2 multichain endpoint, applies a
// client-side rate limit (golang.org/x/time/rate) and classifies failures
// as label.ProviderError values: HTTP 429 and "rate limit" envelopes are
// rate-limited, 5xx and decode failures are transient, and bad keys or
// unsupported chains are fatal.
package etherscan
