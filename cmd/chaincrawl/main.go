// Package main provides the entry point for the chaincrawl CLI.
//
// chaincrawl walks the transfer graph of an address outwards, labels every
// counterparty it finds through a persistent label cache, and stops at
// addresses that are already explained (exchanges, bridges, known
// contracts).
//
// Usage:
//
//	chaincrawl crawl <address>
//	chaincrawl label <address>...
//	chaincrawl summarize [file]
//
// See --help for all available options.
package main

// main is the entry point for chaincrawl.
func main() {
	Execute()
}
