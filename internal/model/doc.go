// Package model defines the core data structures shared by the crawler,
// the label cache and the report writers.
//
// This package contains the following main types:
//   - Address: a 20-byte account address, parsed with EIP-55 checksum checks
//   - Edge: an aggregated transfer relationship between two addresses
//   - NodeEvent and EdgeEvent: the records of the crawl event stream
//   - CrawlSettings: the immutable limits of one crawl run
//
// Events render to a stable one-line form (see NodeEvent.Line and
// EdgeEvent.Line) and ParseLine reads that form back, so a saved stream
// can be summarized later.
package model
