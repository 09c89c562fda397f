// Package crawler walks the on-chain transfer graph outward from a root
// address.
//
// # Architecture
//
// The package is built around the Engine type. An Engine combines a
// GraphProvider (edges of an address), a LabelResolver (batch label lookup,
// normally *label.Cache) and a Sink (where events go). A crawl keeps an
// explicit work stack or frontier queue, so arbitrarily deep graphs never
// grow the call stack.
//
// # Termination
//
// Expansion stops at three kinds of node:
//   - nodes whose children would exceed CrawlSettings.MaxDepth
//   - nodes that already carry a label
//   - nodes already present in the VisitedSet
//
// The visited set is the only state shared between concurrently expanded
// nodes. TryAdd is an atomic check-and-insert, so every address is
// discovered, emitted and expanded at most once per crawl.
//
// # Output
//
// Each expansion is emitted as one contiguous block: its retained edges
// followed by the nodes it discovered. LineSink renders the block in the
// line format parsed by model.ParseLine.
//
// # Usage
//
//	engine := crawler.New(graph, cache, crawler.NewLineSink(os.Stdout))
//	stats, err := engine.Crawl(ctx, root, model.DefaultCrawlSettings())
package crawler
