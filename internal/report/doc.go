// Package report summarizes crawl event streams.
//
// A Collector receives events either directly from the crawl engine (it
// satisfies the engine's sink interface) or from a saved stream through
// ReadStream, and accumulates a Summary: node and edge counts, nodes per
// depth and the labels found.
//
// Writers render a Summary in different formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown with a mermaid pie chart of the labels found
//   - JSONWriter: Structured JSON output for tool integration
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
