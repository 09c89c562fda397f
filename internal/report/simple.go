package report

import (
	"fmt"
	"io"
	"strings"
)

// defaultTopLabels is the number of labels listed when not verbose.
const defaultTopLabels = 10

// SimpleWriter outputs human-readable text summaries.
// This format is designed for terminal display with clear section formatting.
type SimpleWriter struct {
	baseWriter

	// verbose lists every labelled node instead of the label tally only.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeDepths(&sb, summary)
	w.writeLabels(&sb, summary)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the title and the totals.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	root := "(unknown)"
	if s.HasRoot() {
		root = s.Root.String()
	}
	fmt.Fprintf(sb, "Root:          %s\n", root)
	fmt.Fprintf(sb, "Nodes:         %d\n", s.Nodes)
	fmt.Fprintf(sb, "Edges:         %d (%d transactions)\n", s.Edges, s.Transactions)
	fmt.Fprintf(sb, "Labelled:      %d\n", len(s.Labelled))
	fmt.Fprintf(sb, "Unlabelled:    %d\n", s.Unlabelled)
	fmt.Fprintf(sb, "Max depth:     %d\n", s.MaxDepth)
	if s.Skipped > 0 {
		fmt.Fprintf(sb, "Skipped lines: %d\n", s.Skipped)
	}
	sb.WriteString("\n")
}

// writeDepths writes the nodes-per-depth table.
func (w *SimpleWriter) writeDepths(sb *strings.Builder, s *Summary) {
	writeSection(sb, "NODES BY DEPTH")

	depths := s.Depths()
	if len(depths) == 0 {
		sb.WriteString("  No nodes\n\n")
		return
	}
	for _, d := range depths {
		fmt.Fprintf(sb, "  depth %-3d %d\n", d, s.ByDepth[d])
	}
	sb.WriteString("\n")
}

// writeLabels writes the label tally and, when verbose, each labelled node.
func (w *SimpleWriter) writeLabels(sb *strings.Builder, s *Summary) {
	writeSection(sb, "LABELS")

	if len(s.Labelled) == 0 {
		sb.WriteString("  No labelled nodes\n\n")
		return
	}

	limit := defaultTopLabels
	if w.verbose {
		limit = 0
	}
	top := s.TopLabels(limit)
	for _, lc := range top {
		fmt.Fprintf(sb, "  [+] %s (%d)\n", lc.Label, lc.Count)
	}
	if rest := len(s.Labels) - len(top); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more\n", rest)
	}
	sb.WriteString("\n")

	if !w.verbose {
		return
	}
	for _, n := range s.Labelled {
		fmt.Fprintf(sb, "  %s  depth=%d  %s\n", n.Address, n.Depth, n.Label)
	}
	sb.WriteString("\n")
}

// writeFooter writes the summary footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
