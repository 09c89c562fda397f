package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// pieChartSlices is the number of labels drawn in the pie chart; the rest
// are folded into "other".
const pieChartSlices = 8

// MarkdownWriter outputs summaries in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeDepths(md, summary)
	w.writeLabels(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the title and totals table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Crawl Summary")
	md.PlainText("")

	root := "-"
	if s.HasRoot() {
		root = "`" + s.Root.String() + "`"
	}
	rows := [][]string{
		{"Root", root},
		{"Nodes", strconv.Itoa(s.Nodes)},
		{"Edges", strconv.Itoa(s.Edges)},
		{"Transactions", strconv.Itoa(s.Transactions)},
		{"Labelled", strconv.Itoa(len(s.Labelled))},
		{"Unlabelled", strconv.Itoa(s.Unlabelled)},
		{"Max depth", strconv.Itoa(s.MaxDepth)},
	}
	if s.Skipped > 0 {
		rows = append(rows, []string{"Skipped lines", strconv.Itoa(s.Skipped)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Skipped > 0 {
		md.Warningf("%d line(s) of the stream were not event records and were ignored.", s.Skipped)
		md.PlainText("")
	}
}

// writeDepths writes the nodes-per-depth table.
func (w *MarkdownWriter) writeDepths(md *markdown.Markdown, s *Summary) {
	md.H2("Nodes by Depth")
	md.PlainText("")

	depths := s.Depths()
	if len(depths) == 0 {
		md.PlainText("No nodes.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(depths))
	for i, d := range depths {
		rows[i] = []string{strconv.Itoa(d), strconv.Itoa(s.ByDepth[d])}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Depth", "Nodes"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeLabels writes the label distribution and the labelled nodes.
func (w *MarkdownWriter) writeLabels(md *markdown.Markdown, s *Summary) {
	md.H2("Labels")
	md.PlainText("")

	if len(s.Labelled) == 0 {
		md.Note("No node in this crawl could be labelled.")
		md.PlainText("")
		return
	}

	w.writePieChart(md, s)

	rows := make([][]string, len(s.Labelled))
	for i, n := range s.Labelled {
		rows[i] = []string{"`" + n.Address.String() + "`", n.Label, strconv.Itoa(n.Depth)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Label", "Depth"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of labelled nodes per label.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Labelled Nodes"),
		piechart.WithShowData(true),
	)

	all := s.TopLabels(0)
	var other int
	for i, lc := range all {
		if i >= pieChartSlices {
			other += lc.Count
			continue
		}
		chart.LabelAndIntValue(lc.Label, uint64(lc.Count))
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Summary generated by [chaincrawl](https://github.com/nao1215/chaincrawl)*")
}
