package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/chaincrawl/internal/report"
)

// NewSummarizeCmd creates the summarize command.
func NewSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Summarize a saved crawl stream",
		Long: `Summarize reads a crawl event stream saved from 'chaincrawl crawl' and
reports node and edge counts, nodes per depth and the labels found.
The stream is read from stdin when no file is given. Lines that are not
event records (stray log output, for example) are counted and skipped.

Examples:
  chaincrawl crawl 0x... > graph.txt
  chaincrawl summarize graph.txt

  # Markdown with a pie chart of the labels found
  chaincrawl summarize -f markdown -o summary.md graph.txt

  chaincrawl crawl 0x... | tee graph.txt | chaincrawl summarize`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSummarizeCmd,
	}

	cmd.Flags().StringP("format", "f", string(report.FormatText),
		"Output format: text, markdown or json")
	cmd.Flags().StringP("output", "o", "",
		"Write the summary to this file instead of stdout")

	return cmd
}

// runSummarizeCmd executes the summarize command.
func runSummarizeCmd(cmd *cobra.Command, args []string) error {
	formatName, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open event stream: %w", err)
		}
		defer f.Close()
		in = f
	}

	collector := report.NewCollector()
	if err := collector.ReadStream(in); err != nil {
		return err
	}
	summary := collector.Summary()

	if output != "" {
		return writeSummary(output, format, summary)
	}

	w, err := report.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, err = w.Write(summary)
	return err
}
