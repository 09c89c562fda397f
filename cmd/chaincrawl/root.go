package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for chaincrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaincrawl",
		Short: "Crawl and label the transfer graph around an address",
		Long: `chaincrawl explores the transfer graph around a blockchain address.

Starting from a root address it follows incoming and outgoing transfers hop
by hop, labels each new counterparty (exchange, bridge, contract name) and
keeps expanding only the addresses no provider could label. Every node and
edge is written to stdout as one line, ready for visualization.

Labels are cached on disk, so repeated crawls cost no API calls for
addresses already seen.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .chaincrawl in current or home directory)")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewLabelCmd())
	cmd.AddCommand(NewSummarizeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
