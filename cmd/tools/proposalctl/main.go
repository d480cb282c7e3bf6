package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "proposalctl",
		Short: "Green Garden proposal tooling",
		Long: `Operator tooling for the proposal service: price a selection offline,
validate catalog files before they are deployed, and manage the agent roster workbook.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("verbose", false, "log debug output to stderr")
	root.AddCommand(newQuoteCmd(), newCatalogCmd(), newAgentCmd())
	return root
}

func cliLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}
