package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/export"
	"github.com/noah-isme/backend-proposal/internal/money"
	"github.com/noah-isme/backend-proposal/internal/pricing"
	"github.com/noah-isme/backend-proposal/internal/proposal"
)

func newQuoteCmd() *cobra.Command {
	var (
		selectionPath string
		catalogPath   string
		output        string
		xlsxPath      string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a selection file against a catalog",
		Example: `  proposalctl quote --selection lines.json
  proposalctl quote --selection lines.json --catalog catalog.json --output json
  proposalctl quote --selection lines.json --xlsx proposal.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := cliLogger(cmd)
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}
			log.Debug().Str("version", cat.Version()).Msg("catalog loaded")

			sel, err := readSelection(selectionPath)
			if err != nil {
				return err
			}
			summary, err := pricing.Compute(proposal.Normalize(sel), cat)
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				f, err := os.Create(xlsxPath)
				if err != nil {
					return err
				}
				if err := export.Write(f, summary, export.Meta{AgentID: "proposalctl"}); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				log.Info().Str("path", xlsxPath).Msg("workbook written")
			}
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(proposal.NewQuoteView(summary))
			case "table":
				return printSummary(cmd, summary)
			default:
				return fmt.Errorf("unknown output %q: use table or json", output)
			}
		},
	}
	cmd.Flags().StringVar(&selectionPath, "selection", "", "JSON file with {\"lines\":[...]} (required)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog JSON file (default: embedded catalog)")
	cmd.Flags().StringVar(&output, "output", "table", "output format: table or json")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the proposal workbook to this path")
	_ = cmd.MarkFlagRequired("selection")
	return cmd
}

func readSelection(path string) (pricing.Selection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	var req proposal.QuoteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return req.Selection(), nil
}

func printSummary(cmd *cobra.Command, s pricing.Summary) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "catalog %s (%s)\n\n", s.CatalogVersion, s.Currency)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tITEM\tMODE\tQTY\tORIGINAL\tPRICE\tFEE\tDOWN\tMONTHLY")
	for _, l := range s.Lines {
		monthly := "-"
		if l.Amortized() {
			monthly = money.Format(l.MonthlyProduct.Decimal.Add(l.MonthlyManagement.Decimal))
		}
		fmt.Fprintf(w, "%d\t%s %s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			l.Index+1, l.Category, l.Variant, l.Label(), l.Quantity,
			money.Format(l.OriginalPrice), money.Format(l.DiscountedPrice),
			money.Format(l.ManagementFee), money.Format(l.DownPayment()), monthly)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "original\t%s\n", money.Format(s.TotalOriginal))
	fmt.Fprintf(w, "discounted\t%s\t(%s off)\n", money.Format(s.TotalDiscounted), money.FormatPercent(s.DiscountRate))
	fmt.Fprintf(w, "management fee\t%s\n", money.Format(s.TotalManagementFee))
	fmt.Fprintf(w, "final total\t%s\n", money.Format(s.FinalTotal))
	fmt.Fprintf(w, "due at signing\t%s\n", money.Format(s.DueAtSigning))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(s.Schedule) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIODS\tTOTAL\tPRODUCT\tMANAGEMENT")
	for _, b := range s.Schedule {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Label(), money.Format(b.Total), money.Format(b.Product), money.Format(b.Management))
	}
	return w.Flush()
}
