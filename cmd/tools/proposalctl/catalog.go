package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-proposal/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate price catalogs",
	}
	cmd.AddCommand(newCatalogValidateCmd(), newCatalogModesCmd())
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog file before deploying it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			var doc catalog.Document
			if err := dec.Decode(&doc); err != nil {
				return fmt.Errorf("decode catalog: %w", err)
			}
			report := catalog.Validate(doc)
			out := cmd.OutOrStdout()
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %v\n", w)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			if err := report.Err(); err != nil {
				return fmt.Errorf("catalog %s is invalid (%d errors)", file, len(report.Errors))
			}
			cat, err := catalog.Build(doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ok: version %s, %d categories, %d variants, fingerprint %s\n",
				cat.Version(), len(cat.Categories()), cat.VariantCount(), cat.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog JSON file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCatalogModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List purchase modes with their settlement and fee family",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tLABEL\tSETTLEMENT\tFAMILY")
			for _, m := range catalog.Modes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m, m.Label(), m.Settlement(), m.Family())
			}
			return w.Flush()
		},
	}
}
