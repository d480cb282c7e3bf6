package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-proposal/internal/agent"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the authorized agent roster workbook",
	}
	cmd.AddCommand(newAgentSampleCmd(), newAgentListCmd(), newAgentHashCmd())
	return cmd
}

func newAgentSampleCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write the sample roster workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", out)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := agent.WriteSample(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "authorized_agents.xlsx", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the agents in a roster workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := agent.Load(file)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tSTATUS\tPASSCODE")
			for _, a := range roster.Agents() {
				passcode := "-"
				if a.RequiresPasscode() {
					passcode = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Department, a.Status, passcode)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", "authorized_agents.xlsx", "roster workbook")
	return cmd
}

func newAgentHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passcode <passcode>",
		Short: "Print the argon2id hash for the roster passcode_hash column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := agent.HashPasscode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
