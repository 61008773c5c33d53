package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nota/internal/core"
)

func newTitleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "title DATE",
		Short: "Print the ledger tab a receipt date routes to",
		Long:  `Print the ledger tab title for an ISO date (YYYY-MM-DD). An unreadable date routes to the current month.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), core.TabTitleFor(args[0], time.Now()))
			return err
		},
	}
}
