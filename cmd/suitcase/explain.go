package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"suitcase/internal/txerror"
)

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <execution-error>",
		Short: "Explain a Move abort from a failed transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			fmt.Fprintln(cmd.OutOrStdout(), txerror.NewFrameworkRegistry().Describe(msg))
			return nil
		},
	}
}
