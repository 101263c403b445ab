package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"suitcase/internal/address"
	"suitcase/internal/balance"
	"suitcase/internal/endpoint"
)

func (a *app) newBalancesCmd() *cobra.Command {
	var (
		coinType string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "balances <owner>...",
		Short: "Fetch the balance of many owners",
		Long: `Fetches the balance of every owner in batches spread over the endpoint pool.
Failed requests are retried on the next endpoint until they succeed, or until
maxPasses is reached when it is configured.`,
		Example: `  suitcase balances 0x2f3a... 0x77c1... --coin-type 0x2::sui::SUI --mode compact`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			displayMode, err := balance.ParseMode(mode)
			if err != nil {
				return err
			}

			owners := make([]string, len(args))
			for i, arg := range args {
				owners[i], err = address.Normalize(arg)
				if err != nil {
					return err
				}
			}

			client, err := a.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.FormattedBalances(cmd.Context(), owners, coinType, displayMode)
			if result == nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OWNER\tBALANCE\tDISPLAY")
			for _, b := range result {
				if b.Total == nil {
					fmt.Fprintf(w, "%s\t-\tfailed\n", address.Shorten(b.Owner, 6, 4))
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", address.Shorten(b.Owner, 6, 4), b.Exact, b.Display)
			}
			if flushErr := w.Flush(); flushErr != nil {
				return flushErr
			}

			return err
		},
	}

	cmd.Flags().StringVar(&coinType, "coin-type", endpoint.SuiCoinType, "coin type to query")
	cmd.Flags().StringVar(&mode, "mode", balance.Standard.String(), "display mode: standard or compact")

	return cmd
}
