package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"suitcase/internal/balance"
)

const defaultDecimals = 9

func newConvertCmd() *cobra.Command {
	var decimals uint

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between base-unit integers and decimal strings",
	}

	toString := &cobra.Command{
		Use:     "to-string <base-units>",
		Short:   "Render a base-unit integer as a decimal string",
		Example: `  suitcase convert to-string 123456 --decimals 3   # 123.456`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseInteger(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance.BalanceToString(v, decimals))
			return nil
		},
	}

	toBalance := &cobra.Command{
		Use:     "to-balance <decimal>",
		Short:   "Parse a decimal string into base units, truncating extra digits",
		Example: `  suitcase convert to-balance 1.23456 --decimals 3   # 1234`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := balance.StringToBalance(args[0], decimals)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return nil
		},
	}

	cmd.PersistentFlags().UintVarP(&decimals, "decimals", "d", defaultDecimals, "number of decimals of the coin")
	cmd.AddCommand(toString, toBalance)

	return cmd
}

func newFormatCmd() *cobra.Command {
	var (
		decimals uint
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "format <value>",
		Short: "Format a value for display",
		Long: `Formats a value with thousands separators, or with M, B and T suffixes in compact mode.
With --decimals the value is read as a base-unit integer and scaled down first.`,
		Example: `  suitcase format 1234567 --mode compact            # 1.23M
  suitcase format 1500000000 --decimals 9          # 1.50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			displayMode, err := balance.ParseMode(mode)
			if err != nil {
				return err
			}

			if decimals > 0 {
				v, err := parseInteger(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), balance.FormatBalance(v, decimals, displayMode))
				return nil
			}

			f, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", balance.ErrInvalidInput, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance.FormatNumber(f, displayMode))
			return nil
		},
	}

	cmd.Flags().UintVarP(&decimals, "decimals", "d", 0, "read the value as base units with this many decimals")
	cmd.Flags().StringVar(&mode, "mode", balance.Standard.String(), "display mode: standard or compact")

	return cmd
}

func parseInteger(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", balance.ErrInvalidInput, s)
	}
	return v, nil
}
