package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	backendURL string
	token      string
	output     string
	verbose    bool
}

// NewRootCmd returns the root command for the coins storefront CLI.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "coinsctl",
		Short:         "Storefront coins CLI",
		Long:          "coinsctl reads coin balances and cart totals and applies or removes coin redemptions against the points backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.backendURL, "url", "", "points backend base URL (default: $BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&g.token, "token", "", "customer bearer token (default: $CUSTOMER_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&g.output, "output", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log backend calls to stderr")

	rootCmd.AddCommand(newBalanceCmd(g))
	rootCmd.AddCommand(newHistoryCmd(g))
	rootCmd.AddCommand(newCartCmd(g))
	rootCmd.AddCommand(newRedeemCmd(g))
	rootCmd.AddCommand(newRevertCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))
	rootCmd.AddCommand(newPriceCmd(g))
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

func (g *globalFlags) json() (bool, error) {
	switch g.output {
	case "", "text":
		return false, nil
	case "json":
		return true, nil
	}
	return false, fmt.Errorf("unknown output format %q", g.output)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
