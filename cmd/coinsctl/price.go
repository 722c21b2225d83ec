package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/coinledger/internal/policy"
	"github.com/punchamoorthee/coinledger/internal/pricing"
)

func newPriceCmd(g *globalFlags) *cobra.Command {
	var (
		amount   int64
		original int64
		currency string
		chosen   bool
	)
	cmd := &cobra.Command{
		Use:   "price <variant-id>",
		Short: "Render a product price with the variant's coin policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := g.json()
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			resolver := policy.NewResolver(s.client, 1, s.logger)
			cfg := resolver.Lookup(cmd.Context(), args[0])
			view := pricing.ProductPrice(cfg, pricing.CatalogPrice{
				Calculated: amount,
				Original:   original,
				Sale:       original > amount,
			}, chosen)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			line := pricing.RenderPrice(view.PriceView, currency)
			if view.FromPrefix {
				line = "From " + line
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "calculated price in minor units")
	cmd.Flags().Int64Var(&original, "original", 0, "original price in minor units, when on sale")
	cmd.Flags().StringVar(&currency, "currency", "usd", "ISO currency code")
	cmd.Flags().BoolVar(&chosen, "chosen", false, "the variant was picked explicitly")
	return cmd
}
