package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/coinledger/internal/checkout"
	"github.com/punchamoorthee/coinledger/internal/pricing"
)

type cartOutput struct {
	CartID      string          `json:"cart_id"`
	State       string          `json:"state"`
	Balance     *int64          `json:"balance,omitempty"`
	CanRedeem   bool            `json:"can_redeem"`
	CanRemove   bool            `json:"can_remove"`
	Summary     pricing.Summary `json:"summary"`
	Selected    []string        `json:"selected,omitempty"`
	LastFailure string          `json:"error,omitempty"`
}

func newCartCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cart <cart-id>",
		Short: "Show a cart's line prices, totals and redemption state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, g, args[0], func(v *checkout.View) error {
				return printCart(cmd.OutOrStdout(), g, v)
			})
		},
	}
}

func newRedeemCmd(g *globalFlags) *cobra.Command {
	var variants []string
	cmd := &cobra.Command{
		Use:   "redeem <cart-id>",
		Short: "Apply coins to a cart",
		Long:  "Apply coins to a cart. Coin-only items are always redeemed; pass --variant for each item that may be paid either way and should use coins.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, g, args[0], func(v *checkout.View) error {
				for _, id := range variants {
					if _, err := v.Toggle(id); err != nil {
						return err
					}
				}
				if !v.Snapshot().CanRedeem() {
					return fmt.Errorf("coins cannot be applied to cart %s right now", args[0])
				}
				if err := v.Commit(cmd.Context()); err != nil {
					return fmt.Errorf("%s", v.Snapshot().Error)
				}
				return printCart(cmd.OutOrStdout(), g, v)
			})
		},
	}
	cmd.Flags().StringSliceVar(&variants, "variant", nil, "variant id to pay with coins (repeatable)")
	return cmd
}

func newRevertCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "revert <cart-id>",
		Aliases: []string{"remove"},
		Short:   "Remove applied coins from a cart and refund them",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd, g, args[0], func(v *checkout.View) error {
				if err := v.Revert(cmd.Context()); err != nil {
					return fmt.Errorf("%s", v.Snapshot().Error)
				}
				return printCart(cmd.OutOrStdout(), g, v)
			})
		},
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <cart-id>",
		Short: "Re-print a cart whenever its totals or the coin balance change",
		Long:  "Re-print a cart whenever its totals or the coin balance change. Changes made by other processes are seen when REDIS_URL is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withView(cmd, g, args[0], func(v *checkout.View) error {
				if err := printCart(cmd.OutOrStdout(), g, v); err != nil {
					return err
				}
				changed := make(chan struct{}, 1)
				unsubscribe := v.OnChange(func() {
					select {
					case changed <- struct{}{}:
					default:
					}
				})
				defer unsubscribe()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-changed:
						fmt.Fprintln(cmd.OutOrStdout())
						if err := printCart(cmd.OutOrStdout(), g, v); err != nil {
							return err
						}
					}
				}
			})
		},
	}
}

func withView(cmd *cobra.Command, g *globalFlags, cartID string, fn func(*checkout.View) error) error {
	if _, err := g.json(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := checkout.Open(ctx, s.checkoutDeps(), cartID)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(v)
}

func printCart(w io.Writer, g *globalFlags, v *checkout.View) error {
	snap := v.Snapshot()
	if asJSON, _ := g.json(); asJSON {
		return writeJSON(w, cartOutput{
			CartID:      snap.Cart.ID,
			State:       string(snap.State()),
			Balance:     snap.Balance,
			CanRedeem:   snap.CanRedeem(),
			CanRemove:   snap.CanRemove(),
			Summary:     snap.Summary,
			Selected:    v.SelectedIDs(),
			LastFailure: snap.Error,
		})
	}

	code := snap.Cart.CurrencyCode
	fmt.Fprintf(w, "Cart %s\n", snap.Cart.ID)
	for _, item := range snap.Cart.Items {
		mark := " "
		if v.IsSelected(item.VariantID) || snap.Cart.CoversVariant(item.VariantID) {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-24s x%-3d %s\n", mark, item.VariantID, item.Quantity, pricing.RenderPrice(v.LinePrice(item), code))
	}
	fmt.Fprintln(w)
	if err := pricing.Render(w, snap.Summary); err != nil {
		return err
	}
	if snap.ShowRedemption() {
		fmt.Fprintf(w, "\nBalance: %s  Coins: %s\n", pricing.FormatCoins(*snap.Balance), snap.State())
	}
	if snap.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", snap.Error)
	}
	return nil
}
