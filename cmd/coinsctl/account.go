package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/coinledger/internal/account"
	"github.com/punchamoorthee/coinledger/internal/pricing"
)

func newBalanceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the customer's coin balance",
		Args:  cobra.NoArgs,
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

			bal, ok := s.points.Balance(cmd.Context())
			if asJSON {
				out := map[string]interface{}{"available": ok}
				if ok {
					out["coins"] = bal.Balance
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Coins unavailable")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Available\n", pricing.FormatCoins(bal.Balance))
			return nil
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the coin balance and transaction history",
		Args:  cobra.NoArgs,
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

			view, err := account.Load(cmd.Context(), s.client, s.points)
			if errors.Is(err, account.ErrNotFound) {
				return errors.New("log in to see your coin history (set --token or CUSTOMER_TOKEN)")
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return view.Render(cmd.OutOrStdout())
		},
	}
}
