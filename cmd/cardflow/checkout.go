package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/alovak/cardflow-3ds/internal/relay"
	"github.com/alovak/cardflow-3ds/merchant"
)

type checkoutOptions struct {
	gateway     string
	card        string
	month       string
	year        string
	cvv         string
	name        string
	amount      string
	currency    string
	merchantRef string
	timeout     time.Duration
}

// checkoutCmd plays the merchant against a running gateway and prints the
// line it answers with.
func checkoutCmd() *cobra.Command {
	opts := &checkoutOptions{}
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Send one authorization to the gateway and print the challenge reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(opts.amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			req := models.AuthorizationRequest{
				Token:               merchant.NewToken(),
				CardNumber:          opts.card,
				ExpiryMonth:         opts.month,
				ExpiryYear:          opts.year,
				CVV:                 opts.cvv,
				CardholderName:      opts.name,
				Amount:              amount,
				Currency:            opts.currency,
				MerchantCallbackRef: opts.merchantRef,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			gw := relay.New(opts.gateway, "/initiate-payment", models.CodeGatewayUnreachable,
				&http.Client{Timeout: opts.timeout})
			ref, err := gw.Authorize(ctx, req)
			fmt.Fprintf(cmd.ErrOrStderr(), "token: %s\n", req.Token)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), models.ErrorLine(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.gateway, "gateway", "http://localhost:8081", "gateway base URL")
	cmd.Flags().StringVar(&opts.card, "card", "1234123412341234", "card number")
	cmd.Flags().StringVar(&opts.month, "month", "12", "expiry month (MM)")
	cmd.Flags().StringVar(&opts.year, "year", "2025", "expiry year (YYYY)")
	cmd.Flags().StringVar(&opts.cvv, "cvv", "123", "card verification value")
	cmd.Flags().StringVar(&opts.name, "name", "Joe", "cardholder name")
	cmd.Flags().StringVar(&opts.amount, "amount", "99.99", "amount in major units")
	cmd.Flags().StringVar(&opts.currency, "currency", "USD", "currency code")
	cmd.Flags().StringVar(&opts.merchantRef, "merchant-ref", "merchantXYZ", "merchant callback reference")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 20*time.Second, "overall request timeout")

	return cmd
}
