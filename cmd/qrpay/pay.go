package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/example/qr-payment-confirm/internal/session"
)

func payCmd() *cobra.Command {
	var (
		amount       string
		txnID        string
		notifyMobile bool
		printEvery   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Request a QR code for an amount and wait for the payment outcome",
		Long: `Request a QR code and follow the payment until it settles.

Examples:
  qrpay pay --amount 3.50
  qrpay pay --amount 10 --txn-id order-42 --notify-mobile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("notify-mobile") {
				notifyMobile = cfg.Session.NotifyMobile
			}

			ctx := cmd.Context()
			engine, _, release, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer release()

			updates, unsubscribe := engine.Subscribe(16)
			defer unsubscribe()

			req := session.PaymentRequest{Amount: amt, CallerTransactionID: txnID, NotifyMobile: notifyMobile}
			if err := engine.Request(ctx, req); err != nil {
				return err
			}
			return follow(ctx, cmd, engine, updates, printEvery)
		},
	}

	cmd.Flags().StringVarP(&amount, "amount", "a", "", "amount in SGD, at most 2 decimal places")
	cmd.Flags().StringVar(&txnID, "txn-id", "", "caller transaction id (generated when empty)")
	cmd.Flags().BoolVar(&notifyMobile, "notify-mobile", false, "ask the gateway to notify the payer's phone")
	cmd.Flags().DurationVar(&printEvery, "print-every", 10*time.Second, "how often to print the countdown")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// follow prints session updates until the payment settles or ctx is canceled,
// in which case the session is reset before returning.
func follow(ctx context.Context, cmd *cobra.Command, engine *session.Engine, updates <-chan session.Session, printEvery time.Duration) error {
	out := cmd.OutOrStdout()
	var last session.Session
	var lastPrint time.Time

	for {
		select {
		case <-ctx.Done():
			resetCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = engine.Reset(resetCtx)
			fmt.Fprintln(out, "canceled")
			return ctx.Err()

		case s, ok := <-updates:
			if !ok {
				return session.ErrClosed
			}

			switch {
			case s.State == session.AwaitingScan && last.State != session.AwaitingScan:
				fmt.Fprintf(out, "amount:         %s %s\n", s.Amount.StringFixed(2), session.Currency)
				fmt.Fprintf(out, "transaction id: %s\n", s.CallerTransactionID)
				fmt.Fprintf(out, "retrieval ref:  %s\n", s.RetrievalReference)
				fmt.Fprintf(out, "qr code:        %s\n", s.CodeImage)
				if s.Warning != "" {
					fmt.Fprintf(out, "warning:        %s\n", s.Warning)
				}
				fmt.Fprintf(out, "waiting for scan, %s left\n", s.Countdown())
				lastPrint = time.Now()

			case s.State == session.AwaitingScan && s.Resolving && !last.Resolving:
				fmt.Fprintln(out, "no confirmation received, checking payment status...")

			case s.State == session.AwaitingScan && time.Since(lastPrint) >= printEvery:
				fmt.Fprintf(out, "%s left\n", s.Countdown())
				lastPrint = time.Now()

			case s.State == session.Succeeded:
				fmt.Fprintln(out, "payment successful")
				return nil

			case s.State == session.Failed:
				fmt.Fprintf(out, "payment failed: %s\n", s.Failure.Message)
				if s.Failure.GatewayCode != "" {
					fmt.Fprintf(out, "gateway response code: %s\n", s.Failure.GatewayCode)
				}
				return fmt.Errorf("payment failed (%s)", s.Failure.Code)
			}
			last = s
		}
	}
}
