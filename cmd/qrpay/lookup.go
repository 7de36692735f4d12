package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/internal/session"
)

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup",
		Short: "Check the status of the last payment code issued on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := cfg.OpenStore(ctx)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			fq := session.NewFallbackQuery(cfg.GatewayClient(), logger)
			ref, failure, err := session.Lookup(ctx, store, fq)
			if errors.Is(err, refstore.ErrNotFound) {
				return fmt.Errorf("no payment reference stored under %q", refstore.Key)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "retrieval ref: %s\n", ref)
			if failure != nil {
				fmt.Fprintf(out, "status:        not paid (%s: %s)\n", failure.Code, failure.Message)
				return nil
			}
			fmt.Fprintln(out, "status:        paid")
			return nil
		},
	}
}
