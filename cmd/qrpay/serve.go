package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/example/qr-payment-confirm/internal/grpcserver"
)

func serveCmd() *cobra.Command {
	var addr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the payment session over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.GRPC.Addr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			logger := cfg.Logger(os.Stderr)

			ctx := cmd.Context()
			engine, _, release, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer release()

			srv := &grpcserver.SessionServer{Engine: engine, NotifyMobile: cfg.Session.NotifyMobile, Logger: logger}
			return grpcserver.Run(ctx, cfg.GRPC.Addr, cfg.Metrics.Addr, srv, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":50061", "gRPC listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "Prometheus /metrics listen address")
	return cmd
}
