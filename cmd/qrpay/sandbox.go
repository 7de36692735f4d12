package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/qr-payment-confirm/internal/notify"
	"github.com/example/qr-payment-confirm/internal/sandbox"
)

func sandboxCmd() *cobra.Command {
	var addr, scenarios string

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local gateway that issues codes and plays scripted outcomes",
		Long: `Run a local stand-in for the payment gateway.

Amounts listed in the scenarios CSV follow their script; any other amount is
confirmed after sandbox.scan_after. Point gateway.base_url at this server.

Examples:
  qrpay sandbox --addr :8089
  qrpay sandbox --scenarios testdata/scenarios.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cfg.Logger(os.Stderr)
			if cmd.Flags().Changed("addr") {
				cfg.Sandbox.Addr = addr
			}
			if cmd.Flags().Changed("scenarios") {
				cfg.Sandbox.Scenarios = scenarios
			}

			var script []sandbox.Scenario
			if cfg.Sandbox.Scenarios != "" {
				f, err := os.Open(cfg.Sandbox.Scenarios)
				if err != nil {
					return fmt.Errorf("open scenarios: %w", err)
				}
				script, err = sandbox.LoadScenarios(f)
				f.Close()
				if err != nil {
					return err
				}
			}

			var pub sandbox.Publisher
			if len(cfg.Sandbox.KafkaBrokers) > 0 {
				kp := notify.NewKafkaPublisher(cfg.Sandbox.KafkaBrokers, cfg.Sandbox.KafkaTopic)
				defer kp.Close()
				pub = kp
			}

			sb := sandbox.New(sandbox.Config{
				APIKey:      cfg.Gateway.APIKey,
				ScanAfter:   cfg.Sandbox.ScanAfter,
				RequestPath: cfg.Gateway.RequestPath,
				QueryPath:   cfg.Gateway.QueryPath,
				WebhookPath: cfg.Notify.WebhookPath,
			}, script, pub, logger)
			defer sb.Close()

			return serveHTTP(cmd.Context(), cfg.Sandbox.Addr, sb.Handler(), logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8089", "listen address")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "scenarios CSV (amount,outcome,after,response_code,paid_on_query)")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("sandbox listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("sandbox shutting down")
	// SSE streams never finish by themselves
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}
