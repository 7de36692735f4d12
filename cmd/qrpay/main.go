package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/qr-payment-confirm/internal/config"
	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/internal/session"
)

var Version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "qrpay",
		Short:         "qrpay - QR payment requests with push confirmation and status fallback",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("QRPAY_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr in text format")

	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(sandboxCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, commandLogger(cfg), nil
}

// commandLogger keeps interactive commands quiet unless -v is given.
func commandLogger(cfg *config.Config) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.Log.Format = "text"
	return cfg.Logger(os.Stderr)
}

// newEngine builds an engine from cfg; the returned func releases it and its store.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session.Engine, refstore.Store, func(), error) {
	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	engine := session.NewEngine(cfg.EngineConfig(), session.Deps{
		Gateway: cfg.GatewayClient(),
		Source:  cfg.NotifySource(),
		Store:   store,
		Logger:  logger,
	})
	return engine, store, func() {
		_ = engine.Close()
		_ = store.Close()
	}, nil
}
