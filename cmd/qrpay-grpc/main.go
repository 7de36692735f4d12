// cmd/qrpay-grpc/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/qr-payment-confirm/internal/config"
	"github.com/example/qr-payment-confirm/internal/grpcserver"
	"github.com/example/qr-payment-confirm/internal/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("QRPAY_CONFIG"))
	if err != nil {
		log.Fatalf("[qrpay-grpc] load config: %v", err)
	}
	logger := cfg.Logger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		log.Fatalf("[qrpay-grpc] open %s store: %v", cfg.Store.Driver, err)
	}
	defer store.Close()

	engine := session.NewEngine(cfg.EngineConfig(), session.Deps{
		Gateway: cfg.GatewayClient(),
		Source:  cfg.NotifySource(),
		Store:   store,
		Logger:  logger,
	})
	defer engine.Close()

	log.Printf("[qrpay-grpc] gateway %s, notify via %s", cfg.Gateway.BaseURL, cfg.Notify.Transport)
	srv := &grpcserver.SessionServer{Engine: engine, NotifyMobile: cfg.Session.NotifyMobile, Logger: logger}
	if err := grpcserver.Run(ctx, cfg.GRPC.Addr, cfg.Metrics.Addr, srv, logger); err != nil {
		log.Printf("[qrpay-grpc] %v", err)
		return
	}
	log.Println("[qrpay-grpc] bye")
}
