package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/internal/notify"
	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/internal/session"
)

func (c *Config) GatewayClient() *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURL:     c.Gateway.BaseURL,
		APIKey:      c.Gateway.APIKey,
		ProjectID:   c.Gateway.ProjectID,
		RequestPath: c.Gateway.RequestPath,
		QueryPath:   c.Gateway.QueryPath,
		Timeout:     c.Gateway.Timeout,
	})
}

func (c *Config) NotifySource() notify.Source {
	if c.Notify.Transport == "kafka" {
		return notify.NewKafkaSource(notify.KafkaConfig{
			Brokers:  c.Notify.KafkaBrokers,
			Topic:    c.Notify.KafkaTopic,
			Lookback: c.Notify.KafkaLookback,
		})
	}
	return notify.NewSSESource(notify.SSEConfig{
		BaseURL:          c.Gateway.BaseURL,
		WebhookPath:      c.Notify.WebhookPath,
		APIKey:           c.Gateway.APIKey,
		ProjectID:        c.Gateway.ProjectID,
		HeartbeatTimeout: c.Notify.HeartbeatTimeout,
	})
}

func (c *Config) OpenStore(ctx context.Context) (refstore.Store, error) {
	switch c.Store.Driver {
	case "memory":
		return refstore.NewMemory(), nil
	case "sqlite":
		return refstore.OpenSQLite(c.Store.Path)
	case "postgres":
		return refstore.OpenPostgres(ctx, c.Store.DSN, c.Store.Namespace)
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

func (c *Config) EngineConfig() session.Config {
	return session.Config{
		ConfirmTimeout: c.Session.ConfirmTimeout,
		TickInterval:   c.Session.TickInterval,
		TxnIDPrefix:    c.Session.TxnIDPrefix,
	}
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
