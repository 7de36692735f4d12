package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/pkg/errors"
	m "github.com/example/qr-payment-confirm/pkg/metrics"
)

// FallbackQuery asks the gateway once for the authoritative status of a
// reference after the push channel or the countdown gave up.
type FallbackQuery struct {
	gw     Gateway
	logger *slog.Logger
}

func NewFallbackQuery(gw Gateway, logger *slog.Logger) *FallbackQuery {
	return &FallbackQuery{gw: gw, logger: logger.With(slog.String("component", "fallback"))}
}

// Check returns nil when the gateway confirms the payment. The trigger
// (server_timeout or client_timeout) is kept in the failure's error chain.
func (f *FallbackQuery) Check(ctx context.Context, ref, trigger string) *errors.E {
	if ref == "" {
		m.IncFallback(trigger, "skipped")
		return errors.Wrap(errors.CodeFallbackDeclined, "no retrieval reference to check", errors.Code(trigger))
	}

	resp, err := f.gw.Query(ctx, gateway.QueryRequest{TxnRetrievalRef: ref, FrontendTimeoutStatus: 1})
	if err != nil {
		m.IncFallback(trigger, "error")
		f.logger.Warn("status query", slog.String("ref", ref), slog.String("trigger", trigger), slog.Any("err", err))
		return errors.Wrap(errors.CodeNetworkError, "could not confirm the payment status",
			fmt.Errorf("%w: %w", errors.Code(trigger), err))
	}

	if !resp.Succeeded() {
		m.IncFallback(trigger, "declined")
		f.logger.Info("status query declined",
			slog.String("ref", ref),
			slog.String("trigger", trigger),
			slog.String("response_code", resp.ResponseCode),
			slog.Int("txn_status", resp.TxnStatus))
		failure := errors.Wrap(errors.CodeFallbackDeclined, "Payment was not completed", errors.Code(trigger))
		failure.GatewayCode = resp.ResponseCode
		return failure
	}

	m.IncFallback(trigger, "confirmed")
	return nil
}
