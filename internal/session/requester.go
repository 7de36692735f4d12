package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/pkg/errors"
)

// Currency is fixed; amounts are always Singapore dollars.
const Currency = "SGD"

var ErrInvalidAmount = stderrors.New("session: amount must be positive with at most 2 decimal places")

// Gateway is the part of the gateway client the engine needs.
type Gateway interface {
	Create(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResponse, error)
	Query(ctx context.Context, req gateway.QueryRequest) (*gateway.QueryResponse, error)
}

func ValidateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, a.String())
	}
	if !a.Equal(a.Round(2)) {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, a.String())
	}
	return nil
}

// Created is a successful create call.
type Created struct {
	CodePayload string
	Ref         string
}

// Requester performs the single create-payment-code call of a session.
type Requester struct {
	gw     Gateway
	store  refstore.Store
	logger *slog.Logger
}

func NewRequester(gw Gateway, store refstore.Store, logger *slog.Logger) *Requester {
	return &Requester{gw: gw, store: store, logger: logger.With(slog.String("component", "requester"))}
}

// Request issues the create call. It never retries. On success the retrieval
// reference is also written to the reference store.
func (r *Requester) Request(ctx context.Context, req PaymentRequest) (Created, *errors.E) {
	body := gateway.CreateRequest{
		TxnID:        req.CallerTransactionID,
		AmtInDollars: req.Amount.StringFixed(2),
	}
	if req.NotifyMobile {
		body.NotifyMobile = 1
	}

	resp, err := r.gw.Create(ctx, body)
	if err != nil {
		r.logger.Warn("create payment code", slog.String("txn_id", req.CallerTransactionID), slog.Any("err", err))
		return Created{}, errors.Wrap(errors.CodeRequestError, "Network error or failed to get QR", err)
	}

	if !resp.Succeeded() {
		r.logger.Info("create declined",
			slog.String("txn_id", req.CallerTransactionID),
			slog.String("response_code", resp.ResponseCode),
			slog.Int("txn_status", resp.TxnStatus))
		gatewayCode := resp.ResponseCode
		if gatewayCode == "" {
			gatewayCode = "N.A."
		}
		return Created{}, errors.Declined("payment request", gatewayCode, resp.PayerInstruction())
	}

	if resp.TxnRetrievalRef == "" {
		return Created{}, errors.Wrap(errors.CodeRequestError, "gateway returned no retrieval reference", gateway.ErrMalformed)
	}

	r.persist(ctx, resp.TxnRetrievalRef)
	return Created{CodePayload: resp.QRCode, Ref: resp.TxnRetrievalRef}, nil
}

func (r *Requester) persist(ctx context.Context, ref string) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, refstore.Key, ref); err != nil {
		r.logger.Warn("persist retrieval reference", slog.String("ref", ref), slog.Any("err", err))
	}
}
