package session

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/pkg/errors"
)

func queryReturning(resp *gateway.QueryResponse, err error) func(context.Context, gateway.QueryRequest) (*gateway.QueryResponse, error) {
	return func(context.Context, gateway.QueryRequest) (*gateway.QueryResponse, error) { return resp, err }
}

func TestFallback_Confirmed(t *testing.T) {
	gw := &fakeGateway{query: queryReturning(&gateway.QueryResponse{ResponseCode: "00", TxnStatus: 1}, nil)}

	failure := NewFallbackQuery(gw, discardLogger()).Check(context.Background(), "R1", errors.CodeClientTimeout)
	require.Nil(t, failure)
	require.Equal(t, []gateway.QueryRequest{{TxnRetrievalRef: "R1", FrontendTimeoutStatus: 1}}, gw.queries)
}

func TestFallback_Declined(t *testing.T) {
	gw := &fakeGateway{query: queryReturning(&gateway.QueryResponse{ResponseCode: "00", TxnStatus: 0}, nil)}

	failure := NewFallbackQuery(gw, discardLogger()).Check(context.Background(), "R1", errors.CodeServerTimeout)
	require.NotNil(t, failure)
	require.Equal(t, errors.CodeFallbackDeclined, failure.Code)
	require.Equal(t, "00", failure.GatewayCode)
	require.ErrorIs(t, failure, errors.Code(errors.CodeServerTimeout))
}

func TestFallback_NetworkError(t *testing.T) {
	boom := stderrors.New("timeout awaiting headers")
	gw := &fakeGateway{query: queryReturning(nil, boom)}

	failure := NewFallbackQuery(gw, discardLogger()).Check(context.Background(), "R1", errors.CodeClientTimeout)
	require.NotNil(t, failure)
	require.Equal(t, errors.CodeNetworkError, failure.Code)
	require.ErrorIs(t, failure, boom)
	require.ErrorIs(t, failure, errors.Code(errors.CodeClientTimeout))
}

func TestFallback_EmptyReferenceSkipsCall(t *testing.T) {
	gw := &fakeGateway{}

	failure := NewFallbackQuery(gw, discardLogger()).Check(context.Background(), "", errors.CodeClientTimeout)
	require.NotNil(t, failure)
	require.Equal(t, errors.CodeFallbackDeclined, failure.Code)
	require.Zero(t, gw.queryCount())
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	store := refstore.NewMemory()
	gw := &fakeGateway{query: queryReturning(&gateway.QueryResponse{ResponseCode: "00", TxnStatus: 1}, nil)}
	fq := NewFallbackQuery(gw, discardLogger())

	_, _, err := Lookup(ctx, store, fq)
	require.ErrorIs(t, err, refstore.ErrNotFound)

	require.NoError(t, store.Save(ctx, refstore.Key, "R7"))
	ref, failure, err := Lookup(ctx, store, fq)
	require.NoError(t, err)
	require.Equal(t, "R7", ref)
	require.Nil(t, failure)
}
