package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/qr-payment-confirm/internal/gateway"
	"github.com/example/qr-payment-confirm/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	mu      sync.Mutex
	create  func(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResponse, error)
	query   func(ctx context.Context, req gateway.QueryRequest) (*gateway.QueryResponse, error)
	creates []gateway.CreateRequest
	queries []gateway.QueryRequest
}

func (g *fakeGateway) Create(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResponse, error) {
	g.mu.Lock()
	g.creates = append(g.creates, req)
	fn := g.create
	g.mu.Unlock()
	return fn(ctx, req)
}

func (g *fakeGateway) Query(ctx context.Context, req gateway.QueryRequest) (*gateway.QueryResponse, error) {
	g.mu.Lock()
	g.queries = append(g.queries, req)
	fn := g.query
	g.mu.Unlock()
	if fn == nil {
		return &gateway.QueryResponse{ResponseCode: "09"}, nil
	}
	return fn(ctx, req)
}

func (g *fakeGateway) queryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

func approve(ref string) func(context.Context, gateway.CreateRequest) (*gateway.CreateResponse, error) {
	return func(context.Context, gateway.CreateRequest) (*gateway.CreateResponse, error) {
		return &gateway.CreateResponse{
			ResponseCode:    "00",
			TxnStatus:       1,
			QRCode:          "00020101021226530011SG.COM.NETS",
			TxnRetrievalRef: ref,
		}, nil
	}
}

type fakeStream struct {
	ref    string
	msgs   chan notify.Message
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Recv(ctx context.Context) (notify.Message, error) {
	select {
	case <-ctx.Done():
		return notify.Message{}, ctx.Err()
	case <-s.closed:
		return notify.Message{}, notify.ErrStreamClosed
	case msg := <-s.msgs:
		return msg, nil
	case err := <-s.errs:
		return notify.Message{}, err
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeSource struct {
	opened chan *fakeStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{opened: make(chan *fakeStream, 8)}
}

func (s *fakeSource) Open(_ context.Context, ref string) (notify.Stream, error) {
	st := &fakeStream{
		ref:    ref,
		msgs:   make(chan notify.Message, 4),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	s.opened <- st
	return st, nil
}

func (s *fakeSource) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case st := <-s.opened:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no push channel opened")
		return nil
	}
}

func (s *fakeSource) requireNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case st := <-s.opened:
		t.Fatalf("unexpected push channel for %s", st.ref)
	case <-time.After(within):
	}
}
