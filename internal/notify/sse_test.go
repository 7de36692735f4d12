package notify_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/qr-payment-confirm/internal/notify"
)

func sseServer(t *testing.T, write func(w http.ResponseWriter, flush func())) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("txn_retrieval_ref") != "ref-sse" || r.Header.Get("api-key") != "k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		f := w.(http.Flusher)
		write(w, f.Flush)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSSE_DeliversMessagesSkippingComments(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: status\ndata: {\"message\":\"ignored\"}\n\n")
		fmt.Fprint(w, "data: {\"message\":\"QR code scanned\",\n")
		fmt.Fprint(w, "data: \"response_code\":\"00\"}\n\n")
		flush()
		time.Sleep(200 * time.Millisecond)
	})

	src := notify.NewSSESource(notify.SSEConfig{BaseURL: srv.URL, APIKey: "k", HeartbeatTimeout: time.Second})
	st, err := src.Open(context.Background(), "ref-sse")
	require.NoError(t, err)
	defer st.Close()

	msg, err := st.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, notify.SignalConfirmed, notify.Classify(msg))
}

func TestSSE_HeartbeatTimeout(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, flush func()) {
		flush()
		time.Sleep(500 * time.Millisecond)
	})

	src := notify.NewSSESource(notify.SSEConfig{BaseURL: srv.URL, APIKey: "k", HeartbeatTimeout: 50 * time.Millisecond})
	st, err := src.Open(context.Background(), "ref-sse")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Recv(context.Background())
	require.ErrorIs(t, err, notify.ErrHeartbeatTimeout)
}

func TestSSE_ServerCloseAndMalformed(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {oops\n\n")
		flush()
	})

	src := notify.NewSSESource(notify.SSEConfig{BaseURL: srv.URL, APIKey: "k", HeartbeatTimeout: time.Second})
	st, err := src.Open(context.Background(), "ref-sse")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Recv(context.Background())
	require.ErrorIs(t, err, notify.ErrMalformed)

	_, err = st.Recv(context.Background())
	require.ErrorIs(t, err, notify.ErrStreamClosed)
}

func TestSSE_RejectedOpen(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, flush func()) {})

	src := notify.NewSSESource(notify.SSEConfig{BaseURL: srv.URL, APIKey: "wrong"})
	_, err := src.Open(context.Background(), "ref-sse")
	require.Error(t, err)
}
