package notify

import (
	"context"
	"log/slog"
	"sync"

	m "github.com/example/qr-payment-confirm/pkg/metrics"
)

// Stream is an open push channel for one retrieval reference.
type Stream interface {
	// Recv blocks until the next message arrives, ctx is done, or the stream fails.
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Source opens push channels. SSE and Kafka transports both satisfy it.
type Source interface {
	Open(ctx context.Context, ref string) (Stream, error)
}

// Result is the single terminal outcome of a listener.
type Result struct {
	Ref    string
	Signal Signal
	Err    error
}

// EmitFunc delivers the listener's result. ctx is canceled when the listener is,
// so implementations must not block past it.
type EmitFunc func(ctx context.Context, r Result)

// Listener watches one push channel and emits at most one Result.
type Listener struct {
	ref    string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Listen opens a channel for ref in the background. Exactly one Result is
// emitted unless Cancel runs first.
func Listen(ctx context.Context, src Source, ref string, emit EmitFunc, logger *slog.Logger) *Listener {
	lctx, cancel := context.WithCancel(ctx)
	l := &Listener{ref: ref, cancel: cancel, done: make(chan struct{})}
	logger = logger.With(slog.String("component", "listener"), slog.String("ref", ref))

	go func() {
		defer close(l.done)
		res, ok := l.run(lctx, src, logger)
		if !ok || lctx.Err() != nil {
			return
		}
		m.IncPushSignal(res.Signal.String())
		emit(lctx, res)
	}()

	return l
}

func (l *Listener) run(ctx context.Context, src Source, logger *slog.Logger) (Result, bool) {
	stream, err := src.Open(ctx, l.ref)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, false
		}
		logger.Warn("open push channel", slog.Any("err", err))
		return Result{Ref: l.ref, Signal: SignalChannelError, Err: err}, true
	}
	defer stream.Close()

	for {
		msg, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, false
			}
			logger.Warn("push channel failed", slog.Any("err", err))
			return Result{Ref: l.ref, Signal: SignalChannelError, Err: err}, true
		}

		sig := Classify(msg)
		if sig == SignalNone {
			logger.Debug("ignoring push message", slog.String("message", msg.Message), slog.String("response_code", msg.ResponseCode))
			continue
		}
		return Result{Ref: l.ref, Signal: sig}, true
	}
}

// Done is closed once the listener goroutine has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Cancel closes the channel and waits for the listener goroutine to exit.
// Safe to call repeatedly and after the listener finished on its own.
func (l *Listener) Cancel() {
	l.once.Do(l.cancel)
	<-l.done
}
