// Package session runs one QR payment attempt at a time: it requests a code,
// races the push channel against a countdown and settles the outcome with a
// single fallback status query when the channel cannot.
package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/qr-payment-confirm/internal/notify"
	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/pkg/errors"
	m "github.com/example/qr-payment-confirm/pkg/metrics"
)

const (
	DefaultConfirmTimeout = 300 * time.Second
	DefaultTickInterval   = time.Second
	DefaultTxnIDPrefix    = "sandbox_nets|m|"
)

var ErrClosed = stderrors.New("session: engine closed")

type Config struct {
	ConfirmTimeout time.Duration
	TickInterval   time.Duration
	// TxnIDPrefix is used when a request carries no caller transaction id.
	TxnIDPrefix string
}

type Deps struct {
	Gateway Gateway
	Source  notify.Source
	// Store may be nil; the reference is then not persisted.
	Store  refstore.Store
	Logger *slog.Logger
}

// NewTransactionID builds a caller transaction id: prefix followed by a uuid.
func NewTransactionID(prefix string) string {
	return prefix + uuid.NewString()
}

type command struct {
	ev    Event
	reply chan error
}

// Engine serializes every event of the session through one goroutine. It owns
// the listener, the guard and any in-flight gateway call.
type Engine struct {
	cfg       Config
	machine   *Machine
	requester *Requester
	fallback  *FallbackQuery
	source    notify.Source
	root      *slog.Logger
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan command
	done   chan struct{}

	// loop goroutine only
	listener *notify.Listener
	guard    *Guard
	calls    []context.CancelFunc

	mu     sync.RWMutex
	snap   Session
	subs   map[int]chan Session
	nextID int
	closed bool
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TxnIDPrefix == "" {
		cfg.TxnIDPrefix = DefaultTxnIDPrefix
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		machine:   NewMachine(cfg.ConfirmTimeout),
		requester: NewRequester(deps.Gateway, deps.Store, logger),
		fallback:  NewFallbackQuery(deps.Gateway, logger),
		source:    deps.Source,
		root:      logger,
		logger:    logger.With(slog.String("component", "engine")),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan command, 16),
		done:      make(chan struct{}),
		subs:      make(map[int]chan Session),
	}
	go e.run()
	return e
}

// Request starts a new attempt. It returns once the engine accepted the
// request; the create call itself runs in the background.
func (e *Engine) Request(ctx context.Context, req PaymentRequest) error {
	if err := ValidateAmount(req.Amount); err != nil {
		return err
	}
	if req.CallerTransactionID == "" {
		req.CallerTransactionID = NewTransactionID(e.cfg.TxnIDPrefix)
	}
	return e.send(ctx, Event{Kind: EvStart, Request: &req})
}

// Reset abandons whatever the session is doing and returns it to Idle.
func (e *Engine) Reset(ctx context.Context) error {
	return e.send(ctx, Event{Kind: EvReset})
}

func (e *Engine) Snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Subscribe delivers the current snapshot and then every published one. A slow
// subscriber loses intermediate snapshots, never the latest. The returned
// func unsubscribes and closes the channel.
func (e *Engine) Subscribe(buf int) (<-chan Session, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Session, buf)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	ch <- e.snap

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// Wait blocks until the session reaches a terminal state.
func (e *Engine) Wait(ctx context.Context) (Session, error) {
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return e.Snapshot(), ErrClosed
			}
			if s.State.Terminal() {
				return s, nil
			}
		case <-ctx.Done():
			return e.Snapshot(), ctx.Err()
		}
	}
}

// Close tears down the session and stops the loop.
func (e *Engine) Close() error {
	e.cancel()
	<-e.done
	return nil
}

func (e *Engine) send(ctx context.Context, ev Event) error {
	c := command{ev: ev, reply: make(chan error, 1)}
	select {
	case e.inbox <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// post hands an asynchronous result to the loop. It gives up when ctx, owned
// by the producer, is canceled, so the loop can always wait for producers.
func (e *Engine) post(ctx context.Context, ev Event) {
	select {
	case e.inbox <- command{ev: ev}:
	case <-ctx.Done():
	case <-e.done:
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			e.teardown()
			return
		case c := <-e.inbox:
			err := e.handle(c.ev)
			if c.reply != nil {
				c.reply <- err
			}
		}
	}
}

func (e *Engine) handle(ev Event) error {
	before := e.machine.Session()
	effects, err := e.machine.Apply(ev)
	if err != nil {
		if stderrors.Is(err, ErrStale) {
			e.logger.Debug("dropping event",
				slog.String("event", ev.Kind.String()),
				slog.Uint64("epoch", ev.Epoch),
				slog.String("ref", ev.Ref))
		}
		return err
	}

	for _, eff := range effects {
		e.perform(eff)
	}

	after := e.machine.Session()
	if before.State != after.State || before.Epoch != after.Epoch {
		e.logger.Info("session transition",
			slog.String("event", ev.Kind.String()),
			slog.String("from", before.State.String()),
			slog.String("to", after.State.String()),
			slog.Uint64("epoch", after.Epoch),
			slog.String("ref", after.RetrievalReference))
	}
	e.publish(after)
	return nil
}

func (e *Engine) perform(eff Effect) {
	switch eff.Kind {
	case EffStopListener:
		if e.listener != nil {
			e.listener.Cancel()
			e.listener = nil
		}
	case EffStopGuard:
		if e.guard != nil {
			e.guard.Stop()
			e.guard = nil
		}
	case EffAbandonCalls:
		for _, cancel := range e.calls {
			cancel()
		}
		e.calls = nil
	case EffCreate:
		e.startCreate(eff.Epoch, *eff.Request)
	case EffListen:
		e.listener = notify.Listen(e.ctx, e.source, eff.Ref, e.onSignal(eff.Epoch), e.root)
	case EffStartGuard:
		e.guard = e.startGuard(eff.Epoch, eff.Ref, eff.Total)
	case EffFallback:
		e.startFallback(eff.Epoch, eff.Ref, eff.Trigger)
	case EffSettled:
		e.settled(eff.Outcome)
	}
}

func (e *Engine) startCreate(epoch uint64, req PaymentRequest) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.calls = append(e.calls, cancel)

	go func() {
		defer cancel()
		created, failure := e.requester.Request(ctx, req)
		if failure != nil {
			e.post(ctx, Event{Kind: EvRequestFailed, Epoch: epoch, Failure: failure})
			return
		}
		img, warning := RenderPayload(created.CodePayload)
		e.post(ctx, Event{
			Kind:        EvRequested,
			Epoch:       epoch,
			Ref:         created.Ref,
			At:          time.Now(),
			CodePayload: created.CodePayload,
			CodeImage:   img,
			Warning:     warning,
		})
	}()
}

func (e *Engine) startFallback(epoch uint64, ref, trigger string) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.calls = append(e.calls, cancel)

	go func() {
		defer cancel()
		failure := e.fallback.Check(ctx, ref, trigger)
		e.post(ctx, Event{Kind: EvFallbackResolved, Epoch: epoch, Ref: ref, Failure: failure})
	}()
}

func (e *Engine) startGuard(epoch uint64, ref string, total time.Duration) *Guard {
	return StartGuard(e.ctx, total, e.cfg.TickInterval,
		func(ctx context.Context, remaining time.Duration) {
			e.post(ctx, Event{Kind: EvTick, Epoch: epoch, Ref: ref, Remaining: remaining})
		},
		func(ctx context.Context) {
			e.post(ctx, Event{Kind: EvGuardExpired, Epoch: epoch, Ref: ref})
		},
	)
}

func (e *Engine) onSignal(epoch uint64) notify.EmitFunc {
	return func(ctx context.Context, r notify.Result) {
		ev := Event{Epoch: epoch, Ref: r.Ref}
		switch r.Signal {
		case notify.SignalConfirmed:
			ev.Kind = EvConfirmed
		case notify.SignalServerTimeout:
			ev.Kind = EvServerTimeout
		default:
			ev.Kind = EvChannelError
			ev.Failure = errors.Wrap(errors.CodeChannelError, "Network/Webhook error", r.Err)
		}
		e.post(ctx, ev)
	}
}

func (e *Engine) settled(s *Session) {
	m.IncSession(s.State.String(), s.Reason())
	attrs := []any{
		slog.Uint64("epoch", s.Epoch),
		slog.String("txn_id", s.CallerTransactionID),
		slog.String("amount", s.Amount.StringFixed(2)),
	}
	if s.Failure != nil {
		e.logger.Warn("payment failed", append(attrs, slog.String("reason", s.Failure.Code), slog.Any("err", s.Failure))...)
		return
	}
	e.logger.Info("payment confirmed", attrs...)
}

func (e *Engine) teardown() {
	if e.listener != nil {
		e.listener.Cancel()
		e.listener = nil
	}
	if e.guard != nil {
		e.guard.Stop()
		e.guard = nil
	}
	for _, cancel := range e.calls {
		cancel()
	}
	e.calls = nil

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *Engine) publish(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap = s
	for _, ch := range e.subs {
		offer(ch, s)
	}
}

// offer never blocks: when the buffer is full the oldest snapshot is dropped.
func offer(ch chan Session, s Session) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
