package session

import (
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/qr-payment-confirm/pkg/errors"
)

var (
	// ErrSessionActive rejects a request while another one is pending or awaiting a scan.
	ErrSessionActive = stderrors.New("session: a payment is already in progress")
	// ErrStale marks an event that belongs to an abandoned epoch or reference,
	// or that arrived after the session already settled.
	ErrStale = stderrors.New("session: stale event")
)

// EventKind names what happened to the session.
type EventKind int

const (
	EvStart EventKind = iota
	EvRequested
	EvRequestFailed
	EvConfirmed
	EvChannelError
	EvServerTimeout
	EvGuardExpired
	EvFallbackResolved
	EvTick
	EvReset
)

var eventNames = map[EventKind]string{
	EvStart:            "start",
	EvRequested:        "requested",
	EvRequestFailed:    "request_failed",
	EvConfirmed:        "confirmed",
	EvChannelError:     "channel_error",
	EvServerTimeout:    "server_timeout",
	EvGuardExpired:     "guard_expired",
	EvFallbackResolved: "fallback_resolved",
	EvTick:             "tick",
	EvReset:            "reset",
}

func (k EventKind) String() string { return eventNames[k] }

// PaymentRequest is the caller's input for one attempt.
type PaymentRequest struct {
	Amount              decimal.Decimal
	CallerTransactionID string
	NotifyMobile        bool
}

// Event is an input to the machine. Epoch and Ref tie it to the attempt that
// produced it.
type Event struct {
	Kind  EventKind
	Epoch uint64
	Ref   string
	At    time.Time

	Request *PaymentRequest // EvStart

	CodePayload string // EvRequested
	CodeImage   string
	Warning     string

	Remaining time.Duration // EvTick

	// Failure is set for EvRequestFailed, EvChannelError and a declined EvFallbackResolved.
	Failure *errors.E
}

// EffectKind names work the engine carries out for the machine.
type EffectKind int

const (
	EffCreate EffectKind = iota
	EffListen
	EffStartGuard
	EffStopListener
	EffStopGuard
	EffAbandonCalls
	EffFallback
	EffSettled
)

// Effect is one step of work Apply asks the engine to carry out.
type Effect struct {
	Kind    EffectKind
	Epoch   uint64
	Ref     string
	Request *PaymentRequest
	// Trigger is errors.CodeServerTimeout or errors.CodeClientTimeout for EffFallback.
	Trigger string
	Total   time.Duration
	// Outcome is the settled session for EffSettled.
	Outcome *Session
}

// Machine is the session state machine. It performs no I/O: Apply mutates the
// session and returns the effects the engine must carry out, in order.
type Machine struct {
	timeout time.Duration
	s       Session
}

// NewMachine returns an idle machine whose sessions wait timeout for a scan.
func NewMachine(timeout time.Duration) *Machine {
	return &Machine{timeout: timeout}
}

func (m *Machine) Session() Session { return m.s }

// Apply feeds ev to the machine. Events from a stale epoch or reference, or
// arriving after the session settled, return ErrStale and change nothing.
func (m *Machine) Apply(ev Event) ([]Effect, error) {
	switch ev.Kind {
	case EvStart:
		return m.start(ev)
	case EvReset:
		return m.reset(), nil
	}

	if ev.Epoch != m.s.Epoch {
		return nil, ErrStale
	}

	switch ev.Kind {
	case EvRequested:
		return m.requested(ev)
	case EvRequestFailed:
		if !m.s.Pending || m.s.State != Idle {
			return nil, ErrStale
		}
		m.s.Pending = false
		return m.fail(ev.Failure), nil
	}

	if !m.watching(ev.Ref) {
		return nil, ErrStale
	}

	switch ev.Kind {
	case EvTick:
		if m.s.Resolving {
			return nil, ErrStale
		}
		m.s.Remaining = ev.Remaining
		return nil, nil

	case EvConfirmed:
		if m.s.Resolving {
			return nil, ErrStale
		}
		return m.succeed(), nil

	case EvChannelError:
		if m.s.Resolving {
			return nil, ErrStale
		}
		f := ev.Failure
		if f == nil {
			f = errors.New(errors.CodeChannelError, "Network/Webhook error")
		}
		return m.fail(f), nil

	case EvServerTimeout, EvGuardExpired:
		if m.s.Resolving {
			return nil, ErrStale
		}
		trigger := errors.CodeServerTimeout
		if ev.Kind == EvGuardExpired {
			trigger = errors.CodeClientTimeout
			m.s.Remaining = 0
		}
		m.s.Resolving = true
		return []Effect{
			{Kind: EffStopListener},
			{Kind: EffStopGuard},
			{Kind: EffFallback, Epoch: m.s.Epoch, Ref: m.s.RetrievalReference, Trigger: trigger},
		}, nil

	case EvFallbackResolved:
		if !m.s.Resolving {
			return nil, ErrStale
		}
		if ev.Failure == nil {
			return m.succeed(), nil
		}
		return m.fail(ev.Failure), nil
	}

	return nil, ErrStale
}

// watching reports whether ref is the live reference of an AwaitingScan session.
func (m *Machine) watching(ref string) bool {
	return m.s.State == AwaitingScan && ref != "" && ref == m.s.RetrievalReference
}

func (m *Machine) start(ev Event) ([]Effect, error) {
	if m.s.Pending || m.s.State == AwaitingScan {
		return nil, ErrSessionActive
	}

	// leaving a terminal state always goes through a reset
	effects := m.reset()
	m.s.Amount = ev.Request.Amount
	m.s.CallerTransactionID = ev.Request.CallerTransactionID
	m.s.Pending = true

	req := *ev.Request
	return append(effects, Effect{Kind: EffCreate, Epoch: m.s.Epoch, Request: &req}), nil
}

func (m *Machine) requested(ev Event) ([]Effect, error) {
	if !m.s.Pending || m.s.State != Idle || ev.Ref == "" {
		return nil, ErrStale
	}

	m.s.Pending = false
	m.s.State = AwaitingScan
	m.s.RetrievalReference = ev.Ref
	m.s.CodePayload = ev.CodePayload
	m.s.CodeImage = ev.CodeImage
	m.s.Warning = ev.Warning
	m.s.Deadline = ev.At.Add(m.timeout)
	m.s.Remaining = m.timeout

	return []Effect{
		// anything still tied to an older reference goes first
		{Kind: EffStopListener},
		{Kind: EffStopGuard},
		{Kind: EffListen, Epoch: m.s.Epoch, Ref: ev.Ref},
		{Kind: EffStartGuard, Epoch: m.s.Epoch, Ref: ev.Ref, Total: m.timeout},
	}, nil
}

func (m *Machine) succeed() []Effect {
	m.settle(Succeeded)
	return m.settledEffects()
}

func (m *Machine) fail(f *errors.E) []Effect {
	if f == nil {
		f = errors.New(errors.CodeRequestError, "payment failed")
	}
	m.settle(Failed)
	m.s.Failure = f
	return m.settledEffects()
}

func (m *Machine) settle(st State) {
	m.s.State = st
	m.s.Pending = false
	m.s.Resolving = false
	m.s.CodePayload = ""
	m.s.CodeImage = ""
	m.s.RetrievalReference = ""
	m.s.Deadline = time.Time{}
	m.s.Remaining = 0
}

func (m *Machine) settledEffects() []Effect {
	out := m.s
	return []Effect{
		{Kind: EffStopListener},
		{Kind: EffStopGuard},
		{Kind: EffAbandonCalls},
		{Kind: EffSettled, Epoch: m.s.Epoch, Outcome: &out},
	}
}

// reset returns the session to Idle under a new epoch. Calling it on an idle
// session is harmless.
func (m *Machine) reset() []Effect {
	m.s = Session{Epoch: m.s.Epoch + 1}
	return []Effect{
		{Kind: EffStopListener},
		{Kind: EffStopGuard},
		{Kind: EffAbandonCalls},
	}
}
