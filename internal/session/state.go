package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/qr-payment-confirm/pkg/errors"
)

type State int

const (
	Idle State = iota
	AwaitingScan
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingScan:
		return "awaiting_scan"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether leaving s requires an explicit reset.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// Session is the transaction session. The engine hands out copies; the
// machine owns the only mutable one.
type Session struct {
	// Epoch increments on every reset; async results are tagged with it.
	Epoch uint64

	Amount              decimal.Decimal
	CallerTransactionID string
	// Pending is true while the create call is in flight.
	Pending bool

	State State

	// Present only while AwaitingScan.
	CodePayload        string
	CodeImage          string
	RetrievalReference string
	Deadline           time.Time
	Remaining          time.Duration
	// Resolving is true while the fallback query decides the outcome.
	Resolving bool

	// Failure is set only when State is Failed.
	Failure *errors.E
	// Warning is a non-fatal display problem, e.g. an unrenderable code payload.
	Warning string
}

// Countdown renders Remaining as mm:ss.
func (s Session) Countdown() string {
	secs := int(s.Remaining.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Reason is the failure code, or "" when the session has not failed.
func (s Session) Reason() string {
	if s.Failure == nil {
		return ""
	}
	return s.Failure.Code
}
