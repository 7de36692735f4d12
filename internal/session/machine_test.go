package session

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/qr-payment-confirm/pkg/errors"
)

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Kind)
	}
	return out
}

// awaiting drives a fresh machine into AwaitingScan for ref.
func awaiting(t *testing.T, ref string) *Machine {
	t.Helper()
	mc := NewMachine(time.Minute)
	_, err := mc.Apply(Event{Kind: EvStart, Request: &PaymentRequest{Amount: decimal.RequireFromString("3.50"), CallerTransactionID: "txn-1"}})
	require.NoError(t, err)
	_, err = mc.Apply(Event{Kind: EvRequested, Epoch: mc.Session().Epoch, Ref: ref, CodePayload: "payload", At: time.Unix(1000, 0)})
	require.NoError(t, err)
	require.Equal(t, AwaitingScan, mc.Session().State)
	return mc
}

func TestMachine_StartThenRequested(t *testing.T) {
	mc := NewMachine(time.Minute)

	effects, err := mc.Apply(Event{Kind: EvStart, Request: &PaymentRequest{Amount: decimal.RequireFromString("1.00"), CallerTransactionID: "txn-1"}})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffStopListener, EffStopGuard, EffAbandonCalls, EffCreate}, kinds(effects))

	s := mc.Session()
	require.Equal(t, Idle, s.State)
	require.True(t, s.Pending)
	require.Equal(t, "txn-1", s.CallerTransactionID)

	at := time.Unix(1000, 0)
	effects, err = mc.Apply(Event{Kind: EvRequested, Epoch: s.Epoch, Ref: "R1", CodePayload: "payload", At: at})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffStopListener, EffStopGuard, EffListen, EffStartGuard}, kinds(effects))
	require.Equal(t, "R1", effects[2].Ref)
	require.Equal(t, time.Minute, effects[3].Total)

	s = mc.Session()
	require.Equal(t, AwaitingScan, s.State)
	require.False(t, s.Pending)
	require.Equal(t, "R1", s.RetrievalReference)
	require.Equal(t, "payload", s.CodePayload)
	require.Equal(t, at.Add(time.Minute), s.Deadline)
	require.Equal(t, time.Minute, s.Remaining)
}

func TestMachine_RequestWhileActive(t *testing.T) {
	mc := NewMachine(time.Minute)
	req := &PaymentRequest{Amount: decimal.RequireFromString("1.00")}

	_, err := mc.Apply(Event{Kind: EvStart, Request: req})
	require.NoError(t, err)
	_, err = mc.Apply(Event{Kind: EvStart, Request: req})
	require.ErrorIs(t, err, ErrSessionActive)

	mc = awaiting(t, "R1")
	_, err = mc.Apply(Event{Kind: EvStart, Request: req})
	require.ErrorIs(t, err, ErrSessionActive)
}

func TestMachine_RequestFromTerminalResetsFirst(t *testing.T) {
	mc := awaiting(t, "R1")
	_, err := mc.Apply(Event{Kind: EvConfirmed, Epoch: mc.Session().Epoch, Ref: "R1"})
	require.NoError(t, err)
	prev := mc.Session().Epoch

	_, err = mc.Apply(Event{Kind: EvStart, Request: &PaymentRequest{Amount: decimal.RequireFromString("2.00")}})
	require.NoError(t, err)

	s := mc.Session()
	require.Greater(t, s.Epoch, prev)
	require.Equal(t, Idle, s.State)
	require.True(t, s.Pending)
	require.True(t, s.Amount.Equal(decimal.RequireFromString("2.00")))
}

func TestMachine_RequestFailed(t *testing.T) {
	mc := NewMachine(time.Minute)
	_, err := mc.Apply(Event{Kind: EvStart, Request: &PaymentRequest{Amount: decimal.RequireFromString("1.00")}})
	require.NoError(t, err)

	declined := errors.Declined("payment request", "05", "")
	effects, err := mc.Apply(Event{Kind: EvRequestFailed, Epoch: mc.Session().Epoch, Failure: declined})
	require.NoError(t, err)
	require.Contains(t, kinds(effects), EffSettled)

	s := mc.Session()
	require.Equal(t, Failed, s.State)
	require.Equal(t, errors.CodeGatewayDeclined, s.Reason())
	require.False(t, s.Pending)
	require.Empty(t, s.CodePayload)
	require.True(t, s.Deadline.IsZero())
}

func TestMachine_ConfirmedClearsAwaitingFields(t *testing.T) {
	mc := awaiting(t, "R1")

	effects, err := mc.Apply(Event{Kind: EvConfirmed, Epoch: mc.Session().Epoch, Ref: "R1"})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffStopListener, EffStopGuard, EffAbandonCalls, EffSettled}, kinds(effects))
	require.Equal(t, Succeeded, effects[3].Outcome.State)

	s := mc.Session()
	require.Equal(t, Succeeded, s.State)
	require.Nil(t, s.Failure)
	require.Empty(t, s.CodePayload)
	require.Empty(t, s.RetrievalReference)
	require.True(t, s.Deadline.IsZero())
}

func TestMachine_ChannelError(t *testing.T) {
	mc := awaiting(t, "R1")

	_, err := mc.Apply(Event{Kind: EvChannelError, Epoch: mc.Session().Epoch, Ref: "R1"})
	require.NoError(t, err)
	require.Equal(t, Failed, mc.Session().State)
	require.Equal(t, errors.CodeChannelError, mc.Session().Reason())
}

func TestMachine_TimeoutsRunFallbackOnce(t *testing.T) {
	for _, tc := range []struct {
		name    string
		first   EventKind
		second  EventKind
		trigger string
	}{
		{"server timeout then guard", EvServerTimeout, EvGuardExpired, errors.CodeServerTimeout},
		{"guard then server timeout", EvGuardExpired, EvServerTimeout, errors.CodeClientTimeout},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mc := awaiting(t, "R1")
			epoch := mc.Session().Epoch

			effects, err := mc.Apply(Event{Kind: tc.first, Epoch: epoch, Ref: "R1"})
			require.NoError(t, err)
			require.Equal(t, []EffectKind{EffStopListener, EffStopGuard, EffFallback}, kinds(effects))
			require.Equal(t, tc.trigger, effects[2].Trigger)
			require.Equal(t, "R1", effects[2].Ref)

			// still awaiting until the query answers
			s := mc.Session()
			require.Equal(t, AwaitingScan, s.State)
			require.True(t, s.Resolving)
			require.NotEmpty(t, s.CodePayload)

			_, err = mc.Apply(Event{Kind: tc.second, Epoch: epoch, Ref: "R1"})
			require.ErrorIs(t, err, ErrStale)
			_, err = mc.Apply(Event{Kind: EvTick, Epoch: epoch, Ref: "R1", Remaining: time.Second})
			require.ErrorIs(t, err, ErrStale)

			_, err = mc.Apply(Event{Kind: EvFallbackResolved, Epoch: epoch, Ref: "R1"})
			require.NoError(t, err)
			require.Equal(t, Succeeded, mc.Session().State)
		})
	}
}

func TestMachine_FallbackDeclined(t *testing.T) {
	mc := awaiting(t, "R1")
	epoch := mc.Session().Epoch

	_, err := mc.Apply(Event{Kind: EvGuardExpired, Epoch: epoch, Ref: "R1"})
	require.NoError(t, err)
	require.Zero(t, mc.Session().Remaining)

	failure := &errors.E{Code: errors.CodeFallbackDeclined, Message: "Payment was not completed", Err: errors.Code(errors.CodeClientTimeout)}
	_, err = mc.Apply(Event{Kind: EvFallbackResolved, Epoch: epoch, Ref: "R1", Failure: failure})
	require.NoError(t, err)

	s := mc.Session()
	require.Equal(t, Failed, s.State)
	require.Equal(t, errors.CodeFallbackDeclined, s.Reason())
	require.True(t, errors.Is(s.Failure, errors.Code(errors.CodeClientTimeout)))
}

// Both the listener and the guard resolve on the same tick: the first one
// processed wins and the other is discarded.
func TestMachine_TieBreak(t *testing.T) {
	mc := awaiting(t, "R1")
	epoch := mc.Session().Epoch

	_, err := mc.Apply(Event{Kind: EvConfirmed, Epoch: epoch, Ref: "R1"})
	require.NoError(t, err)

	effects, err := mc.Apply(Event{Kind: EvGuardExpired, Epoch: epoch, Ref: "R1"})
	require.ErrorIs(t, err, ErrStale)
	require.Empty(t, effects)
	require.Equal(t, Succeeded, mc.Session().State)
}

func TestMachine_StaleEvents(t *testing.T) {
	mc := awaiting(t, "R1")
	epoch := mc.Session().Epoch

	for _, ev := range []Event{
		{Kind: EvConfirmed, Epoch: epoch - 1, Ref: "R1"},
		{Kind: EvConfirmed, Epoch: epoch, Ref: "R0"},
		{Kind: EvConfirmed, Epoch: epoch, Ref: ""},
		{Kind: EvRequested, Epoch: epoch, Ref: "R2"},
		{Kind: EvRequestFailed, Epoch: epoch},
		{Kind: EvFallbackResolved, Epoch: epoch, Ref: "R1"},
	} {
		_, err := mc.Apply(ev)
		require.ErrorIs(t, err, ErrStale, ev.Kind.String())
	}
	require.Equal(t, AwaitingScan, mc.Session().State)
	require.Equal(t, "R1", mc.Session().RetrievalReference)
}

func TestMachine_FallbackResultAfterReset(t *testing.T) {
	mc := awaiting(t, "R1")
	epoch := mc.Session().Epoch

	effects, err := mc.Apply(Event{Kind: EvGuardExpired, Epoch: epoch, Ref: "R1"})
	require.NoError(t, err)
	require.Equal(t, EffFallback, effects[len(effects)-1].Kind)
	require.True(t, mc.Session().Resolving)

	effects, err = mc.Apply(Event{Kind: EvReset})
	require.NoError(t, err)
	require.Contains(t, kinds(effects), EffAbandonCalls)

	for _, failure := range []*errors.E{nil, errors.New(errors.CodeFallbackDeclined, "Payment was not completed")} {
		effects, err = mc.Apply(Event{Kind: EvFallbackResolved, Epoch: epoch, Ref: "R1", Failure: failure})
		require.ErrorIs(t, err, ErrStale)
		require.Empty(t, effects)
	}
	require.Equal(t, Session{Epoch: epoch + 1}, mc.Session())
}

func TestMachine_Tick(t *testing.T) {
	mc := awaiting(t, "R1")

	_, err := mc.Apply(Event{Kind: EvTick, Epoch: mc.Session().Epoch, Ref: "R1", Remaining: 59 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 59*time.Second, mc.Session().Remaining)
	require.Equal(t, "00:59", mc.Session().Countdown())
}

func TestMachine_ResetIsIdempotent(t *testing.T) {
	mc := awaiting(t, "R1")
	epoch := mc.Session().Epoch

	effects, err := mc.Apply(Event{Kind: EvReset})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffStopListener, EffStopGuard, EffAbandonCalls}, kinds(effects))

	first := mc.Session()
	require.Equal(t, Session{Epoch: epoch + 1}, first)

	_, err = mc.Apply(Event{Kind: EvReset})
	require.NoError(t, err)
	second := mc.Session()
	require.Equal(t, Idle, second.State)
	require.Empty(t, second.RetrievalReference)
	require.Nil(t, second.Failure)

	// the old listener's confirmation arrives after the reset
	_, err = mc.Apply(Event{Kind: EvConfirmed, Epoch: epoch, Ref: "R1"})
	require.ErrorIs(t, err, ErrStale)
	require.Equal(t, Idle, mc.Session().State)
}

func TestSession_Countdown(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want string
	}{
		{300 * time.Second, "05:00"},
		{299 * time.Second, "04:59"},
		{61 * time.Second, "01:01"},
		{9 * time.Second, "00:09"},
		{0, "00:00"},
		{-time.Second, "00:00"},
	} {
		require.Equal(t, tc.want, Session{Remaining: tc.in}.Countdown())
	}
}
