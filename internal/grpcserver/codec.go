package grpcserver

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/example/qr-payment-confirm/internal/session"
)

// Snapshot is the wire view of a session as clients see it.
type Snapshot struct {
	Epoch               uint64
	State               string
	Amount              string
	CallerTransactionID string
	Pending             bool
	Resolving           bool
	RetrievalReference  string
	CodePayload         string
	CodeImage           string
	Deadline            time.Time
	Remaining           time.Duration
	Countdown           string
	FailureCode         string
	FailureMessage      string
	GatewayCode         string
	Warning             string
}

func (s Snapshot) Terminal() bool {
	return s.State == session.Succeeded.String() || s.State == session.Failed.String()
}

func EncodeSession(s session.Session) (*structpb.Struct, error) {
	fields := map[string]any{
		"epoch":             float64(s.Epoch),
		"state":             s.State.String(),
		"amount":            s.Amount.StringFixed(2),
		"txn_id":            s.CallerTransactionID,
		"pending":           s.Pending,
		"resolving":         s.Resolving,
		"remaining_seconds": s.Remaining.Seconds(),
		"countdown":         s.Countdown(),
	}
	if s.State == session.AwaitingScan {
		ts := timestamppb.New(s.Deadline)
		fields["retrieval_ref"] = s.RetrievalReference
		fields["code_payload"] = s.CodePayload
		fields["code_image"] = s.CodeImage
		fields["deadline"] = map[string]any{"seconds": float64(ts.GetSeconds()), "nanos": float64(ts.GetNanos())}
	}
	if s.Failure != nil {
		fields["failure"] = map[string]any{
			"code":         s.Failure.Code,
			"message":      s.Failure.Message,
			"gateway_code": s.Failure.GatewayCode,
		}
	}
	if s.Warning != "" {
		fields["warning"] = s.Warning
	}
	return structpb.NewStruct(fields)
}

func DecodeSession(in *structpb.Struct) (Snapshot, error) {
	f := in.GetFields()
	state := f["state"].GetStringValue()
	if state == "" {
		return Snapshot{}, fmt.Errorf("session reply without state")
	}

	out := Snapshot{
		Epoch:               uint64(f["epoch"].GetNumberValue()),
		State:               state,
		Amount:              f["amount"].GetStringValue(),
		CallerTransactionID: f["txn_id"].GetStringValue(),
		Pending:             f["pending"].GetBoolValue(),
		Resolving:           f["resolving"].GetBoolValue(),
		RetrievalReference:  f["retrieval_ref"].GetStringValue(),
		CodePayload:         f["code_payload"].GetStringValue(),
		CodeImage:           f["code_image"].GetStringValue(),
		Remaining:           time.Duration(f["remaining_seconds"].GetNumberValue() * float64(time.Second)),
		Countdown:           f["countdown"].GetStringValue(),
		Warning:             f["warning"].GetStringValue(),
	}
	if d := f["deadline"].GetStructValue(); d != nil {
		ts := &timestamppb.Timestamp{
			Seconds: int64(d.GetFields()["seconds"].GetNumberValue()),
			Nanos:   int32(d.GetFields()["nanos"].GetNumberValue()),
		}
		out.Deadline = ts.AsTime()
	}
	if fl := f["failure"].GetStructValue(); fl != nil {
		out.FailureCode = fl.GetFields()["code"].GetStringValue()
		out.FailureMessage = fl.GetFields()["message"].GetStringValue()
		out.GatewayCode = fl.GetFields()["gateway_code"].GetStringValue()
	}
	return out, nil
}
