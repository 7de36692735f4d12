// qr-payment-confirm/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Failure codes surfaced on a failed session.
const (
	CodeRequestError     = "request_error"
	CodeGatewayDeclined  = "gateway_declined"
	CodeChannelError     = "channel_error"
	CodeServerTimeout    = "server_timeout"
	CodeClientTimeout    = "client_timeout"
	CodeFallbackDeclined = "fallback_declined"
	CodeNetworkError     = "network_error"
)

type E struct {
	Code    string
	Message string
	Err     error

	// GatewayCode is the response_code reported by the gateway, when there was one.
	GatewayCode string
	// Instruction is gateway text meant for the payer.
	Instruction string
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is matches another *E by code so callers can compare against a bare code value.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Wrap builds a failure with code and msg around the underlying err.
func Wrap(code, msg string, err error) *E {
	return &E{Code: code, Message: msg, Err: err}
}

func New(code, msg string) *E {
	return &E{Code: code, Message: msg}
}

// Declined builds a gateway_declined failure carrying the gateway's code and instruction.
func Declined(stage, gatewayCode, instruction string) *E {
	msg := stage + " declined by gateway"
	if instruction != "" {
		msg = instruction
	}
	return &E{
		Code:        CodeGatewayDeclined,
		Message:     msg,
		GatewayCode: gatewayCode,
		Instruction: instruction,
	}
}

// Code returns a comparable sentinel for code, usable with errors.Is.
func Code(code string) error { return &E{Code: code} }

// CodeOf returns the code of the first *E in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var e *E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is re-exports errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }
