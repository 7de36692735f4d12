// Package notify carries push notifications about a QR payment from the
// notification source to the confirmation engine.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MessageScanned = "QR code scanned"
	MessageTimeout = "Timeout"

	successCode = "00"
)

var (
	ErrMalformed        = errors.New("notify: malformed message")
	ErrHeartbeatTimeout = errors.New("notify: heartbeat timeout")
	ErrStreamClosed     = errors.New("notify: stream closed by server")
)

// Message is one push notification for a retrieval reference.
type Message struct {
	Message      string `json:"message"`
	ResponseCode string `json:"response_code"`
}

// Signal is what a message means to the engine.
type Signal int

const (
	// SignalNone marks heartbeats and unrelated status messages.
	SignalNone Signal = iota
	SignalConfirmed
	SignalServerTimeout
	SignalChannelError
)

func (s Signal) String() string {
	switch s {
	case SignalConfirmed:
		return "confirmed"
	case SignalServerTimeout:
		return "server_timeout"
	case SignalChannelError:
		return "channel_error"
	default:
		return "none"
	}
}

// Classify maps a decoded message to a signal. Only a scanned message with the
// success code confirms the payment.
func Classify(m Message) Signal {
	switch {
	case m.Message == MessageScanned && m.ResponseCode == successCode:
		return SignalConfirmed
	case m.Message == MessageTimeout:
		return SignalServerTimeout
	default:
		return SignalNone
	}
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
