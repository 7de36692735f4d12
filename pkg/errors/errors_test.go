package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMatchesThroughWrapping(t *testing.T) {
	err := &E{
		Code:    CodeNetworkError,
		Message: "Network error",
		Err:     fmt.Errorf("%w: %w", Code(CodeClientTimeout), fmt.Errorf("dial tcp: refused")),
	}

	assert.True(t, Is(err, Code(CodeNetworkError)))
	assert.True(t, Is(err, Code(CodeClientTimeout)))
	assert.False(t, Is(err, Code(CodeServerTimeout)))
	assert.Equal(t, CodeNetworkError, CodeOf(fmt.Errorf("outer: %w", err)))
	assert.Empty(t, CodeOf(fmt.Errorf("plain")))
}

func TestIs_IgnoresDetailedTargets(t *testing.T) {
	err := New(CodeChannelError, "stream closed")
	assert.False(t, Is(err, New(CodeChannelError, "other message")))
}

func TestDeclined(t *testing.T) {
	e := Declined("payment request", "51", "")
	assert.Equal(t, CodeGatewayDeclined, e.Code)
	assert.Equal(t, "51", e.GatewayCode)
	assert.Equal(t, "payment request declined by gateway", e.Message)

	e = Declined("payment request", "05", "Insufficient funds")
	assert.Equal(t, "Insufficient funds", e.Message)
	assert.Equal(t, "Insufficient funds", e.Instruction)

	var target *E
	require.True(t, stderrors.As(Wrap(CodeRequestError, "x", e), &target))
	assert.Equal(t, CodeRequestError, target.Code)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	e := Wrap(CodeRequestError, "Network error or failed to get QR", cause)

	assert.Equal(t, CodeRequestError, e.Code)
	assert.Equal(t, "request_error: Network error or failed to get QR (connection reset)", e.Error())
	assert.ErrorIs(t, e, cause)
	assert.Empty(t, e.GatewayCode)
}
