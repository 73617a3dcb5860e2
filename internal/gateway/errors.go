// ABOUTME: Error taxonomy for the gateway client.
// ABOUTME: Scoped call errors never escalate to connection failures and vice versa.

package gateway

import (
	"errors"
	"fmt"

	"github.com/1devstudio/clawdeck/internal/protocol"
)

var (
	// ErrNotConnected means a call was attempted while the connection is
	// not in the connected state. Calls fail fast instead of queuing.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrConnectionClosed resolves pending calls when their connection
	// leaves the connected state before a response arrives.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCallTimeout resolves a pending call whose deadline elapsed. The
	// connection itself is unaffected.
	ErrCallTimeout = errors.New("call timed out")

	// ErrAlreadyConnected is returned by Connect when a session is already
	// established or being established.
	ErrAlreadyConnected = errors.New("already connected")
)

// CallError is a method-level failure reported by the gateway (a response
// with ok=false). It resolves only the call that triggered it.
type CallError struct {
	Code         string
	Message      string
	Details      protocol.Value
	Retryable    bool
	RetryAfterMs int
}

// Error implements error.
func (e *CallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error %s", e.Code)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// callErrorFrom converts a wire error shape into a CallError.
func callErrorFrom(shape *protocol.ErrorShape) *CallError {
	if shape == nil {
		return &CallError{Code: protocol.ErrorCodeUnknown, Message: "response not ok"}
	}
	return &CallError{
		Code:         shape.Code,
		Message:      shape.Message,
		Details:      shape.Details,
		Retryable:    shape.Retryable,
		RetryAfterMs: shape.RetryAfterMs,
	}
}

// AuthError is a terminal handshake rejection. It does not trigger
// reconnection: the connection stays down until credentials change.
type AuthError struct {
	Code    string
	Message string
}

// Error implements error.
func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway rejected credentials (%s): %s", e.Code, e.Message)
}

// isAuthRejection reports whether a connect failure means bad credentials.
func isAuthRejection(err error) bool {
	var ce *CallError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == protocol.ErrorCodeUnauthorized || ce.Code == protocol.ErrorCodeForbidden
}
