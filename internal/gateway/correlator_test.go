// ABOUTME: Tests for the request correlator.
// ABOUTME: Covers resolution, per-call timeout, cancellation, and stale-id handling.

package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1devstudio/clawdeck/internal/protocol"
)

func TestCorrelator_ResolveSuccess(t *testing.T) {
	c := newCorrelator(nil)
	call := c.register("id-1", "sessions.list", 0)

	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: true, Payload: json.RawMessage(`{"x":1}`)})

	res := <-call.done
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"x":1}`, string(res.payload))
	assert.Zero(t, c.size())
}

func TestCorrelator_ResolveError(t *testing.T) {
	c := newCorrelator(nil)
	call := c.register("id-1", "chat.send", 0)

	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: false, Error: &protocol.ErrorShape{
		Code:         protocol.ErrorCodeRateLimited,
		Message:      "busy",
		Retryable:    true,
		RetryAfterMs: 250,
	}})

	res := <-call.done
	var callErr *CallError
	require.ErrorAs(t, res.err, &callErr)
	assert.Equal(t, protocol.ErrorCodeRateLimited, callErr.Code)
	assert.Equal(t, 250, callErr.RetryAfterMs)
	assert.True(t, callErr.Retryable)
}

func TestCorrelator_ErrorResponseWithoutShape(t *testing.T) {
	c := newCorrelator(nil)
	call := c.register("id-1", "chat.send", 0)

	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: false})

	res := <-call.done
	var callErr *CallError
	require.ErrorAs(t, res.err, &callErr)
	assert.Equal(t, protocol.ErrorCodeUnknown, callErr.Code)
}

func TestCorrelator_Timeout(t *testing.T) {
	c := newCorrelator(nil)
	call := c.register("id-1", "chat.send", 10*time.Millisecond)

	select {
	case res := <-call.done:
		assert.ErrorIs(t, res.err, ErrCallTimeout)
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	assert.Zero(t, c.size())
}

func TestCorrelator_UnknownAndStaleResponses(t *testing.T) {
	c := newCorrelator(nil)

	// Unknown id: no pending entry, must not panic.
	c.resolve(protocol.ResponseFrame{ID: "ghost", OK: true})

	// Duplicate of an already-resolved id is dropped too.
	call := c.register("id-1", "chat.send", 0)
	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: true})
	<-call.done
	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: true})

	select {
	case <-call.done:
		t.Fatal("call resolved twice")
	default:
	}
}

func TestCorrelator_CancelAll(t *testing.T) {
	c := newCorrelator(nil)
	a := c.register("a", "sessions.list", 0)
	b := c.register("b", "agents.list", 0)
	require.Equal(t, 2, c.size())

	c.cancelAll(ErrConnectionClosed)

	assert.ErrorIs(t, (<-a.done).err, ErrConnectionClosed)
	assert.ErrorIs(t, (<-b.done).err, ErrConnectionClosed)
	assert.Zero(t, c.size())
}

func TestCorrelator_RemoveAbandonsWithoutResolving(t *testing.T) {
	c := newCorrelator(nil)
	call := c.register("id-1", "chat.send", 0)

	c.remove("id-1")
	assert.Zero(t, c.size())

	// A late response for the removed id is classified as stale.
	c.resolve(protocol.ResponseFrame{ID: "id-1", OK: true})
	select {
	case <-call.done:
		t.Fatal("abandoned call must not resolve")
	default:
	}
}
