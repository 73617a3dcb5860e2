// ABOUTME: Request correlator: tracks in-flight calls by id and resolves them from responses.
// ABOUTME: Unmatched response ids are logged and dropped; stale retries are told apart via a seen-id cache.

package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/1devstudio/clawdeck/internal/dedupe"
	"github.com/1devstudio/clawdeck/internal/protocol"
)

// recentIDTTL bounds how long resolved request ids are remembered for
// stale-response classification.
const (
	recentIDTTL     = 2 * time.Minute
	recentIDMaxSize = 4096
)

// callResult is the single resolution of a pending call: a payload or an
// error, never both.
type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is one in-flight request.
type pendingCall struct {
	id        string
	method    string
	createdAt time.Time
	done      chan callResult // buffered 1; resolved exactly once
	timer     *time.Timer
}

// correlator owns the pending-call table for one connection. It is safe for
// concurrent use: callers register from any goroutine while the reader
// goroutine resolves.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	recent  *dedupe.Cache
	logger  *slog.Logger
}

func newCorrelator(logger *slog.Logger) *correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &correlator{
		pending: make(map[string]*pendingCall),
		recent:  dedupe.New(recentIDTTL, recentIDMaxSize),
		logger:  logger,
	}
}

// register creates a pending call with the given deadline. The returned
// call's done channel receives exactly one result.
func (c *correlator) register(id, method string, timeout time.Duration) *pendingCall {
	call := &pendingCall{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		done:      make(chan callResult, 1),
	}

	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	if timeout > 0 {
		call.timer = time.AfterFunc(timeout, func() {
			c.fail(id, ErrCallTimeout)
		})
	}
	return call
}

// resolve matches a response frame to its pending call. Unmatched ids are a
// no-op: servers may echo retried ids after the original call resolved.
func (c *correlator) resolve(frame protocol.ResponseFrame) {
	c.mu.Lock()
	call, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
		c.recent.Mark(frame.ID)
	}
	stale := !ok && c.recent.Seen(frame.ID)
	c.mu.Unlock()

	if !ok {
		if stale {
			c.logger.Debug("dropping stale duplicate response", "request_id", frame.ID)
		} else {
			c.logger.Warn("response for unknown request", "request_id", frame.ID)
		}
		return
	}

	call.stopTimer()
	if frame.OK {
		call.done <- callResult{payload: frame.Payload}
	} else {
		call.done <- callResult{err: callErrorFrom(frame.Error)}
	}
}

// fail resolves one pending call with err. Used for timeouts and individual
// cancellation; a missing id is a no-op.
func (c *correlator) fail(id string, err error) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.recent.Mark(id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	call.stopTimer()
	call.done <- callResult{err: err}
}

// remove drops a pending call without resolving it (caller abandoned the
// wait, e.g. its context was cancelled).
func (c *correlator) remove(id string) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.recent.Mark(id)
	}
	c.mu.Unlock()

	if ok {
		call.stopTimer()
	}
}

// cancelAll resolves every pending call with err. Called when the owning
// connection leaves the connected state so callers never hang.
func (c *correlator) cancelAll(err error) {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for _, call := range c.pending {
		calls = append(calls, call)
	}
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		call.stopTimer()
		call.done <- callResult{err: err}
	}
}

// size returns the number of in-flight calls.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (p *pendingCall) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}
