// ABOUTME: Connection state machine: dial, challenge/connect handshake, ready, reconnect, closed.
// ABOUTME: One reader goroutine per connection drains inbound frames serially.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1devstudio/clawdeck/internal/auth"
	"github.com/1devstudio/clawdeck/internal/config"
	"github.com/1devstudio/clawdeck/internal/protocol"
)

// Handshake tuning.
const (
	// DefaultHandshakeTimeout bounds the wait for the challenge event and
	// for the hello response. Expiry is treated like a transport failure.
	DefaultHandshakeTimeout = 15 * time.Second

	// DefaultCallTimeout is the per-call response deadline.
	DefaultCallTimeout = 30 * time.Second

	// protocolErrorLimit is how many consecutive undecodable frames are
	// tolerated before the connection is torn down.
	protocolErrorLimit = 8

	// sendQueueSize buffers outbound frames between callers and the
	// session's single writer goroutine.
	sendQueueSize = 64
)

var (
	errHandshakeTimeout = errors.New("handshake timed out")
	errServerShutdown   = errors.New("server announced shutdown")
	errProtocolErrors   = errors.New("too many undecodable frames")
)

// SnapshotSink receives the initial bulk state from a successful handshake.
// It is invoked before the connection reports connected.
type SnapshotSink interface {
	ApplySnapshot(gatewayID string, snap *protocol.Snapshot)
}

// Options configures a Conn.
type Options struct {
	Profile     config.GatewayProfile
	Credentials auth.Credentials
	Dialer      Dialer
	Logger      *slog.Logger
	Snapshots   SnapshotSink

	// Client identity advertised during handshake.
	Client   protocol.ClientInfo
	Role     string
	Scopes   []string
	DeviceID string
	Locale   string
	UserAgent string

	CallTimeout      time.Duration
	HandshakeTimeout time.Duration
	Backoff          BackoffPolicy
}

func (o *Options) applyDefaults() {
	if o.Dialer == nil {
		o.Dialer = &WebsocketDialer{UserAgent: o.UserAgent}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Client.ID == "" {
		o.Client = protocol.ClientInfo{
			ID:       "clawdeck",
			Version:  "dev",
			Platform: runtime.GOOS,
			Mode:     "ui",
		}
	}
	if o.Role == "" {
		o.Role = "operator"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
}

// session is the per-attempt transport context. A new session is created
// for every connect attempt; stale sessions are recognized by generation.
type session struct {
	gen         int
	ctx         context.Context
	cancel      context.CancelFunc
	transport   Transport
	sendCh      chan []byte
	challengeCh chan protocol.ChallengePayload
}

// Conn is one gateway connection. All methods are safe for concurrent use.
type Conn struct {
	opts   Options
	logger *slog.Logger
	router *Router
	calls  *correlator

	mu             sync.Mutex
	state          State
	lastErr        error
	sess           *session
	gen            int
	attempt        int
	reconnectTimer *time.Timer
	protoErrs      int

	policy      protocol.PolicyInfo
	server      protocol.ServerInfo
	features    protocol.Features
	deviceToken string

	stateSubs []func(State)
}

// NewConn creates a connection for one gateway profile. It starts in the
// disconnected state; call Connect to establish.
func NewConn(opts Options) *Conn {
	opts.applyDefaults()
	logger := opts.Logger.With("gateway", opts.Profile.ID)
	return &Conn{
		opts:   opts,
		logger: logger,
		router: NewRouter(logger),
		calls:  newCorrelator(logger),
		state:  StateDisconnected,
	}
}

// GatewayID returns the owning profile's id.
func (c *Conn) GatewayID() string { return c.opts.Profile.ID }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent connection-level failure, if any. A
// terminal *AuthError stays here until credentials change.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Policy returns the limits negotiated during handshake.
func (c *Conn) Policy() protocol.PolicyInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// Server returns the server info from the last successful handshake.
func (c *Conn) Server() protocol.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Features returns the method/event lists from the last successful handshake.
func (c *Conn) Features() protocol.Features {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// DeviceToken returns the token issued by the gateway on connect, if any.
func (c *Conn) DeviceToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceToken
}

// Router exposes the event subscription surface for this connection.
func (c *Conn) Router() *Router { return c.router }

// OnStateChange registers fn to be called after every state transition.
// Callbacks run synchronously on the transitioning goroutine.
func (c *Conn) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, fn)
}

// Connect starts establishing the connection. It is a no-op returning
// ErrAlreadyConnected when a session is already live or pending.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateReconnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.stopReconnectTimerLocked()
	c.lastErr = nil
	sess := c.newSessionLocked()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	go c.runSession(sess)
	return nil
}

// Disconnect tears the connection down deliberately: the reconnect timer is
// cancelled, every pending call resolves with a cancellation error, and the
// event subscription table for this connection is cleared.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.stopReconnectTimerLocked()
	c.teardownSessionLocked()
	c.gen++ // invalidate any in-flight session goroutines
	alreadyDown := c.state == StateDisconnected
	c.setStateLocked(StateDisconnected)
	c.lastErr = nil
	c.mu.Unlock()

	c.calls.cancelAll(ErrConnectionClosed)
	if !alreadyDown {
		// Clearing only on an actual transition keeps a repeated Disconnect
		// from wiping subscriptions installed after the first one's
		// notification.
		c.router.Clear()
		c.notifyState(StateDisconnected)
		c.logger.Info("disconnected")
	}
}

// Call sends a request and suspends the caller until the response, the
// per-call deadline, ctx cancellation, or connection loss. It never blocks
// the connection's own frame-processing goroutine.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	sess := c.sess
	c.mu.Unlock()

	return c.callOn(ctx, sess, method, params, c.opts.CallTimeout)
}

// callOn issues a request on a specific session. The handshake path uses it
// before the connection is observable as connected.
func (c *Conn) callOn(ctx context.Context, sess *session, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := uuid.NewString()
	frame, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	call := c.calls.register(id, method, timeout)

	select {
	case sess.sendCh <- data:
	case <-sess.ctx.Done():
		c.calls.remove(id)
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		c.calls.remove(id)
		return nil, ctx.Err()
	}

	select {
	case res := <-call.done:
		return res.payload, res.err
	case <-ctx.Done():
		c.calls.remove(id)
		return nil, ctx.Err()
	}
}

// newSessionLocked allocates the next session generation. Caller holds mu.
func (c *Conn) newSessionLocked() *session {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		gen:         c.gen,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendQueueSize),
		challengeCh: make(chan protocol.ChallengePayload, 1),
	}
	c.sess = sess
	return sess
}

// runSession performs one connect attempt end to end.
func (c *Conn) runSession(sess *session) {
	transport, err := c.opts.Dialer.Dial(sess.ctx, c.opts.Profile.URL(), c.opts.Credentials.Token)
	if err != nil {
		c.sessionFailed(sess, fmt.Errorf("dialing gateway: %w", err))
		return
	}

	c.mu.Lock()
	if sess.gen != c.gen {
		c.mu.Unlock()
		_ = transport.Close()
		return
	}
	sess.transport = transport
	c.protoErrs = 0
	c.setStateLocked(StateAwaitingChallenge)
	c.mu.Unlock()
	c.notifyState(StateAwaitingChallenge)

	go c.readLoop(sess)
	go c.writeLoop(sess)

	// The server speaks first: wait for its challenge.
	var challenge protocol.ChallengePayload
	select {
	case challenge = <-sess.challengeCh:
	case <-time.After(c.opts.HandshakeTimeout):
		c.sessionFailed(sess, fmt.Errorf("%w: no challenge", errHandshakeTimeout))
		return
	case <-sess.ctx.Done():
		return
	}

	c.mu.Lock()
	if sess.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateHandshaking)
	c.mu.Unlock()
	c.notifyState(StateHandshaking)

	params, err := c.connectParams(challenge)
	if err != nil {
		c.sessionFailed(sess, err)
		return
	}

	payload, err := c.callOn(sess.ctx, sess, protocol.MethodConnect, params, c.opts.HandshakeTimeout)
	if err != nil {
		if isAuthRejection(err) {
			var ce *CallError
			errors.As(err, &ce)
			c.authFailed(sess, &AuthError{Code: ce.Code, Message: ce.Message})
			return
		}
		c.sessionFailed(sess, fmt.Errorf("connect request: %w", err))
		return
	}

	var hello protocol.HelloOK
	if err := json.Unmarshal(payload, &hello); err != nil {
		c.sessionFailed(sess, fmt.Errorf("decoding hello payload: %w", err))
		return
	}

	// Seed agents/sessions before anyone can observe the connected state.
	if c.opts.Snapshots != nil && hello.Snapshot != nil {
		c.opts.Snapshots.ApplySnapshot(c.opts.Profile.ID, hello.Snapshot)
	}

	c.mu.Lock()
	if sess.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.policy = hello.Policy
	c.server = hello.Server
	c.features = hello.Features
	if hello.Auth != nil {
		c.deviceToken = hello.Auth.DeviceToken
	}
	c.attempt = 0 // success resets the backoff sequence
	c.lastErr = nil
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.notifyState(StateConnected)
	c.logger.Info("connected",
		"server_version", hello.Server.Version,
		"conn_id", hello.Server.ConnID,
		"protocol", hello.Protocol,
	)
}

// connectParams assembles the connect request body, signing the challenge
// nonce when a device key is held.
func (c *Conn) connectParams(challenge protocol.ChallengePayload) (protocol.ConnectParams, error) {
	params := protocol.ConnectParams{
		MinProtocol: protocol.MinProtocolVersion,
		MaxProtocol: protocol.MaxProtocolVersion,
		Client:      c.opts.Client,
		Role:        c.opts.Role,
		Scopes:      c.opts.Scopes,
		Locale:      c.opts.Locale,
		UserAgent:   c.opts.UserAgent,
	}

	if c.opts.Credentials.Token != "" {
		params.Auth = &protocol.AuthInfo{Token: c.opts.Credentials.Token}
	}

	if key := c.opts.Credentials.Device; key != nil && challenge.Nonce != "" {
		proof, err := key.SignChallenge(challenge.Nonce, time.Now())
		if err != nil {
			return protocol.ConnectParams{}, fmt.Errorf("signing challenge: %w", err)
		}
		deviceID := c.opts.DeviceID
		if deviceID == "" {
			deviceID = key.Fingerprint()
		}
		params.Device = &protocol.DeviceInfo{
			ID:        deviceID,
			PublicKey: proof.PublicKey,
			Signature: proof.Signature,
			SignedAt:  proof.SignedAt,
			Nonce:     proof.Nonce,
		}
	}

	return params, nil
}

// readLoop drains inbound frames serially for one session.
func (c *Conn) readLoop(sess *session) {
	for {
		data, err := sess.transport.Read(sess.ctx)
		if err != nil {
			c.sessionFailed(sess, fmt.Errorf("transport read: %w", err))
			return
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownFrameType) {
				// Forward compatibility: newer servers may add frame types.
				c.logger.Debug("skipping unrecognized frame", "error", err)
				continue
			}
			if c.noteProtocolError(sess, err) {
				return
			}
			continue
		}
		c.clearProtocolErrors()

		switch f := frame.(type) {
		case protocol.ResponseFrame:
			c.calls.resolve(f)
		case protocol.EventFrame:
			c.handleEvent(sess, f)
		case protocol.RequestFrame:
			c.logger.Warn("dropping server-initiated request", "method", f.Method)
		}
	}
}

// writeLoop is the session's single transport writer.
func (c *Conn) writeLoop(sess *session) {
	for {
		select {
		case <-sess.ctx.Done():
			return
		case data := <-sess.sendCh:
			if err := sess.transport.Write(sess.ctx, data); err != nil {
				c.sessionFailed(sess, fmt.Errorf("transport write: %w", err))
				return
			}
		}
	}
}

// handleEvent processes one inbound event on the reader goroutine.
func (c *Conn) handleEvent(sess *session, f protocol.EventFrame) {
	switch f.Event {
	case protocol.EventConnectChallenge:
		var challenge protocol.ChallengePayload
		if err := json.Unmarshal(f.Payload, &challenge); err != nil {
			c.logger.Warn("malformed challenge payload", "error", err)
			return
		}
		select {
		case sess.challengeCh <- challenge:
		default:
			// A second challenge mid-session is unexpected; ignore it.
			c.logger.Warn("ignoring duplicate challenge")
		}
	case protocol.EventShutdown:
		var shutdown protocol.ShutdownPayload
		_ = json.Unmarshal(f.Payload, &shutdown)
		c.logger.Info("server shutting down", "reason", shutdown.Reason)
		c.router.Dispatch(f.Event, f.Payload)
		c.sessionFailed(sess, errServerShutdown)
	default:
		c.router.Dispatch(f.Event, f.Payload)
	}
}

// noteProtocolError records one undecodable frame; returns true when the
// threshold is crossed and the session has been torn down.
func (c *Conn) noteProtocolError(sess *session, err error) bool {
	c.mu.Lock()
	c.protoErrs++
	count := c.protoErrs
	c.mu.Unlock()

	c.logger.Warn("dropping malformed frame", "error", err, "consecutive", count)
	if count >= protocolErrorLimit {
		c.sessionFailed(sess, errProtocolErrors)
		return true
	}
	return false
}

func (c *Conn) clearProtocolErrors() {
	c.mu.Lock()
	c.protoErrs = 0
	c.mu.Unlock()
}

// sessionFailed handles any involuntary session end: transport failure,
// handshake timeout, shutdown event, or protocol-error overflow. The next
// attempt is scheduled per the backoff policy.
func (c *Conn) sessionFailed(sess *session, err error) {
	c.mu.Lock()
	if sess.gen != c.gen {
		// A newer session or an explicit disconnect superseded this one.
		c.mu.Unlock()
		return
	}
	c.teardownSessionLocked()
	c.gen++ // the session's other goroutines must not re-report this failure
	c.lastErr = err
	delay := c.opts.Backoff.Delay(c.attempt)
	c.attempt++
	c.setStateLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, c.reconnectFire)
	c.mu.Unlock()

	c.calls.cancelAll(ErrConnectionClosed)
	c.notifyState(StateReconnecting)
	c.logger.Warn("connection lost; reconnecting", "error", err, "backoff", delay)
}

// authFailed handles a credential rejection during handshake: terminal, no
// reconnect, surfaced via LastError.
func (c *Conn) authFailed(sess *session, authErr *AuthError) {
	c.mu.Lock()
	if sess.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.teardownSessionLocked()
	c.gen++
	c.lastErr = authErr
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.calls.cancelAll(authErr)
	c.notifyState(StateDisconnected)
	c.logger.Error("authentication rejected; not retrying", "code", authErr.Code)
}

// reconnectFire runs when the backoff timer elapses.
func (c *Conn) reconnectFire() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	sess := c.newSessionLocked()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	go c.runSession(sess)
}

// teardownSessionLocked closes the live session, if any. Caller holds mu.
func (c *Conn) teardownSessionLocked() {
	if c.sess == nil {
		return
	}
	c.sess.cancel()
	if c.sess.transport != nil {
		_ = c.sess.transport.Close()
	}
	c.sess = nil
}

func (c *Conn) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Conn) setStateLocked(s State) {
	c.state = s
}

// notifyState invokes state subscribers outside the lock.
func (c *Conn) notifyState(s State) {
	c.mu.Lock()
	subs := make([]func(State), len(c.stateSubs))
	copy(subs, c.stateSubs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
