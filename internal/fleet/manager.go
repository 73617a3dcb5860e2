// ABOUTME: Manager owning one gateway connection per configured profile.
// ABOUTME: Resolution maps agent bindings to live connections, failing fast when down.

package fleet

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/1devstudio/clawdeck/internal/auth"
	"github.com/1devstudio/clawdeck/internal/chat"
	"github.com/1devstudio/clawdeck/internal/config"
	"github.com/1devstudio/clawdeck/internal/gateway"
	"github.com/1devstudio/clawdeck/internal/protocol"
)

var (
	// ErrUnknownGateway means no profile with the given id is registered.
	ErrUnknownGateway = errors.New("unknown gateway")

	// ErrGatewayUnavailable means the binding's gateway exists but is not
	// connected. Requests are never queued for later delivery.
	ErrGatewayUnavailable = errors.New("gateway not connected")

	// ErrDuplicateGateway means a profile with the same id already exists.
	ErrDuplicateGateway = errors.New("gateway already registered")
)

// ChatUpdateFunc receives aggregated chat message changes per gateway.
type ChatUpdateFunc func(gatewayID string, msg chat.Message)

// StateChangeFunc receives connection state transitions per gateway.
type StateChangeFunc func(gatewayID string, state gateway.State)

// Options configures a Manager. Per-connection settings (timeouts, backoff,
// client identity) are shared across the fleet; the bearer token comes from
// each profile.
type Options struct {
	Device      *auth.DeviceKey
	DeviceID    string
	Dialer      gateway.Dialer
	Logger      *slog.Logger
	Client      protocol.ClientInfo
	Scopes      []string
	CallTimeout time.Duration
	Backoff     gateway.BackoffPolicy

	OnChatUpdate  ChatUpdateFunc
	OnStateChange StateChangeFunc
}

// member is one gateway's connection plus its per-gateway derived state.
type member struct {
	profile config.GatewayProfile
	conn    *gateway.Conn
	agg     *chat.Aggregator

	mu       sync.Mutex
	agents   []protocol.AgentEntry
	sessions []protocol.SessionEntry
}

// Manager holds the connection set. All methods are safe for concurrent use.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	members  map[string]*member
	bindings []config.AgentBinding
}

// NewManager builds the fleet from configured profiles and bindings.
// Nothing connects until ConnectAll or per-profile Connect.
func NewManager(profiles []config.GatewayProfile, bindings []config.AgentBinding, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		opts:    opts,
		logger:  opts.Logger.With("component", "fleet"),
		members: make(map[string]*member),
	}
	for _, p := range profiles {
		m.addLocked(p)
	}
	m.bindings = sortedBindings(bindings)
	return m
}

// AddProfile registers a new gateway at runtime. The connection starts
// disconnected; call ConnectAll or Connect to establish it.
func (m *Manager) AddProfile(p config.GatewayProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGateway, p.ID)
	}
	m.addLocked(p)
	return nil
}

// RemoveProfile disconnects and forgets a gateway. Bindings that reference
// it resolve to ErrUnknownGateway afterwards.
func (m *Manager) RemoveProfile(gatewayID string) error {
	m.mu.Lock()
	mem, ok := m.members[gatewayID]
	if ok {
		delete(m.members, gatewayID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayID)
	}
	mem.conn.Disconnect()
	return nil
}

// addLocked creates the member and wires its aggregator and callbacks.
// Caller holds mu (or has exclusive access during construction).
func (m *Manager) addLocked(p config.GatewayProfile) {
	mem := &member{profile: p}
	mem.agg = chat.NewAggregator(m.chatUpdateFunc(p.ID), m.opts.Logger)
	mem.conn = gateway.NewConn(gateway.Options{
		Profile: p,
		Credentials: auth.Credentials{
			Token:  p.Token,
			Device: m.opts.Device,
		},
		Dialer:      m.opts.Dialer,
		Logger:      m.opts.Logger,
		Snapshots:   (*snapshotSink)(mem),
		Client:      m.opts.Client,
		Scopes:      m.opts.Scopes,
		DeviceID:    m.opts.DeviceID,
		CallTimeout: m.opts.CallTimeout,
		Backoff:     m.opts.Backoff,
	})

	mem.conn.Router().Subscribe(protocol.EventChat, mem.agg.HandleEvent)
	mem.conn.OnStateChange(m.stateChangeFunc(p.ID, mem))

	m.members[p.ID] = mem
}

func (m *Manager) chatUpdateFunc(gatewayID string) chat.UpdateFunc {
	if m.opts.OnChatUpdate == nil {
		return nil
	}
	return func(msg chat.Message) {
		m.opts.OnChatUpdate(gatewayID, msg)
	}
}

func (m *Manager) stateChangeFunc(gatewayID string, mem *member) func(gateway.State) {
	return func(s gateway.State) {
		// A dropped connection will not resume old streams, so in-flight
		// runs are discarded when the connection leaves the ready state.
		if s == gateway.StateReconnecting || s == gateway.StateDisconnected {
			mem.agg.Reset()
		}
		// Reaching disconnected drops the subscription table; restore the
		// chat subscription so a later reconnect keeps aggregating. The
		// Clear keeps exactly one handler regardless of how we got here.
		if s == gateway.StateDisconnected {
			mem.conn.Router().Clear()
			mem.conn.Router().Subscribe(protocol.EventChat, mem.agg.HandleEvent)
		}
		if m.opts.OnStateChange != nil {
			m.opts.OnStateChange(gatewayID, s)
		}
	}
}

// ConnectAll starts every registered connection. Already-live connections
// are left alone, so repeated calls are safe.
func (m *Manager) ConnectAll() {
	for _, mem := range m.snapshotMembers() {
		if err := mem.conn.Connect(); err != nil && !errors.Is(err, gateway.ErrAlreadyConnected) {
			m.logger.Warn("connect failed", "gateway", mem.profile.ID, "error", err)
		}
	}
}

// Connect starts one gateway's connection.
func (m *Manager) Connect(gatewayID string) error {
	mem, err := m.member(gatewayID)
	if err != nil {
		return err
	}
	if err := mem.conn.Connect(); err != nil && !errors.Is(err, gateway.ErrAlreadyConnected) {
		return err
	}
	return nil
}

// DisconnectAll deliberately tears down every connection.
func (m *Manager) DisconnectAll() {
	for _, mem := range m.snapshotMembers() {
		mem.conn.Disconnect()
	}
}

// Client returns the connection for a gateway id.
func (m *Manager) Client(gatewayID string) (*gateway.Conn, error) {
	mem, err := m.member(gatewayID)
	if err != nil {
		return nil, err
	}
	return mem.conn, nil
}

// IsConnected reports whether a gateway's connection is ready for calls.
func (m *Manager) IsConnected(gatewayID string) bool {
	mem, err := m.member(gatewayID)
	if err != nil {
		return false
	}
	return mem.conn.State() == gateway.StateConnected
}

// Resolve maps an agent binding to its live connection. It fails fast when
// the gateway is unknown or not currently connected; callers surface the
// error instead of queueing work.
func (m *Manager) Resolve(b config.AgentBinding) (*gateway.Conn, error) {
	mem, err := m.member(b.GatewayID)
	if err != nil {
		return nil, err
	}
	if mem.conn.State() != gateway.StateConnected {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, b.GatewayID)
	}
	return mem.conn, nil
}

// Aggregator returns the chat aggregator for a gateway.
func (m *Manager) Aggregator(gatewayID string) (*chat.Aggregator, error) {
	mem, err := m.member(gatewayID)
	if err != nil {
		return nil, err
	}
	return mem.agg, nil
}

// Agents returns the agent directory last seen for a gateway.
func (m *Manager) Agents(gatewayID string) ([]protocol.AgentEntry, error) {
	mem, err := m.member(gatewayID)
	if err != nil {
		return nil, err
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	out := make([]protocol.AgentEntry, len(mem.agents))
	copy(out, mem.agents)
	return out, nil
}

// Sessions returns the session directory last seen for a gateway.
func (m *Manager) Sessions(gatewayID string) ([]protocol.SessionEntry, error) {
	mem, err := m.member(gatewayID)
	if err != nil {
		return nil, err
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	out := make([]protocol.SessionEntry, len(mem.sessions))
	copy(out, mem.sessions)
	return out, nil
}

// Bindings returns the configured bindings in display order.
func (m *Manager) Bindings() []config.AgentBinding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.AgentBinding, len(m.bindings))
	copy(out, m.bindings)
	return out
}

// States returns the current state of every registered gateway.
func (m *Manager) States() map[string]gateway.State {
	out := make(map[string]gateway.State)
	for _, mem := range m.snapshotMembers() {
		out[mem.profile.ID] = mem.conn.State()
	}
	return out
}

// GatewayIDs returns the registered gateway ids, sorted.
func (m *Manager) GatewayIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.members))
	for id := range m.members {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (m *Manager) member(gatewayID string) (*member, error) {
	m.mu.RLock()
	mem, ok := m.members[gatewayID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayID)
	}
	return mem, nil
}

func (m *Manager) snapshotMembers() []*member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	return out
}

func sortedBindings(bindings []config.AgentBinding) []config.AgentBinding {
	out := make([]config.AgentBinding, len(bindings))
	copy(out, bindings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// snapshotSink adapts a member to the connection's snapshot interface.
type snapshotSink member

// ApplySnapshot stores the handshake snapshot as the gateway's directory.
func (s *snapshotSink) ApplySnapshot(gatewayID string, snap *protocol.Snapshot) {
	mem := (*member)(s)
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.agents = snap.Agents
	mem.sessions = snap.Sessions
}
