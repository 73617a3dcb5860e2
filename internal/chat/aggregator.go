// ABOUTME: Aggregator folding the chat event stream into per-session transcripts.
// ABOUTME: Cumulative deltas replace prior text; terminal events seal the run.

package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1devstudio/clawdeck/internal/dedupe"
	"github.com/1devstudio/clawdeck/internal/protocol"
)

// Sealed-run ids are remembered long enough to drop any stragglers the
// gateway emits after the terminal event.
const (
	sealedRunTTL     = 5 * time.Minute
	sealedRunMaxSize = 1024
)

// UpdateFunc receives every message change in event order.
type UpdateFunc func(Message)

// Aggregator folds chat events into per-session transcripts, one active run
// per (sessionKey, runId) pair. It is safe for concurrent use, though events
// for one connection always arrive on a single goroutine.
type Aggregator struct {
	mu       sync.Mutex
	sessions map[string][]*Message // transcript order per session
	active   map[string]*Message   // in-flight runs, keyed by session+run
	byID     map[string]*Message   // user messages awaiting send resolution
	sealed   *dedupe.Cache
	version  uint64
	onUpdate UpdateFunc
	logger   *slog.Logger
}

// NewAggregator creates an aggregator. onUpdate may be nil when callers
// poll Messages instead. Pass nil logger for the default.
func NewAggregator(onUpdate UpdateFunc, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sessions: make(map[string][]*Message),
		active:   make(map[string]*Message),
		byID:     make(map[string]*Message),
		sealed:   dedupe.New(sealedRunTTL, sealedRunMaxSize),
		onUpdate: onUpdate,
		logger:   logger.With("component", "chat"),
	}
}

// HandleEvent adapts the aggregator to an event router subscription.
func (a *Aggregator) HandleEvent(event string, payload json.RawMessage) {
	var p protocol.ChatEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		a.logger.Warn("malformed chat event", "error", err)
		return
	}
	a.Apply(p)
}

// AppendUser records an outbound user message in the transcript before the
// send call resolves. The returned id is used with MarkUserSent/Failed.
func (a *Aggregator) AppendUser(sessionKey, text string) Message {
	now := time.Now()
	msg := &Message{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Role:       RoleUser,
		Text:       text,
		Status:     StatusSending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	a.mu.Lock()
	a.version++
	msg.Version = a.version
	a.sessions[sessionKey] = append(a.sessions[sessionKey], msg)
	a.byID[msg.ID] = msg
	out := *msg
	onUpdate := a.onUpdate
	a.mu.Unlock()

	if onUpdate != nil {
		onUpdate(out)
	}
	return out
}

// MarkUserSent flips a pending user message to sent once the gateway
// accepted it, attaching the run id the reply will stream under.
func (a *Aggregator) MarkUserSent(id, runID string) {
	a.finishUser(id, func(m *Message) {
		m.Status = StatusSent
		m.RunID = runID
	})
}

// MarkUserFailed flips a pending user message to error with the send
// failure's text.
func (a *Aggregator) MarkUserFailed(id string, sendErr error) {
	a.finishUser(id, func(m *Message) {
		m.Status = StatusError
		if sendErr != nil {
			m.Error = sendErr.Error()
		}
	})
}

func (a *Aggregator) finishUser(id string, mutate func(*Message)) {
	a.mu.Lock()
	msg, ok := a.byID[id]
	if !ok {
		a.mu.Unlock()
		a.logger.Warn("unknown user message id", "id", id)
		return
	}
	delete(a.byID, id)
	mutate(msg)
	a.version++
	msg.Version = a.version
	msg.UpdatedAt = time.Now()
	out := *msg
	onUpdate := a.onUpdate
	a.mu.Unlock()

	if onUpdate != nil {
		onUpdate(out)
	}
}

// Apply folds one chat event. It returns the resulting message and whether
// the event changed anything; events for sealed runs return false.
func (a *Aggregator) Apply(p protocol.ChatEventPayload) (Message, bool) {
	if p.SessionKey == "" {
		a.logger.Warn("chat event without session key", "state", p.State)
		return Message{}, false
	}

	key := runKey(p.SessionKey, p.RunID)

	a.mu.Lock()
	if a.sealed.Seen(key) {
		a.mu.Unlock()
		a.logger.Debug("dropping event for finished run",
			"session", p.SessionKey, "run_id", p.RunID, "state", p.State)
		return Message{}, false
	}

	msg, ok := a.active[key]
	if !ok {
		// An error with no run to attach to is dropped, not synthesized,
		// whether or not it carries a message body.
		if p.State == protocol.ChatStateError {
			a.sealed.Mark(key)
			a.mu.Unlock()
			a.logger.Warn("error event for unknown run",
				"session", p.SessionKey, "run_id", p.RunID, "error", p.ErrorMessage)
			return Message{}, false
		}
		msg = &Message{
			ID:         uuid.NewString(),
			SessionKey: p.SessionKey,
			RunID:      p.RunID,
			Role:       RoleAssistant,
			Status:     StatusStreaming,
			CreatedAt:  time.Now(),
		}
		a.active[key] = msg
		a.sessions[p.SessionKey] = append(a.sessions[p.SessionKey], msg)
	}

	if p.Message != nil {
		if p.Message.Role != "" {
			msg.Role = p.Message.Role
		}
		if p.Message.Model != "" {
			msg.Model = p.Message.Model
		}
	}

	switch p.State {
	case protocol.ChatStateDelta:
		// Deltas are cumulative: the payload is the whole text so far.
		if p.Message != nil {
			msg.Text = TextFromBlocks(p.Message.Content)
		}
		msg.Status = StatusStreaming

	case protocol.ChatStateFinal:
		// A final may carry the full message, or arrive bare after deltas
		// already delivered the text. A final whose content surfaces no text
		// (thinking-only, empty) keeps the last delta text.
		if p.Message != nil {
			if text := TextFromBlocks(p.Message.Content); text != "" {
				msg.Text = text
			}
		}
		msg.Status = StatusComplete

	case protocol.ChatStateAborted:
		// A stop is not a failure: the text produced so far stays visible.
		if p.Message != nil {
			if text := TextFromBlocks(p.Message.Content); text != "" {
				msg.Text = text
			}
		}
		msg.Status = StatusComplete

	case protocol.ChatStateError:
		msg.Status = StatusError
		msg.Error = p.ErrorMessage
		if msg.Error == "" {
			msg.Error = "run failed"
		}

	default:
		a.mu.Unlock()
		a.logger.Warn("chat event with unknown state", "state", p.State)
		return Message{}, false
	}

	a.version++
	msg.Version = a.version
	msg.UpdatedAt = time.Now()
	if p.State.Terminal() {
		delete(a.active, key)
		a.sealed.Mark(key)
	}
	out := *msg
	onUpdate := a.onUpdate
	a.mu.Unlock()

	if onUpdate != nil {
		onUpdate(out)
	}
	return out, true
}

// Messages returns the session's transcript, oldest first.
func (a *Aggregator) Messages(sessionKey string) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.sessions[sessionKey]
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

// Active returns the in-flight message for a run, if any.
func (a *Aggregator) Active(sessionKey, runID string) (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg, ok := a.active[runKey(sessionKey, runID)]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}

// ActiveCount returns how many runs are currently streaming.
func (a *Aggregator) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// IsStreaming reports whether any run is in flight for the session.
func (a *Aggregator) IsStreaming(sessionKey string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, msg := range a.active {
		if msg.SessionKey == sessionKey {
			return true
		}
	}
	return false
}

// Version returns the aggregator's change counter. Pollers re-read when it
// moves.
func (a *Aggregator) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// ResetSession drops one session's transcript and in-flight runs, e.g.
// before replaying history fetched from the gateway.
func (a *Aggregator) ResetSession(sessionKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionKey)
	for key, msg := range a.active {
		if msg.SessionKey == sessionKey {
			delete(a.active, key)
		}
	}
	for id, msg := range a.byID {
		if msg.SessionKey == sessionKey {
			delete(a.byID, id)
		}
	}
}

// Reset ends all in-flight runs but keeps transcripts. Used when a
// connection is re-established and the server will not resume old streams:
// whatever text a stalled run produced stays visible, marked complete.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	var ended []Message
	for _, msg := range a.active {
		msg.Status = StatusComplete
		a.version++
		msg.Version = a.version
		msg.UpdatedAt = time.Now()
		ended = append(ended, *msg)
	}
	a.active = make(map[string]*Message)
	onUpdate := a.onUpdate
	a.mu.Unlock()

	if onUpdate != nil {
		for _, msg := range ended {
			onUpdate(msg)
		}
	}
}

func runKey(sessionKey, runID string) string {
	return sessionKey + "\x00" + runID
}
