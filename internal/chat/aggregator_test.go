// ABOUTME: Tests for chat stream aggregation.
// ABOUTME: Covers cumulative deltas, terminal states, and sealed-run stragglers.

package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1devstudio/clawdeck/internal/protocol"
)

func deltaEvent(session, run, text string) protocol.ChatEventPayload {
	return protocol.ChatEventPayload{
		SessionKey: session,
		RunID:      run,
		State:      protocol.ChatStateDelta,
		Message: &protocol.ChatEventMessage{
			Role:    "assistant",
			Content: protocol.BlockList{{Type: protocol.BlockText, Text: text}},
		},
	}
}

func TestAggregator_CumulativeDeltasReplaceText(t *testing.T) {
	a := NewAggregator(nil, nil)

	for _, text := range []string{"Hel", "Hello", "Hello world"} {
		msg, ok := a.Apply(deltaEvent("main", "r1", text))
		require.True(t, ok)
		assert.Equal(t, text, msg.Text)
		assert.Equal(t, StatusStreaming, msg.Status)
	}

	msg, ok := a.Active("main", "r1")
	require.True(t, ok)
	assert.Equal(t, "Hello world", msg.Text)
}

func TestAggregator_FinalSealsRun(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "Hello"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateFinal,
		Message: &protocol.ChatEventMessage{
			Content: protocol.BlockList{{Type: protocol.BlockText, Text: "Hello world"}},
			Model:   "sonnet",
		},
	})
	require.True(t, ok)
	assert.Equal(t, "Hello world", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
	assert.Equal(t, "sonnet", msg.Model)

	// After the terminal event the run is gone and stragglers are dropped.
	_, active := a.Active("main", "r1")
	assert.False(t, active)
	_, ok = a.Apply(deltaEvent("main", "r1", "resurrected"))
	assert.False(t, ok)
}

func TestAggregator_FinalWithoutPriorDeltas(t *testing.T) {
	a := NewAggregator(nil, nil)

	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateFinal,
		Message: &protocol.ChatEventMessage{
			Content: protocol.BlockList{{Type: protocol.BlockText, Text: "one-shot answer"}},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "one-shot answer", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
}

func TestAggregator_BareFinalKeepsDeltaText(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "Hello world"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateFinal,
	})
	require.True(t, ok)
	assert.Equal(t, "Hello world", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
}

func TestAggregator_TextlessFinalKeepsDeltaText(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "Hello world"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateFinal,
		Message: &protocol.ChatEventMessage{
			Content: protocol.BlockList{{Type: protocol.BlockThinking, Text: "hidden"}},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "Hello world", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
}

func TestAggregator_TextlessAbortKeepsDeltaText(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "partial"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateAborted,
		Message:    &protocol.ChatEventMessage{Content: protocol.BlockList{}},
	})
	require.True(t, ok)
	assert.Equal(t, "partial", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
}

func TestAggregator_AbortedKeepsPartialText(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "partial answ"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateAborted,
	})
	require.True(t, ok)
	assert.Equal(t, "partial answ", msg.Text)
	assert.Equal(t, StatusComplete, msg.Status)
	assert.Empty(t, msg.Error)
}

func TestAggregator_ErrorState(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "got this far"))
	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey:   "main",
		RunID:        "r1",
		State:        protocol.ChatStateError,
		ErrorMessage: "model overloaded",
	})
	require.True(t, ok)
	assert.Equal(t, StatusError, msg.Status)
	assert.Equal(t, "model overloaded", msg.Error)
	assert.Equal(t, "got this far", msg.Text)

	// No resurrection after an error either.
	_, ok = a.Apply(deltaEvent("main", "r1", "zombie"))
	assert.False(t, ok)
}

func TestAggregator_OnlyTextBlocksSurfaced(t *testing.T) {
	a := NewAggregator(nil, nil)

	msg, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey: "main",
		RunID:      "r1",
		State:      protocol.ChatStateDelta,
		Message: &protocol.ChatEventMessage{
			Content: protocol.BlockList{
				{Type: protocol.BlockThinking, Text: "reasoning..."},
				{Type: protocol.BlockText, Text: "A"},
				{Type: protocol.BlockToolCall, ID: "t1", Name: "search"},
				{Type: protocol.BlockText, Text: "B"},
			},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "A\n\nB", msg.Text)
}

func TestAggregator_StringContentIsImplicitTextBlock(t *testing.T) {
	a := NewAggregator(nil, nil)

	raw := []byte(`{"sessionKey":"main","runId":"r1","state":"delta","message":{"role":"assistant","content":"plain string"}}`)
	a.HandleEvent(protocol.EventChat, json.RawMessage(raw))

	msg, ok := a.Active("main", "r1")
	require.True(t, ok)
	assert.Equal(t, "plain string", msg.Text)
}

func TestAggregator_IndependentRunsPerSession(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("alpha", "r1", "from alpha"))
	a.Apply(deltaEvent("beta", "r1", "from beta"))
	assert.Equal(t, 2, a.ActiveCount())

	msgA, _ := a.Active("alpha", "r1")
	msgB, _ := a.Active("beta", "r1")
	assert.Equal(t, "from alpha", msgA.Text)
	assert.Equal(t, "from beta", msgB.Text)

	a.Apply(protocol.ChatEventPayload{SessionKey: "alpha", RunID: "r1", State: protocol.ChatStateFinal})
	assert.Equal(t, 1, a.ActiveCount())
	_, stillActive := a.Active("beta", "r1")
	assert.True(t, stillActive)
}

func TestAggregator_UpdateCallbackSeesEveryChange(t *testing.T) {
	var updates []Message
	a := NewAggregator(func(m Message) { updates = append(updates, m) }, nil)

	a.Apply(deltaEvent("main", "r1", "Hel"))
	a.Apply(deltaEvent("main", "r1", "Hello"))
	a.Apply(protocol.ChatEventPayload{SessionKey: "main", RunID: "r1", State: protocol.ChatStateFinal})

	require.Len(t, updates, 3)
	assert.Equal(t, "Hel", updates[0].Text)
	assert.Equal(t, "Hello", updates[1].Text)
	assert.Equal(t, StatusComplete, updates[2].Status)
}

func TestAggregator_MissingSessionKeyIgnored(t *testing.T) {
	a := NewAggregator(nil, nil)
	_, ok := a.Apply(protocol.ChatEventPayload{State: protocol.ChatStateDelta})
	assert.False(t, ok)
	assert.Zero(t, a.ActiveCount())
}

func TestAggregator_ResetDropsInFlightRuns(t *testing.T) {
	a := NewAggregator(nil, nil)
	a.Apply(deltaEvent("main", "r1", "streaming"))
	a.Reset()
	assert.Zero(t, a.ActiveCount())

	// A fresh run on the same key is allowed after reset.
	_, ok := a.Apply(deltaEvent("main", "r1", "new run"))
	assert.True(t, ok)
}

func TestMessage_TextFromBlocksEmpty(t *testing.T) {
	assert.Empty(t, TextFromBlocks(nil))
	assert.Empty(t, TextFromBlocks(protocol.BlockList{{Type: protocol.BlockThinking, Text: "x"}}))
}

func TestAggregator_UserMessageLifecycle(t *testing.T) {
	a := NewAggregator(nil, nil)

	msg := a.AppendUser("main", "hello there")
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, StatusSending, msg.Status)
	require.NotEmpty(t, msg.ID)

	a.MarkUserSent(msg.ID, "run-1")
	transcript := a.Messages("main")
	require.Len(t, transcript, 1)
	assert.Equal(t, StatusSent, transcript[0].Status)
	assert.Equal(t, "run-1", transcript[0].RunID)
	assert.Greater(t, transcript[0].Version, msg.Version)
}

func TestAggregator_UserMessageSendFailure(t *testing.T) {
	a := NewAggregator(nil, nil)

	msg := a.AppendUser("main", "doomed")
	a.MarkUserFailed(msg.ID, assert.AnError)

	transcript := a.Messages("main")
	require.Len(t, transcript, 1)
	assert.Equal(t, StatusError, transcript[0].Status)
	assert.Equal(t, assert.AnError.Error(), transcript[0].Error)

	// Resolving twice is a no-op.
	a.MarkUserSent(msg.ID, "run-x")
	assert.Equal(t, StatusError, a.Messages("main")[0].Status)
}

func TestAggregator_TranscriptOrdersUserAndAssistant(t *testing.T) {
	a := NewAggregator(nil, nil)

	user := a.AppendUser("main", "question")
	a.MarkUserSent(user.ID, "r1")
	a.Apply(deltaEvent("main", "r1", "answ"))
	a.Apply(protocol.ChatEventPayload{SessionKey: "main", RunID: "r1", State: protocol.ChatStateFinal})

	transcript := a.Messages("main")
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, RoleAssistant, transcript[1].Role)
	assert.Equal(t, "answ", transcript[1].Text)
	assert.Equal(t, StatusComplete, transcript[1].Status)
}

func TestAggregator_IsStreamingPerSession(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("alpha", "r1", "..."))
	assert.True(t, a.IsStreaming("alpha"))
	assert.False(t, a.IsStreaming("beta"))

	a.Apply(protocol.ChatEventPayload{SessionKey: "alpha", RunID: "r1", State: protocol.ChatStateFinal})
	assert.False(t, a.IsStreaming("alpha"))
}

func TestAggregator_VersionMovesOnEveryChange(t *testing.T) {
	a := NewAggregator(nil, nil)
	v0 := a.Version()

	a.Apply(deltaEvent("main", "r1", "a"))
	v1 := a.Version()
	assert.Greater(t, v1, v0)

	a.Apply(deltaEvent("main", "r1", "ab"))
	assert.Greater(t, a.Version(), v1)
}

func TestAggregator_ErrorWithoutRunIsDropped(t *testing.T) {
	a := NewAggregator(nil, nil)

	_, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey:   "main",
		RunID:        "ghost",
		State:        protocol.ChatStateError,
		ErrorMessage: "boom",
	})
	assert.False(t, ok)
	assert.Empty(t, a.Messages("main"))
}

func TestAggregator_ErrorWithoutRunDroppedEvenWithMessage(t *testing.T) {
	a := NewAggregator(nil, nil)

	_, ok := a.Apply(protocol.ChatEventPayload{
		SessionKey:   "main",
		RunID:        "ghost",
		State:        protocol.ChatStateError,
		ErrorMessage: "boom",
		Message: &protocol.ChatEventMessage{
			Role:    "assistant",
			Content: protocol.BlockList{{Type: protocol.BlockText, Text: "stale"}},
		},
	})
	assert.False(t, ok)
	assert.Empty(t, a.Messages("main"))
	assert.Zero(t, a.ActiveCount())
}

func TestAggregator_ResetSessionClearsTranscript(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.AppendUser("main", "hi")
	a.Apply(deltaEvent("main", "r1", "reply"))
	a.AppendUser("other", "kept")
	require.Len(t, a.Messages("main"), 2)

	a.ResetSession("main")
	assert.Empty(t, a.Messages("main"))
	assert.False(t, a.IsStreaming("main"))
	assert.Len(t, a.Messages("other"), 1)
}

func TestAggregator_ResetCompletesStalledRuns(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.Apply(deltaEvent("main", "r1", "partial"))
	a.Reset()

	transcript := a.Messages("main")
	require.Len(t, transcript, 1)
	assert.Equal(t, StatusComplete, transcript[0].Status)
	assert.Equal(t, "partial", transcript[0].Text)
	assert.Zero(t, a.ActiveCount())
}
