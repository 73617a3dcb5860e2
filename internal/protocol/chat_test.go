// ABOUTME: Tests for chat event payload decoding.
// ABOUTME: Covers block lists, the legacy string form, and lenient element handling.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatEventPayload_Delta(t *testing.T) {
	data := []byte(`{"sessionKey":"main","runId":"run-1","state":"delta","message":{"role":"assistant","content":[{"type":"text","text":"Hel"}],"model":"sonnet"}}`)

	var p ChatEventPayload
	require.NoError(t, json.Unmarshal(data, &p))

	assert.Equal(t, ChatStateDelta, p.State)
	assert.False(t, p.State.Terminal())
	require.NotNil(t, p.Message)
	require.Len(t, p.Message.Content, 1)
	assert.Equal(t, BlockText, p.Message.Content[0].Type)
	assert.Equal(t, "Hel", p.Message.Content[0].Text)
	assert.Equal(t, "sonnet", p.Message.Model)
}

func TestChatState_Terminal(t *testing.T) {
	assert.True(t, ChatStateFinal.Terminal())
	assert.True(t, ChatStateAborted.Terminal())
	assert.True(t, ChatStateError.Terminal())
	assert.False(t, ChatStateDelta.Terminal())
}

func TestBlockList_StringContentIsImplicitTextBlock(t *testing.T) {
	var msg ChatEventMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":"plain"}`), &msg))

	require.Len(t, msg.Content, 1)
	assert.Equal(t, BlockText, msg.Content[0].Type)
	assert.Equal(t, "plain", msg.Content[0].Text)
}

func TestBlockList_MalformedElementIsSkipped(t *testing.T) {
	var blocks BlockList
	data := []byte(`[{"type":"text","text":"A"},42,{"text":"no type"},{"type":"text","text":"B"}]`)
	require.NoError(t, json.Unmarshal(data, &blocks))

	require.Len(t, blocks, 2)
	assert.Equal(t, "A", blocks[0].Text)
	assert.Equal(t, "B", blocks[1].Text)
}

func TestBlockList_ToolCallInputPreservesNumericKinds(t *testing.T) {
	var blocks BlockList
	data := []byte(`[{"type":"toolCall","id":"t1","name":"search","input":{"limit":5,"threshold":0.9}}]`)
	require.NoError(t, json.Unmarshal(data, &blocks))

	require.Len(t, blocks, 1)
	assert.Equal(t, KindInt, blocks[0].Input.Get("limit").Kind())
	assert.Equal(t, KindDouble, blocks[0].Input.Get("threshold").Kind())
}

func TestBlockList_NullIsEmpty(t *testing.T) {
	var blocks BlockList
	require.NoError(t, json.Unmarshal([]byte(`null`), &blocks))
	assert.Empty(t, blocks)
}

func TestChatEventPayload_ErrorShapeIsStreamLevel(t *testing.T) {
	data := []byte(`{"sessionKey":"main","runId":"run-2","state":"error","errorMessage":"model overloaded"}`)

	var p ChatEventPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, ChatStateError, p.State)
	assert.Equal(t, "model overloaded", p.ErrorMessage)
	assert.Nil(t, p.Message)
}
