// ABOUTME: Chat stream event payload and its typed content blocks.
// ABOUTME: Block decoding is lenient: a malformed element is skipped, not fatal.

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChatState is the lifecycle position of a chat event within a run.
type ChatState string

const (
	// ChatStateDelta carries the cumulative text produced so far.
	ChatStateDelta ChatState = "delta"
	// ChatStateFinal terminates the run with the complete message.
	ChatStateFinal ChatState = "final"
	// ChatStateAborted terminates the run after a user-initiated stop.
	ChatStateAborted ChatState = "aborted"
	// ChatStateError terminates the run with a failure.
	ChatStateError ChatState = "error"
)

// Terminal reports whether the state ends its run.
func (s ChatState) Terminal() bool {
	return s == ChatStateFinal || s == ChatStateAborted || s == ChatStateError
}

// ChatEventPayload is the body of a "chat" event. The error text here is a
// stream-level shape, deliberately distinct from ErrorShape on responses.
type ChatEventPayload struct {
	SessionKey   string            `json:"sessionKey"`
	RunID        string            `json:"runId,omitempty"`
	State        ChatState         `json:"state"`
	Message      *ChatEventMessage `json:"message,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// ChatEventMessage is the message body carried on a chat event.
type ChatEventMessage struct {
	Role    string    `json:"role,omitempty"`
	Content BlockList `json:"content,omitempty"`
	Model   string    `json:"model,omitempty"`
}

// Content block types.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolCall   = "toolCall"
	BlockToolResult = "toolResult"
)

// ContentBlock is one typed element of a message's content list.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// toolCall / toolResult fields.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input Value  `json:"input,omitzero"`
}

// BlockList decodes either the canonical ordered block array or the legacy
// degenerate form where content is a single plain string.
type BlockList []ContentBlock

// UnmarshalJSON implements lenient per-element decoding: an element that is
// not an object or that fails to parse is dropped and the rest of the batch
// survives.
func (b *BlockList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = nil
		return nil
	}

	// Legacy form: a bare string is one implicit text block.
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decoding string content: %w", err)
		}
		*b = BlockList{{Type: BlockText, Text: s}}
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return fmt.Errorf("decoding content list: %w", err)
	}

	blocks := make(BlockList, 0, len(elems))
	for _, raw := range elems {
		var blk ContentBlock
		if err := json.Unmarshal(raw, &blk); err != nil {
			continue
		}
		if blk.Type == "" {
			continue
		}
		blocks = append(blocks, blk)
	}
	*b = blocks
	return nil
}
