// ABOUTME: Render-ready message model and content block flattening.
// ABOUTME: Only text blocks are surfaced; tool and thinking blocks are skipped.

package chat

import (
	"strings"
	"time"

	"github.com/1devstudio/clawdeck/internal/protocol"
)

// Status is the render state of a message.
type Status string

const (
	// StatusSending means a user message was handed to the connection but
	// the send call has not resolved yet.
	StatusSending Status = "sending"
	// StatusSent means the gateway accepted the user message.
	StatusSent Status = "sent"
	// StatusStreaming means more deltas may follow.
	StatusStreaming Status = "streaming"
	// StatusComplete means the run ended, by finishing or by abort.
	StatusComplete Status = "complete"
	// StatusError means the run or the send failed; Error carries the text.
	StatusError Status = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one transcript entry as a UI renders it. Version increases on
// every change, so pollers can diff cheaply.
type Message struct {
	ID         string
	SessionKey string
	RunID      string
	Role       string
	Model      string
	Text       string
	Status     Status
	Error      string
	Version    uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Streaming reports whether more updates may follow for this message.
func (m Message) Streaming() bool { return m.Status == StatusStreaming }

// Terminal reports whether the message will not change again.
func (m Message) Terminal() bool {
	return m.Status == StatusComplete || m.Status == StatusError || m.Status == StatusSent
}

// TextFromBlocks flattens a content list to display text. Text blocks are
// joined with blank lines; thinking, toolCall and toolResult blocks carry
// no display text and are skipped.
func TextFromBlocks(blocks protocol.BlockList) string {
	var parts []string
	for _, blk := range blocks {
		if blk.Type == protocol.BlockText && blk.Text != "" {
			parts = append(parts, blk.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
