// ABOUTME: Typed request wrappers over Conn.Call for every gateway method.
// ABOUTME: Decodes response payloads into the protocol package's shapes.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/1devstudio/clawdeck/internal/protocol"
)

// ChatSend submits a user message to a session. The returned run id
// correlates the chat events the gateway will stream back.
func (c *Conn) ChatSend(ctx context.Context, params protocol.ChatSendParams) (protocol.ChatSendResult, error) {
	var result protocol.ChatSendResult
	err := c.call(ctx, protocol.MethodChatSend, params, &result)
	return result, err
}

// ChatHistory fetches recent messages for a session.
func (c *Conn) ChatHistory(ctx context.Context, params protocol.ChatHistoryParams) ([]protocol.ChatEventMessage, error) {
	var result struct {
		Messages []protocol.ChatEventMessage `json:"messages"`
	}
	if err := c.call(ctx, protocol.MethodChatHistory, params, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// ChatAbort cancels an in-flight run. Omitting the run id aborts whatever
// run is active on the session.
func (c *Conn) ChatAbort(ctx context.Context, params protocol.ChatAbortParams) error {
	return c.call(ctx, protocol.MethodChatAbort, params, nil)
}

// SessionsList returns the gateway's current sessions.
func (c *Conn) SessionsList(ctx context.Context) ([]protocol.SessionEntry, error) {
	var result struct {
		Sessions []protocol.SessionEntry `json:"sessions"`
	}
	if err := c.call(ctx, protocol.MethodSessionsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// SessionsPatch updates mutable session attributes.
func (c *Conn) SessionsPatch(ctx context.Context, params protocol.SessionsPatchParams) error {
	return c.call(ctx, protocol.MethodSessionsPatch, params, nil)
}

// SessionsDelete removes a session and its history.
func (c *Conn) SessionsDelete(ctx context.Context, params protocol.SessionsDeleteParams) error {
	return c.call(ctx, protocol.MethodSessionsDelete, params, nil)
}

// AgentsList returns the agents hosted by the gateway.
func (c *Conn) AgentsList(ctx context.Context) ([]protocol.AgentEntry, error) {
	var result struct {
		Agents []protocol.AgentEntry `json:"agents"`
	}
	if err := c.call(ctx, protocol.MethodAgentsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// AgentIdentity fetches display metadata for one agent.
func (c *Conn) AgentIdentity(ctx context.Context, agentID string) (protocol.AgentIdentityResult, error) {
	var result protocol.AgentIdentityResult
	err := c.call(ctx, protocol.MethodAgentIdentity, protocol.AgentIdentityParams{AgentID: agentID}, &result)
	return result, err
}

// ConfigGet returns the gateway's configuration document.
func (c *Conn) ConfigGet(ctx context.Context) (protocol.Value, error) {
	raw, err := c.Call(ctx, protocol.MethodConfigGet, nil)
	if err != nil {
		return protocol.Null(), err
	}
	return protocol.ParseValue(raw)
}

// ConfigSchema returns the schema describing the configuration document.
func (c *Conn) ConfigSchema(ctx context.Context) (protocol.Value, error) {
	raw, err := c.Call(ctx, protocol.MethodConfigSchema, nil)
	if err != nil {
		return protocol.Null(), err
	}
	return protocol.ParseValue(raw)
}

// ConfigPatch applies a partial configuration update.
func (c *Conn) ConfigPatch(ctx context.Context, patch protocol.Value) error {
	return c.call(ctx, protocol.MethodConfigPatch, protocol.ConfigPatchParams{Patch: patch}, nil)
}

// call issues a request and unmarshals the payload into out when non-nil.
func (c *Conn) call(ctx context.Context, method string, params, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}
