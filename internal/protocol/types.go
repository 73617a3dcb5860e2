// ABOUTME: Handshake and event payload shapes plus method/event/error-code constants.
// ABOUTME: Mirrors the gateway protocol; server-omittable fields are explicit optionals.

package protocol

// ProtocolVersion bounds advertised during connect.
const (
	MinProtocolVersion = 1
	MaxProtocolVersion = 3
)

// Methods the client issues.
const (
	MethodConnect       = "connect"
	MethodChatSend      = "chat.send"
	MethodChatHistory   = "chat.history"
	MethodChatAbort     = "chat.abort"
	MethodSessionsList  = "sessions.list"
	MethodSessionsPatch = "sessions.patch"
	MethodSessionsDelete = "sessions.delete"
	MethodAgentsList    = "agents.list"
	MethodAgentIdentity = "agent.identity"
	MethodConfigGet     = "config.get"
	MethodConfigSchema  = "config.schema"
	MethodConfigPatch   = "config.patch"
)

// Events the server pushes.
const (
	EventConnectChallenge = "connect.challenge"
	EventChat             = "chat"
	EventTick             = "tick"
	EventPresence         = "presence"
	EventShutdown         = "shutdown"
)

// Error codes carried on failed responses.
const (
	ErrorCodeUnknown          = "UNKNOWN"
	ErrorCodeUnauthorized     = "UNAUTHORIZED"
	ErrorCodeForbidden        = "FORBIDDEN"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeMethodNotFound   = "METHOD_NOT_FOUND"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeProtocolMismatch = "PROTOCOL_MISMATCH"
	ErrorCodeInternal         = "INTERNAL"
)

// ChallengePayload is the connect.challenge event body.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts,omitempty"`
}

// ConnectParams is the body of the connect request.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Role        string      `json:"role,omitempty"`
	Scopes      []string    `json:"scopes,omitempty"`
	Auth        *AuthInfo   `json:"auth,omitempty"`
	Device      *DeviceInfo `json:"device,omitempty"`
	Locale      string      `json:"locale,omitempty"`
	UserAgent   string      `json:"userAgent,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
	DisplayName string `json:"displayName,omitempty"`
}

// AuthInfo carries connect credentials.
type AuthInfo struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// DeviceInfo carries the device identity proof for challenge auth.
type DeviceInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey,omitempty"`
	Signature string `json:"signature,omitempty"`
	SignedAt  int64  `json:"signedAt,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// HelloOK is the successful connect response payload.
type HelloOK struct {
	Protocol int         `json:"protocol"`
	Server   ServerInfo  `json:"server"`
	Features Features    `json:"features"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	Auth     *AuthResult `json:"auth,omitempty"`
	Policy   PolicyInfo  `json:"policy"`
}

// ServerInfo describes the gateway that accepted the connection.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the methods and events the gateway supports.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// PolicyInfo carries connection policy limits.
type PolicyInfo struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMs   int `json:"tickIntervalMs"`
}

// AuthResult is the credential material issued on successful connect.
type AuthResult struct {
	DeviceToken string   `json:"deviceToken,omitempty"`
	Role        string   `json:"role,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	IssuedAtMs  int64    `json:"issuedAtMs,omitempty"`
}

// Snapshot is the initial bulk state delivered with hello.
type Snapshot struct {
	Agents   []AgentEntry   `json:"agents,omitempty"`
	Sessions []SessionEntry `json:"sessions,omitempty"`
}

// AgentEntry describes one agent hosted by a gateway.
type AgentEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Model   string `json:"model,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// SessionEntry describes one chat session in listings and snapshots.
type SessionEntry struct {
	Key          string `json:"key"`
	Label        string `json:"label,omitempty"`
	AgentID      string `json:"agentId,omitempty"`
	Model        string `json:"model,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
	UpdatedAt    int64  `json:"updatedAt,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// TickPayload is the heartbeat event body.
type TickPayload struct {
	TS int64 `json:"ts"`
}

// ShutdownPayload announces a server-initiated shutdown.
type ShutdownPayload struct {
	Reason            string `json:"reason,omitempty"`
	RestartExpectedMs int    `json:"restartExpectedMs,omitempty"`
}

// PresencePayload reports agent presence changes.
type PresencePayload struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
	TS      int64  `json:"ts,omitempty"`
}

// ChatSendParams is the body of a chat.send request.
type ChatSendParams struct {
	SessionKey string `json:"sessionKey"`
	Text       string `json:"text"`
	AgentID    string `json:"agentId,omitempty"`
	IdemKey    string `json:"idemKey,omitempty"`
}

// ChatSendResult is the chat.send response payload.
type ChatSendResult struct {
	RunID string `json:"runId"`
}

// ChatAbortParams is the body of a chat.abort request.
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

// ChatHistoryParams is the body of a chat.history request.
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

// SessionsPatchParams is the body of a sessions.patch request.
type SessionsPatchParams struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Model string `json:"model,omitempty"`
}

// SessionsDeleteParams is the body of a sessions.delete request.
type SessionsDeleteParams struct {
	Key string `json:"key"`
}

// AgentIdentityParams is the body of an agent.identity request.
type AgentIdentityParams struct {
	AgentID string `json:"agentId"`
}

// AgentIdentityResult is the agent.identity response payload.
type AgentIdentityResult struct {
	AgentID     string `json:"agentId"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Model       string `json:"model,omitempty"`
}

// ConfigPatchParams is the body of a config.patch request.
type ConfigPatchParams struct {
	Patch Value `json:"patch"`
}
