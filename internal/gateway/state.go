// ABOUTME: Connection state enum.
// ABOUTME: Exactly one state is current per connection; transitions are strictly sequential.

package gateway

// State is the lifecycle position of a connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingChallenge
	StateHandshaking
	StateConnected
	StateReconnecting
)

// String returns the display name used in logs and status surfaces.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingChallenge:
		return "awaitingChallenge"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
