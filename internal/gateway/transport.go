// ABOUTME: Transport abstraction over the duplex message channel plus the websocket dialer.
// ABOUTME: One Read/Write is exactly one wire frame; tests substitute an in-memory fake.

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Transport is one established duplex message channel. Read and Write move
// whole frames; implementations must allow one concurrent reader and one
// concurrent writer.
type Transport interface {
	// Read blocks until the next inbound message or transport failure.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one outbound message.
	Write(ctx context.Context, data []byte) error
	// Close tears the channel down. Pending Reads return an error.
	Close() error
}

// Dialer establishes transports. The production implementation dials a
// websocket; tests provide scripted fakes.
type Dialer interface {
	Dial(ctx context.Context, url, bearer string) (Transport, error)
}

// WebsocketDialer dials gateway endpoints over websocket.
type WebsocketDialer struct {
	// UserAgent is sent on the upgrade request when non-empty.
	UserAgent string
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url, bearer string) (Transport, error) {
	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}
	if d.UserAgent != "" {
		header.Set("User-Agent", d.UserAgent)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	// Frame size limits are negotiated during handshake; until then accept
	// generous payloads rather than rejecting a large snapshot.
	conn.SetReadLimit(16 << 20)

	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client closing")
}
