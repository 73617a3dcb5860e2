// Package gateway implements the client side of the gateway protocol: one
// connection state machine per configured gateway, request/response
// correlation, event routing, and automatic reconnection.
//
// # Connection lifecycle
//
// A Conn moves through these states:
//
//	disconnected → connecting → awaitingChallenge → handshaking → connected
//
// The transport handshake (websocket dial) moves the connection to
// awaitingChallenge. The server then pushes a connect.challenge event; the
// Conn answers with a connect request carrying protocol bounds, client
// identity and credentials, and waits for the hello response. The hello
// snapshot is applied before the state flips to connected, so no observer
// ever sees connected with stale state.
//
// An unexpected transport close, a failed handshake, or a server shutdown
// event moves the connection to reconnecting; attempts are rescheduled with
// exponential backoff forever, until an explicit Disconnect. The one
// exception is an authentication rejection during handshake: retrying with
// the same credentials would loop, so the connection lands in disconnected
// with a terminal *AuthError.
//
// # Concurrency
//
// Each Conn owns a single reader goroutine that drains the inbound frame
// stream serially, so events for one connection are never reordered or
// handled concurrently with each other. Outbound calls may be issued from
// any goroutine; Call suspends the caller until the response, a timeout, or
// cancellation, and never blocks the reader.
package gateway
