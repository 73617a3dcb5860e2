// Package protocol defines the gateway wire protocol: the three frame kinds
// exchanged over the persistent duplex channel (request, response, event),
// the handshake and event payload shapes, and a dynamic JSON value type that
// preserves the integer/float distinction the protocol relies on.
//
// # Frames
//
// Every message on the wire is exactly one JSON-encoded frame, discriminated
// by its "type" field:
//
//	{"type":"req",   "id":"...", "method":"...", "params":{...}}
//	{"type":"res",   "id":"...", "ok":true,  "payload":{...}}
//	{"type":"res",   "id":"...", "ok":false, "error":{"code":"...","message":"..."}}
//	{"type":"event", "event":"...", "payload":{...}}
//
// DecodeFrame probes the discriminator first and only then parses the
// concrete shape, so an unrecognized type surfaces as ErrUnknownFrameType
// (callers may choose to skip the frame) while malformed JSON surfaces as a
// plain decode error.
//
// # Handshake
//
// After the transport is established the server pushes a connect.challenge
// event carrying a nonce; the client answers with a connect request
// (ConnectParams) and the server replies with a hello payload (HelloOK)
// containing negotiated protocol, features, policy limits and an initial
// state snapshot.
package protocol
