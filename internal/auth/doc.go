// Package auth holds the client-side credential material used during the
// gateway handshake: an optional bearer token and an optional device
// identity key.
//
// # Device identity
//
// A device key is an ed25519 keypair stored in OpenSSH private key format.
// When the gateway issues a connect.challenge nonce, the client proves
// possession of the key by signing the string "<signedAtMs>|<nonce>" and
// sending the base64-encoded SSH signature along with the authorized-key
// form of the public key. The gateway verifies the signature and tracks the
// nonce to prevent replay.
//
// # Device tokens
//
// On a successful handshake the gateway may issue a device token. The token
// is opaque to this client — it is never verified locally — but when it
// happens to be a JWT, Inspect extracts the subject and expiry so calling
// layers can schedule credential refresh.
package auth
