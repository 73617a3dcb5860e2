// Package config loads the clawdeck profile file: the set of gateway
// profiles the client connects to, the agent bindings that map (gateway,
// agent) pairs onto local display slots, and ambient settings (logging,
// call timeouts).
//
// The file format is chosen by extension: .toml (default for desktop
// installs) or .yaml/.yml. Both decode into the same File structure.
// Environment variables in the ${VAR_NAME} form are expanded before
// decoding, and duration fields are written as strings ("30s", "2m") and
// parsed after decoding.
//
// The core treats each profile as an immutable snapshot per connection
// attempt; editing profiles (and persisting tokens) is owned by the
// surrounding application.
package config
