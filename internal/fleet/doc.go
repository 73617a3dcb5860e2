// ABOUTME: Package doc for the multi-gateway connection set.
// ABOUTME: One Conn plus one chat aggregator per configured gateway profile.

// Package fleet manages the set of gateway connections a client holds.
//
// Each configured gateway profile gets its own connection, chat aggregator,
// and snapshot of agents and sessions. Gateways are fully isolated: one
// losing its transport or rejecting credentials never disturbs the others.
package fleet
