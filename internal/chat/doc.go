// ABOUTME: Package doc for chat stream aggregation.
// ABOUTME: Turns cumulative delta events into render-ready messages.

// Package chat aggregates streaming chat events into per-session transcripts.
//
// The gateway streams one "chat" event per update. Delta events carry the
// cumulative text produced so far, so each delta replaces the previous
// rendering rather than appending to it. A terminal event (final, aborted,
// or error) ends the run; anything arriving for a run after its terminal
// event is dropped.
//
// Outbound user messages are recorded before their send call resolves and
// flip to sent or failed afterwards, so a transcript always shows both sides
// of the conversation in order.
package chat
