// Package dedupe provides a thread-safe, TTL-based, size-limited cache of
// recently seen keys, used to recognize duplicate wire messages.
package dedupe
