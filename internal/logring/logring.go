// ABOUTME: Bounded in-memory ring buffer for log entries plus an slog.Handler tee.
// ABOUTME: Oldest entries are evicted; Entries returns a chronological snapshot.

// Package logring captures recent log output in a fixed-size ring so
// diagnostics surfaces can show it without unbounded memory growth.
package logring

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer is a thread-safe fixed-capacity ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	pos     int
	count   int
}

// NewBuffer creates a buffer holding at most size entries.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Add appends an entry, evicting the oldest when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Entries returns all buffered entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return []Entry{}
	}

	out := make([]Entry, b.count)
	if b.count < len(b.entries) {
		copy(out, b.entries[:b.count])
	} else {
		n := copy(out, b.entries[b.pos:])
		copy(out[n:], b.entries[:b.pos])
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Handler is an slog.Handler that records every record into a Buffer and
// forwards it to an inner handler.
type Handler struct {
	buffer *Buffer
	inner  slog.Handler
	attrs  []slog.Attr
	group  string
}

// NewHandler wraps inner so that handled records are also captured in buffer.
func NewHandler(inner slog.Handler, buffer *Buffer) *Handler {
	return &Handler{buffer: buffer, inner: inner}
}

// Enabled defers to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle captures the record and forwards it.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		h.addAttr(attrs, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.addAttr(attrs, a)
		return true
	})

	h.buffer.Add(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Attrs:   attrs,
	})

	return h.inner.Handle(ctx, rec)
}

func (h *Handler) addAttr(attrs map[string]any, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	attrs[key] = a.Value.Resolve().Any()
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		buffer: h.buffer,
		inner:  h.inner.WithAttrs(attrs),
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		group:  h.group,
	}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		buffer: h.buffer,
		inner:  h.inner.WithGroup(name),
		attrs:  h.attrs,
		group:  group,
	}
}
