// ABOUTME: Tests for the log ring buffer and slog handler tee.
// ABOUTME: Covers eviction order, wraparound, and attr capture.

package logring

import (
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_EvictsOldestFirst(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(Entry{Message: "m" + strconv.Itoa(i), Time: time.Now()})
	}

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "m2", entries[0].Message)
	assert.Equal(t, "m3", entries[1].Message)
	assert.Equal(t, "m4", entries[2].Message)
}

func TestBuffer_PartialFill(t *testing.T) {
	b := NewBuffer(8)
	b.Add(Entry{Message: "only"})

	entries := b.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "only", entries[0].Message)
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_Empty(t *testing.T) {
	b := NewBuffer(4)
	assert.Empty(t, b.Entries())
}

func TestHandler_CapturesRecords(t *testing.T) {
	buf := NewBuffer(16)
	logger := slog.New(NewHandler(slog.NewTextHandler(io.Discard, nil), buf))

	logger.Info("connected", "gateway", "home", "attempt", 2)

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "connected", entries[0].Message)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "home", entries[0].Attrs["gateway"])
	assert.Equal(t, int64(2), entries[0].Attrs["attempt"])
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	buf := NewBuffer(16)
	base := slog.New(NewHandler(slog.NewTextHandler(io.Discard, nil), buf))

	logger := base.With("component", "conn").WithGroup("call")
	logger.Warn("timeout", "method", "chat.send")

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "conn", entries[0].Attrs["component"])
	assert.Equal(t, "chat.send", entries[0].Attrs["call.method"])
}
