package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds store_id", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "store-4f2a")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "store-4f2a", record["store_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		enriched := EnrichLogger(nil, "store-4f2a")
		assert.Nil(t, enriched)
	})
}

func TestLogEntryCreated(t *testing.T) {
	t.Run("logs at DEBUG level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogEntryCreated(logger, "store-a", "entry-7", 3)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "entry created", record["msg"])
		assert.Equal(t, "store-a", record["store_id"])
		assert.Equal(t, "entry-7", record["entry_id"])
		assert.Equal(t, float64(3), record["entries"]) // JSON decodes ints as float64
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEntryCreated(nil, "store-a", "entry-1", 1)
		})
	})
}

func TestLogEntryRemoved(t *testing.T) {
	t.Run("logs entry and remaining count", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogEntryRemoved(logger, "store-a", "entry-7", 2)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "entry removed", record["msg"])
		assert.Equal(t, "entry-7", record["entry_id"])
		assert.Equal(t, float64(2), record["entries"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEntryRemoved(nil, "store-a", "entry-1", 0)
		})
	})
}

func TestLogBorrowConflict(t *testing.T) {
	t.Run("logs op and entry", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogBorrowConflict(logger, "store-a", "borrow_mut", "entry-9")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "borrow conflict", record["msg"])
		assert.Equal(t, "borrow_mut", record["op"])
		assert.Equal(t, "entry-9", record["entry_id"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogBorrowConflict(nil, "store-a", "borrow", "entry-1")
		})
	})
}

func TestLogEntryPoisoned(t *testing.T) {
	t.Run("logs at WARN level with panic value", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogEntryPoisoned(logger, "store-a", "entry-3", "index out of range")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "entry poisoned", record["msg"])
		assert.Equal(t, "entry-3", record["entry_id"])
		assert.Equal(t, "index out of range", record["panic"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEntryPoisoned(nil, "store-a", "entry-1", "boom")
		})
	})
}

func TestLogStoreClosed(t *testing.T) {
	t.Run("logs at INFO level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogStoreClosed(logger, "store-a", 5)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "store closed", record["msg"])
		assert.Equal(t, "store-a", record["store_id"])
		assert.Equal(t, float64(5), record["entries_released"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogStoreClosed(nil, "store-a", 0)
		})
	})
}

func TestTimedOperation(t *testing.T) {
	t.Run("measures duration", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(10 * time.Millisecond)
		duration := done()

		// Should be at least 10ms
		assert.GreaterOrEqual(t, duration, 10.0)
		// Should be less than 100ms (reasonable upper bound)
		assert.Less(t, duration, 100.0)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(5 * time.Millisecond)
		d1 := done()
		time.Sleep(5 * time.Millisecond)
		d2 := done()

		assert.Greater(t, d2, d1)
	})
}
