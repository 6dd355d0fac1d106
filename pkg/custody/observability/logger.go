// Package observability provides production-grade observability
// features for custody stores: structured logging, metrics, and
// distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds store context to a logger.
// Returns a new logger with a store_id field.
//
// Example:
//
//	enriched := EnrichLogger(logger, "store-4f2a")
//	enriched.Info("doing work") // includes store_id
func EnrichLogger(logger *slog.Logger, storeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("store_id", storeID))
}

// LogEntryCreated logs a new entry entering the store.
func LogEntryCreated(logger *slog.Logger, storeID, entryID string, count int) {
	if logger == nil {
		return
	}
	logger.Debug("entry created",
		slog.String("store_id", storeID),
		slog.String("entry_id", entryID),
		slog.Int("entries", count),
	)
}

// LogEntryRemoved logs an entry leaving the store.
func LogEntryRemoved(logger *slog.Logger, storeID, entryID string, count int) {
	if logger == nil {
		return
	}
	logger.Debug("entry removed",
		slog.String("store_id", storeID),
		slog.String("entry_id", entryID),
		slog.Int("entries", count),
	)
}

// LogBorrowConflict logs a rejected access request.
func LogBorrowConflict(logger *slog.Logger, storeID, op, entryID string) {
	if logger == nil {
		return
	}
	logger.Debug("borrow conflict",
		slog.String("store_id", storeID),
		slog.String("op", op),
		slog.String("entry_id", entryID),
	)
}

// LogEntryPoisoned logs an entry entering quarantine (non-fatal, but
// worth warning about).
func LogEntryPoisoned(logger *slog.Logger, storeID, entryID string, panicValue any) {
	if logger == nil {
		return
	}
	logger.Warn("entry poisoned",
		slog.String("store_id", storeID),
		slog.String("entry_id", entryID),
		slog.Any("panic", panicValue),
	)
}

// LogStoreClosed logs store teardown.
func LogStoreClosed(logger *slog.Logger, storeID string, remaining int) {
	if logger == nil {
		return
	}
	logger.Info("store closed",
		slog.String("store_id", storeID),
		slog.Int("entries_released", remaining),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
