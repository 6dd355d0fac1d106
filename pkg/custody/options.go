package custody

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/custody/pkg/custody/observability"
)

// storeConfig holds configuration for a Store.
type storeConfig[T any] struct {
	policy        Policy
	capacity      int
	borrowTimeout time.Duration
	disposer      func(T)
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	storeID       string
}

// defaultStoreConfig returns the default store configuration.
func defaultStoreConfig[T any]() storeConfig[T] {
	return storeConfig[T]{
		policy:  PolicyStrict,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		storeID: "store-" + uuid.New().String()[:8],
	}
}

// Option configures a Store at construction.
type Option[T any] func(*storeConfig[T])

// WithPolicy selects the conflict policy. Default: PolicyStrict.
func WithPolicy[T any](p Policy) Option[T] {
	return func(c *storeConfig[T]) {
		c.policy = p
	}
}

// WithCapacity limits the number of live entries. Create fails with
// ErrOutOfCapacity once the limit is reached. Default: unlimited.
func WithCapacity[T any](n int) Option[T] {
	return func(c *storeConfig[T]) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithBorrowTimeout bounds how long Borrow and BorrowMut wait under
// PolicyBlocking before giving up with ErrConflict. Zero means wait
// until the caller's context is done. Ignored under PolicyStrict.
func WithBorrowTimeout[T any](d time.Duration) Option[T] {
	return func(c *storeConfig[T]) {
		if d > 0 {
			c.borrowTimeout = d
		}
	}
}

// WithDisposer sets the cleanup function applied to every value still
// owned by the store when Close tears it down. Values transferred out
// through Remove are not disposed; ownership moved to the caller.
func WithDisposer[T any](fn func(T)) Option[T] {
	return func(c *storeConfig[T]) {
		c.disposer = fn
	}
}

// WithLogger enables structured logging of store operations.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *storeConfig[T]) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics. The recorder uses the
// global meter provider; configure it before constructing the store.
func WithMetrics[T any](enabled bool) Option[T] {
	return func(c *storeConfig[T]) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans around compound operations
// (Update, View, Revalidate). Uses the global tracer provider.
func WithTracing[T any](enabled bool) Option[T] {
	return func(c *storeConfig[T]) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithStoreID overrides the generated store identifier used in logs,
// metrics, and traces.
func WithStoreID[T any](id string) Option[T] {
	return func(c *storeConfig[T]) {
		if id != "" {
			c.storeID = id
		}
	}
}
