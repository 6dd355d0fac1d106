package config

import (
	"fmt"

	"github.com/randalmurphal/custody/pkg/custody"
)

// Options translates the recognized configuration keys into store
// options for custody.New.
//
// Recognized keys:
//   - policy: "strict" (default) or "blocking"
//   - capacity: maximum number of live entries (int, 0 = unlimited)
//   - borrow_timeout: maximum wait under the blocking policy (duration)
//   - store_id: identifier used in logs, metrics, and traces
//
// Unrecognized keys are ignored so a store section can live inside a
// larger configuration file.
func Options[T any](cfg Config) ([]custody.Option[T], error) {
	var opts []custody.Option[T]

	switch policy := cfg.String("policy", "strict"); policy {
	case "strict":
		opts = append(opts, custody.WithPolicy[T](custody.PolicyStrict))
	case "blocking":
		opts = append(opts, custody.WithPolicy[T](custody.PolicyBlocking))
	default:
		return nil, fmt.Errorf("unknown policy %q", policy)
	}

	if n := cfg.Int("capacity", 0); n > 0 {
		opts = append(opts, custody.WithCapacity[T](n))
	}
	if d := cfg.Duration("borrow_timeout", 0); d > 0 {
		opts = append(opts, custody.WithBorrowTimeout[T](d))
	}
	if id := cfg.String("store_id", ""); id != "" {
		opts = append(opts, custody.WithStoreID[T](id))
	}

	return opts, nil
}
