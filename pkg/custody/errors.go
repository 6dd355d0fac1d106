package custody

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations. Failed operations return an
// *AccessError wrapping one of these; use errors.Is to classify.
var (
	// ErrNotFound indicates the ID was never issued, was removed, or
	// carries a stale generation. Always recoverable: treat as
	// "entry absent".
	ErrNotFound = errors.New("entry not found")

	// ErrConflict indicates the requested access class is incompatible
	// with currently live accessors. Under PolicyBlocking it is
	// recoverable by retry; under PolicyStrict it is a caller bug.
	ErrConflict = errors.New("borrow conflict")

	// ErrOutOfCapacity indicates the configured capacity is exhausted.
	// Recoverable only by removing entries or raising the limit.
	ErrOutOfCapacity = errors.New("store out of capacity")

	// ErrPoisoned indicates the entry was quarantined after an
	// abnormal exit mid-mutation. Cleared by Revalidate or Remove.
	ErrPoisoned = errors.New("entry poisoned")

	// ErrStoreClosed indicates the store was torn down.
	ErrStoreClosed = errors.New("store closed")
)

// AccessError wraps a failed store operation with its context.
type AccessError struct {
	// Op is the operation that failed ("create", "borrow", "remove", ...).
	Op string
	// ID is the entry the operation targeted. Zero for store-wide
	// operations such as create.
	ID ID
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("custody: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("custody: %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AccessError) Unwrap() error {
	return e.Err
}

// PoisonedError captures the panic that quarantined an entry.
// It includes the stack trace for debugging and unwraps to ErrPoisoned.
type PoisonedError struct {
	// ID is the quarantined entry.
	ID ID
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PoisonedError) Error() string {
	return fmt.Sprintf("custody: %s poisoned by panic: %v", e.ID, e.Value)
}

// Unwrap returns ErrPoisoned for errors.Is support.
func (e *PoisonedError) Unwrap() error {
	return ErrPoisoned
}
