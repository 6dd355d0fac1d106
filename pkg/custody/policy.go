package custody

// Policy selects how the store reacts to borrow conflicts.
type Policy int

const (
	// PolicyStrict reports conflicting borrows immediately as
	// ErrConflict. Intended for single-threaded callers, where a
	// conflict is a programming error rather than contention.
	PolicyStrict Policy = iota

	// PolicyBlocking makes Borrow and BorrowMut wait until the
	// requested access class becomes available. Waiters are woken on
	// every release; ordering between them is unspecified. New shared
	// borrows are admitted while a writer waits, so readers have
	// de-facto priority and a continuous reader stream can delay
	// BorrowMut; bound the wait with WithBorrowTimeout or a context
	// deadline where that matters. Remove never blocks under either
	// policy.
	PolicyBlocking
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}
