package custody

import "fmt"

// ID is an opaque handle to one entry in a Store.
//
// IDs are issued by Create, strictly increase, and are never reused:
// once an entry is removed its ID is permanently retired. An ID also
// carries the generation of the slot that backed it at issue time, so
// even a forged or corrupted ID that happens to point at a recycled
// slot resolves to ErrNotFound rather than aliasing a new entry.
//
// The zero ID is invalid and never issued.
type ID struct {
	num uint64
	gen uint64
}

// IsZero reports whether the ID is the invalid zero value.
func (id ID) IsZero() bool {
	return id.num == 0
}

// String returns a stable representation for logs and errors.
func (id ID) String() string {
	if id.IsZero() {
		return "entry-invalid"
	}
	return fmt.Sprintf("entry-%d", id.num)
}
