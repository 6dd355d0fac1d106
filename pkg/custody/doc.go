/*
Package custody provides an ownership-safe registry for heap-resident
values.

# Overview

custody is a Go library for holding a collection of values that must
have exactly one responsible owner at all times: never accessed after
removal, never released twice, never mutated by two holders at once.
The Store owns every value it contains and hands out short-lived
accessors under a many-readers-or-one-writer discipline. Violations
are reported as typed errors, never as silent aliasing or panics.

The design follows the arena-plus-index pattern:
  - IDs are monotonic and never reused, so a removed entry's ID can
    never alias a later entry.
  - Slot storage is recycled through a free list, but each slot carries
    a generation counter so a recycled slot never answers to an old ID.
  - Accessors are revocable capabilities, not raw pointers.

# Basic Usage

Create a store, put a value in it, and access it through scoped
accessors:

	store := custody.New[string]()
	defer store.Close()

	id, err := store.Create("Learn Go")
	if err != nil {
	    log.Fatal(err)
	}

	acc, err := store.Borrow(ctx, id)
	if err != nil {
	    log.Fatal(err)
	}
	title, _ := acc.Value()
	acc.Release()

	value, err := store.Remove(id) // value transfers out; id is retired
	_, err = store.Borrow(ctx, id) // errors.Is(err, custody.ErrNotFound)

For focused mutations, prefer Update over holding an exclusive
accessor open:

	err := store.Update(ctx, id, func(task *Task) error {
	    task.Done = true
	    return nil
	})

# Access Discipline

For any ID, the set of live accessors is either one Exclusive or any
number of Shared, never mixed. Remove refuses while any accessor is
live. The per-ID state machine is:

	Free -> Shared(n)   via Borrow (n shared accessors)
	Free -> Exclusive   via BorrowMut
	any other transition -> ErrConflict

Operations on distinct IDs never block or fail each other.

# Policies

PolicyStrict (default) treats borrow conflicts as caller bugs and
reports them immediately as ErrConflict. PolicyBlocking makes Borrow
and BorrowMut wait until the requested access class is available,
honoring context cancellation and the optional WithBorrowTimeout
deadline. Remove never blocks under either policy.

# Poisoning

If a mutator passed to Update (or Exclusive.Mutate) panics, the entry's
invariant can no longer be verified. The entry is quarantined: every
subsequent access reports ErrPoisoned until the entry is either removed
or cleared through Revalidate:

	err := store.Update(ctx, id, badMutator) // panics inside
	var perr *custody.PoisonedError
	if errors.As(err, &perr) {
	    log.Printf("entry %s poisoned: %v\n%s", perr.ID, perr.Value, perr.Stack)
	}
	err = store.Revalidate(ctx, id, func(v *Task) error {
	    return v.CheckInvariants()
	})

# Observability

Enable logging, metrics, and tracing through options:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	store := custody.New[Task](
	    custody.WithLogger[Task](logger),
	    custody.WithMetrics[Task](true),
	    custody.WithTracing[Task](true),
	)

Logs include structured fields: store_id, entry_id, op.
OpenTelemetry metrics: custody.op.count, custody.op.latency_ms,
custody.op.conflicts, custody.entries.poisoned.

# Thread Safety

  - Store IS safe for concurrent use under either policy.
  - Accessors are safe to Release from any goroutine; using an
    accessor after Release yields ErrConflict, never undefined
    behavior.
  - Accessors must not outlive their Store; Close refuses while any
    accessor is live.

# Subpackages

  - config: file-based configuration (YAML/JSON) for store options
  - observability: logging, metrics, and tracing helpers
  - retry: backoff helpers for ErrConflict under the blocking policy
*/
package custody
