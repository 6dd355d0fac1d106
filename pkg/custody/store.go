package custody

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/randalmurphal/custody/pkg/custody/observability"
)

// slot is one cell of the storage arena. Slots are recycled through
// the free list; the generation counter is bumped on every recycle so
// a reclaimed slot never answers to an ID issued for its previous
// occupant.
type slot[T any] struct {
	value    T
	gen      uint64
	readers  int
	writer   bool
	poisoned bool
	poison   *PoisonedError

	// wait is closed and replaced on every state change that could
	// unblock a waiter. Lazily created.
	wait chan struct{}
}

// slotRef resolves an ID number to its backing slot.
type slotRef struct {
	idx int
	gen uint64
}

// Store owns a set of values and mediates all access to them.
// It is the only component permitted to destroy a value: callers hold
// IDs, never raw references, and go through scoped accessors for every
// read or write.
//
// Store is safe for concurrent use. See Policy for how conflicting
// borrows are handled.
type Store[T any] struct {
	cfg storeConfig[T]

	mu     sync.Mutex
	index  map[uint64]slotRef
	slots  []*slot[T]
	free   []int
	nextID uint64
	closed bool
}

// New creates an empty store.
func New[T any](opts ...Option[T]) *Store[T] {
	cfg := defaultStoreConfig[T]()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store[T]{
		cfg:    cfg,
		index:  make(map[uint64]slotRef),
		nextID: 1,
	}
}

// Create moves value into the store and returns its ID. IDs strictly
// increase and are never reissued, even when slot storage is recycled.
// Fails with ErrOutOfCapacity when the configured capacity is reached.
func (s *Store[T]) Create(value T) (id ID, err error) {
	start := time.Now()
	defer func() { s.observe(context.Background(), "create", start, err) }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ID{}, &AccessError{Op: "create", Err: ErrStoreClosed}
	}
	if s.cfg.capacity > 0 && len(s.index) >= s.cfg.capacity {
		s.mu.Unlock()
		return ID{}, &AccessError{Op: "create", Err: ErrOutOfCapacity}
	}

	var (
		sl  *slot[T]
		idx int
	)
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		sl = s.slots[idx]
		sl.value = value
	} else {
		sl = &slot[T]{value: value}
		s.slots = append(s.slots, sl)
		idx = len(s.slots) - 1
	}

	id = ID{num: s.nextID, gen: sl.gen}
	s.nextID++
	s.index[id.num] = slotRef{idx: idx, gen: sl.gen}
	count := len(s.index)
	s.mu.Unlock()

	observability.LogEntryCreated(s.cfg.logger, s.cfg.storeID, id.String(), count)
	return id, nil
}

// Borrow acquires a shared (read) accessor for id. Any number of
// shared accessors may be live at once; a live exclusive accessor
// causes ErrConflict under PolicyStrict or a wait under PolicyBlocking.
// Fails with ErrNotFound for unknown or removed IDs and ErrPoisoned
// for quarantined entries.
func (s *Store[T]) Borrow(ctx context.Context, id ID) (acc *Shared[T], err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	defer func() { s.observe(ctx, "borrow", start, err) }()

	ctx, cancel := s.waitContext(ctx)
	defer cancel()

	for {
		s.mu.Lock()
		sl, _, rerr := s.resolveLocked("borrow", id)
		if rerr != nil {
			s.mu.Unlock()
			return nil, rerr
		}
		if sl.poisoned {
			s.mu.Unlock()
			return nil, &AccessError{Op: "borrow", ID: id, Err: ErrPoisoned}
		}
		if !sl.writer {
			sl.readers++
			acc = &Shared[T]{store: s, id: id, sl: sl}
			s.mu.Unlock()
			return acc, nil
		}
		if s.cfg.policy != PolicyBlocking {
			s.mu.Unlock()
			observability.LogBorrowConflict(s.cfg.logger, s.cfg.storeID, "borrow", id.String())
			return nil, &AccessError{Op: "borrow", ID: id, Err: ErrConflict}
		}
		wait := s.waitChanLocked(sl)
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, &AccessError{Op: "borrow", ID: id, Err: waitAborted(ctx)}
		}
	}
}

// BorrowMut acquires the exclusive (write) accessor for id. Admitted
// only when no accessor for id is live; otherwise ErrConflict or a
// wait, per policy.
func (s *Store[T]) BorrowMut(ctx context.Context, id ID) (acc *Exclusive[T], err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	defer func() { s.observe(ctx, "borrow_mut", start, err) }()
	return s.acquireExclusive(ctx, "borrow_mut", id, false)
}

// acquireExclusive implements the exclusive half of the state machine.
// allowPoisoned admits quarantined entries for the revalidation path.
func (s *Store[T]) acquireExclusive(ctx context.Context, op string, id ID, allowPoisoned bool) (*Exclusive[T], error) {
	ctx, cancel := s.waitContext(ctx)
	defer cancel()

	for {
		s.mu.Lock()
		sl, _, err := s.resolveLocked(op, id)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if sl.poisoned && !allowPoisoned {
			s.mu.Unlock()
			return nil, &AccessError{Op: op, ID: id, Err: ErrPoisoned}
		}
		if sl.readers == 0 && !sl.writer {
			sl.writer = true
			acc := &Exclusive[T]{store: s, id: id, sl: sl}
			s.mu.Unlock()
			return acc, nil
		}
		if s.cfg.policy != PolicyBlocking {
			s.mu.Unlock()
			observability.LogBorrowConflict(s.cfg.logger, s.cfg.storeID, op, id.String())
			return nil, &AccessError{Op: op, ID: id, Err: ErrConflict}
		}
		wait := s.waitChanLocked(sl)
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, &AccessError{Op: op, ID: id, Err: waitAborted(ctx)}
		}
	}
}

// Remove destroys the entry and transfers its value out of the store.
// The ID is permanently retired: all later operations on it yield
// ErrNotFound. Fails with ErrConflict while any accessor for id is
// live; Remove never blocks, under either policy. Poisoned entries can
// always be removed.
func (s *Store[T]) Remove(id ID) (value T, err error) {
	start := time.Now()
	defer func() { s.observe(context.Background(), "remove", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, idx, rerr := s.resolveLocked("remove", id)
	if rerr != nil {
		err = rerr
		return
	}
	if sl.readers > 0 || sl.writer {
		observability.LogBorrowConflict(s.cfg.logger, s.cfg.storeID, "remove", id.String())
		err = &AccessError{Op: "remove", ID: id, Err: ErrConflict}
		return
	}

	value = sl.value
	s.retireLocked(id, sl, idx)
	observability.LogEntryRemoved(s.cfg.logger, s.cfg.storeID, id.String(), len(s.index))
	return value, nil
}

// Update applies fn to the entry's value under exclusive access:
// borrow-mut, apply, release, with release guaranteed on every exit
// path. A panic inside fn poisons the entry; see Exclusive.Mutate.
func (s *Store[T]) Update(ctx context.Context, id ID, fn func(*T) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.cfg.spans.StartOpSpan(ctx, s.cfg.storeID, "update", id.String())
	defer func() { s.cfg.spans.EndSpanWithError(span, err) }()

	acc, err := s.BorrowMut(ctx, id)
	if err != nil {
		return err
	}
	defer acc.Release()
	return acc.Mutate(fn)
}

// View applies fn to a copy of the entry's value under shared access.
func (s *Store[T]) View(ctx context.Context, id ID, fn func(T) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.cfg.spans.StartOpSpan(ctx, s.cfg.storeID, "view", id.String())
	defer func() { s.cfg.spans.EndSpanWithError(span, err) }()

	acc, err := s.Borrow(ctx, id)
	if err != nil {
		return err
	}
	defer acc.Release()
	value, err := acc.Value()
	if err != nil {
		return err
	}
	return fn(value)
}

// Revalidate verifies a quarantined entry's invariant and, when check
// succeeds, lifts the quarantine. The check runs under exclusive
// access and is admitted to poisoned entries. A failing check leaves
// the entry poisoned; a panic inside check re-poisons it.
//
// Revalidating a healthy entry is a harmless no-op beyond running the
// check.
func (s *Store[T]) Revalidate(ctx context.Context, id ID, check func(*T) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.cfg.spans.StartOpSpan(ctx, s.cfg.storeID, "revalidate", id.String())
	defer func() { s.cfg.spans.EndSpanWithError(span, err) }()

	acc, err := s.acquireExclusive(ctx, "revalidate", id, true)
	if err != nil {
		return err
	}
	defer acc.Release()

	defer func() {
		if r := recover(); r != nil {
			perr := &PoisonedError{ID: id, Value: r, Stack: string(debug.Stack())}
			s.poison(id, acc.sl, perr)
			err = perr
		}
	}()

	if cerr := check(&acc.sl.value); cerr != nil {
		return &AccessError{Op: "revalidate", ID: id, Err: cerr}
	}

	s.mu.Lock()
	acc.sl.poisoned = false
	acc.sl.poison = nil
	s.mu.Unlock()
	return nil
}

// Has reports whether id resolves to a live entry.
func (s *Store[T]) Has(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, err := s.resolveLocked("has", id)
	return err == nil
}

// Len returns the number of live entries.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// IDs returns the IDs of all live entries. The order is not
// guaranteed.
func (s *Store[T]) IDs() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]ID, 0, len(s.index))
	for num, ref := range s.index {
		ids = append(ids, ID{num: num, gen: ref.gen})
	}
	return ids
}

// Close tears the store down, releasing every remaining entry exactly
// once through the configured disposer. It refuses with ErrConflict
// while any accessor is live, so no accessor can outlive its store.
// Close is idempotent; all operations after it return ErrStoreClosed.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	for num, ref := range s.index {
		sl := s.slots[ref.idx]
		if sl.readers > 0 || sl.writer {
			return &AccessError{Op: "close", ID: ID{num: num, gen: ref.gen}, Err: ErrConflict}
		}
	}

	remaining := len(s.index)
	if s.cfg.disposer != nil {
		for _, ref := range s.index {
			s.cfg.disposer(s.slots[ref.idx].value)
		}
	}
	for _, sl := range s.slots {
		s.notifyLocked(sl)
	}

	s.closed = true
	s.index = nil
	s.slots = nil
	s.free = nil
	observability.LogStoreClosed(s.cfg.logger, s.cfg.storeID, remaining)
	return nil
}

// resolveLocked maps an ID to its backing slot. Caller holds s.mu.
func (s *Store[T]) resolveLocked(op string, id ID) (*slot[T], int, error) {
	if s.closed {
		return nil, 0, &AccessError{Op: op, ID: id, Err: ErrStoreClosed}
	}
	ref, ok := s.index[id.num]
	if !ok {
		return nil, 0, &AccessError{Op: op, ID: id, Err: ErrNotFound}
	}
	sl := s.slots[ref.idx]
	// Stale generations must never alias the slot's current occupant.
	if ref.gen != id.gen || sl.gen != ref.gen {
		return nil, 0, &AccessError{Op: op, ID: id, Err: ErrNotFound}
	}
	return sl, ref.idx, nil
}

// retireLocked erases the entry and recycles its slot. Caller holds
// s.mu.
func (s *Store[T]) retireLocked(id ID, sl *slot[T], idx int) {
	var zero T
	sl.value = zero
	sl.poisoned = false
	sl.poison = nil
	sl.gen++
	if sl.gen == 0 {
		// Internal invariant violation, not a caller-facing error.
		panic("custody: slot generation counter overflow")
	}
	delete(s.index, id.num)
	s.free = append(s.free, idx)
	// Wake waiters so they observe ErrNotFound instead of hanging.
	s.notifyLocked(sl)
}

// poison quarantines the slot after a panic mid-mutation.
func (s *Store[T]) poison(id ID, sl *slot[T], perr *PoisonedError) {
	s.mu.Lock()
	sl.poisoned = true
	sl.poison = perr
	s.mu.Unlock()
	observability.LogEntryPoisoned(s.cfg.logger, s.cfg.storeID, id.String(), perr.Value)
	s.cfg.metrics.RecordPoisoned(context.Background(), s.cfg.storeID)
}

// waitChanLocked returns the slot's broadcast channel, creating it on
// demand. Caller holds s.mu.
func (s *Store[T]) waitChanLocked(sl *slot[T]) chan struct{} {
	if sl.wait == nil {
		sl.wait = make(chan struct{})
	}
	return sl.wait
}

// notifyLocked wakes every waiter blocked on the slot. Caller holds
// s.mu.
func (s *Store[T]) notifyLocked(sl *slot[T]) {
	if sl.wait != nil {
		close(sl.wait)
		sl.wait = nil
	}
}

// waitContext applies the configured borrow timeout under the blocking
// policy.
func (s *Store[T]) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.policy == PolicyBlocking && s.cfg.borrowTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.borrowTimeout)
	}
	return ctx, func() {}
}

// observe records metrics for a completed operation.
func (s *Store[T]) observe(ctx context.Context, op string, start time.Time, err error) {
	s.cfg.metrics.RecordOperation(ctx, s.cfg.storeID, op, time.Since(start), err)
	if err != nil && errors.Is(err, ErrConflict) {
		s.cfg.metrics.RecordConflict(ctx, s.cfg.storeID, op)
	}
}

// waitAborted maps an abandoned wait onto the conflict taxonomy while
// preserving the context cause.
func waitAborted(ctx context.Context) error {
	return fmt.Errorf("%w: wait abandoned: %w", ErrConflict, context.Cause(ctx))
}
