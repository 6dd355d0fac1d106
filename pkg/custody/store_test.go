package custody

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	store := New[string]()
	assert.NotNil(t, store)
	assert.Equal(t, 0, store.Len())
}

func TestCreateBorrowRemoveLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New[string]()

	id, err := store.Create("Learn Go")
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	acc, err := store.Borrow(ctx, id)
	require.NoError(t, err)
	value, err := acc.Value()
	require.NoError(t, err)
	assert.Equal(t, "Learn Go", value)
	acc.Release()

	removed, err := store.Remove(id)
	require.NoError(t, err)
	assert.Equal(t, "Learn Go", removed)

	_, err = store.Borrow(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveIsExactlyOnce(t *testing.T) {
	store := New[string]()

	id, err := store.Create("once")
	require.NoError(t, err)

	value, err := store.Remove(id)
	require.NoError(t, err)
	assert.Equal(t, "once", value)

	// Second removal reports absence, never a second release.
	_, err = store.Remove(id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.BorrowMut(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIDsNeverReused(t *testing.T) {
	store := New[int]()

	first, err := store.Create(1)
	require.NoError(t, err)

	_, err = store.Remove(first)
	require.NoError(t, err)

	// The second entry recycles the first entry's slot internally, but
	// must answer to a fresh ID.
	second, err := store.Create(2)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = store.Borrow(context.Background(), first)
	assert.ErrorIs(t, err, ErrNotFound)

	value, err := store.Remove(second)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestStaleGenerationRejected(t *testing.T) {
	ctx := context.Background()
	store := New[string]()

	first, err := store.Create("old")
	require.NoError(t, err)
	_, err = store.Remove(first)
	require.NoError(t, err)

	// Reuses the freed slot with a bumped generation.
	second, err := store.Create("new")
	require.NoError(t, err)

	// An ID forged with the slot's previous generation must not alias
	// the new occupant.
	forged := ID{num: second.num, gen: second.gen - 1}
	_, err = store.Borrow(ctx, forged)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Remove(forged)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZeroIDNotFound(t *testing.T) {
	store := New[string]()
	_, err := store.Borrow(context.Background(), ID{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCapacity(t *testing.T) {
	store := New[string](WithCapacity[string](2))

	a, err := store.Create("a")
	require.NoError(t, err)
	_, err = store.Create("b")
	require.NoError(t, err)

	_, err = store.Create("c")
	assert.ErrorIs(t, err, ErrOutOfCapacity)

	// Freeing an entry makes room again, under a fresh ID.
	_, err = store.Remove(a)
	require.NoError(t, err)
	c, err := store.Create("c")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

// TestSingleResourceLifecycle drives the capacity-one degenerate case:
// create as open, Update as write, Remove as close. Double-close and
// write-after-close must surface as NotFound, never a second release.
func TestSingleResourceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New[[]string](WithCapacity[[]string](1))

	id, err := store.Create(nil)
	require.NoError(t, err)

	// A second open is refused while the resource is live.
	_, err = store.Create(nil)
	assert.ErrorIs(t, err, ErrOutOfCapacity)

	err = store.Update(ctx, id, func(lines *[]string) error {
		*lines = append(*lines, "hello")
		return nil
	})
	require.NoError(t, err)

	lines, err := store.Remove(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, lines)

	// Write-after-close and double-close are structurally refused.
	err = store.Update(ctx, id, func(lines *[]string) error {
		*lines = append(*lines, "too late")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Remove(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Room is freed for the next open, under a fresh ID.
	next, err := store.Create(nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	type task struct {
		Title string
		Done  bool
	}

	store := New[task]()
	id, err := store.Create(task{Title: "write tests"})
	require.NoError(t, err)

	err = store.Update(ctx, id, func(tk *task) error {
		tk.Done = true
		return nil
	})
	require.NoError(t, err)

	err = store.View(ctx, id, func(tk task) error {
		assert.True(t, tk.Done)
		assert.Equal(t, "write tests", tk.Title)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateNotFound(t *testing.T) {
	store := New[int]()
	id, err := store.Create(1)
	require.NoError(t, err)
	_, err = store.Remove(id)
	require.NoError(t, err)

	err = store.Update(context.Background(), id, func(v *int) error {
		*v++
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMutatorErrorPropagates(t *testing.T) {
	ctx := context.Background()
	store := New[int]()
	id, err := store.Create(41)
	require.NoError(t, err)

	sentinel := errors.New("not ready")
	err = store.Update(ctx, id, func(v *int) error {
		*v++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// A returned error is a normal exit: the entry stays healthy and
	// the exclusive accessor was released.
	err = store.View(ctx, id, func(v int) error {
		assert.Equal(t, 42, v)
		return nil
	})
	require.NoError(t, err)
}

func TestViewErrorPropagates(t *testing.T) {
	store := New[string]()
	id, err := store.Create("x")
	require.NoError(t, err)

	sentinel := errors.New("inspect failed")
	err = store.View(context.Background(), id, func(string) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestHasLenIDs(t *testing.T) {
	store := New[string]()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.IDs())

	a, err := store.Create("a")
	require.NoError(t, err)
	b, err := store.Create("b")
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Has(a))
	assert.True(t, store.Has(b))
	assert.ElementsMatch(t, []ID{a, b}, store.IDs())

	_, err = store.Remove(a)
	require.NoError(t, err)
	assert.False(t, store.Has(a))
	assert.Equal(t, 1, store.Len())
}

func TestCloseDisposesRemaining(t *testing.T) {
	disposed := make(map[string]int)
	store := New[string](WithDisposer[string](func(v string) {
		disposed[v]++
	}))

	_, err := store.Create("kept")
	require.NoError(t, err)
	id, err := store.Create("transferred")
	require.NoError(t, err)

	// Removed values transfer ownership out; the disposer must not see
	// them.
	_, err = store.Remove(id)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.Equal(t, map[string]int{"kept": 1}, disposed)
}

func TestCloseIdempotent(t *testing.T) {
	calls := 0
	store := New[int](WithDisposer[int](func(int) { calls++ }))
	_, err := store.Create(1)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.Equal(t, 1, calls)
}

func TestOperationsAfterClose(t *testing.T) {
	ctx := context.Background()
	store := New[string]()
	id, err := store.Create("x")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Create("y")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Borrow(ctx, id)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.BorrowMut(ctx, id)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Remove(id)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestCloseRefusesWhileBorrowed(t *testing.T) {
	ctx := context.Background()
	store := New[string]()
	id, err := store.Create("held")
	require.NoError(t, err)

	acc, err := store.Borrow(ctx, id)
	require.NoError(t, err)

	err = store.Close()
	assert.ErrorIs(t, err, ErrConflict)

	acc.Release()
	require.NoError(t, store.Close())
}

func TestAccessErrorContext(t *testing.T) {
	store := New[string]()
	id, err := store.Create("x")
	require.NoError(t, err)
	_, err = store.Remove(id)
	require.NoError(t, err)

	_, err = store.Remove(id)
	var accErr *AccessError
	require.ErrorAs(t, err, &accErr)
	assert.Equal(t, "remove", accErr.Op)
	assert.Equal(t, id, accErr.ID)
	assert.Contains(t, accErr.Error(), id.String())
}

func TestIDString(t *testing.T) {
	store := New[string]()
	id, err := store.Create("x")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("entry-%d", id.num), id.String())
	assert.Equal(t, "entry-invalid", ID{}.String())
}

// Benchmark tests

func BenchmarkCreateRemove(b *testing.B) {
	store := New[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, _ := store.Create(i)
		_, _ = store.Remove(id)
	}
}

func BenchmarkBorrowRelease(b *testing.B) {
	ctx := context.Background()
	store := New[int]()
	id, _ := store.Create(42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc, _ := store.Borrow(ctx, id)
		acc.Release()
	}
}

func BenchmarkUpdate(b *testing.B) {
	ctx := context.Background()
	store := New[int]()
	id, _ := store.Create(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Update(ctx, id, func(v *int) error {
			*v++
			return nil
		})
	}
}
