package governance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenTableDisjointSetsDoNotBlock(t *testing.T) {
	table := NewTokenTable()
	ctx := context.Background()

	releaseA, err := table.Acquire(ctx, []string{"a", "b"})
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseC, err := table.Acquire(ctx, []string{"c", "d"})
		assert.NoError(t, err)
		releaseC()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint acquisition blocked")
	}
}

func TestTokenTableContestedKeySerializes(t *testing.T) {
	table := NewTokenTable()
	ctx := context.Background()

	release, err := table.Acquire(ctx, []string{"a"})
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := table.Acquire(ctx, []string{"a", "b"})
		assert.NoError(t, err)
		second()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("contested key acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}

func TestTokenTableTimeoutReleasesPartialAcquisition(t *testing.T) {
	table := NewTokenTable()

	holdB, err := table.Acquire(context.Background(), []string{"b"})
	require.NoError(t, err)

	// Sorted acquisition takes "a" first, then times out waiting on "b".
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = table.Acquire(ctx, []string{"b", "a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// "a" must have been released on the way out.
	releaseA, err := table.Acquire(context.Background(), []string{"a"})
	require.NoError(t, err)
	releaseA()
	holdB()
}

func TestTokenTableOverlappingSetsCannotDeadlock(t *testing.T) {
	table := NewTokenTable()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		keysA := []string{"x", "y"}
		keysB := []string{"y", "x"}
		go func(i int) {
			defer wg.Done()
			keys := keysA
			if i%2 == 1 {
				keys = keysB
			}
			release, err := table.Acquire(ctx, keys)
			if assert.NoError(t, err) {
				release()
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("overlapping acquisitions deadlocked")
	}
}

func TestTokenTableReleaseIsIdempotent(t *testing.T) {
	table := NewTokenTable()

	release, err := table.Acquire(context.Background(), []string{"a"})
	require.NoError(t, err)
	release()
	release()

	again, err := table.Acquire(context.Background(), []string{"a"})
	require.NoError(t, err)
	again()
}

func TestTokenTableSkipsEmptyAndDuplicateKeys(t *testing.T) {
	table := NewTokenTable()

	release, err := table.Acquire(context.Background(), []string{"a", "", "a"})
	require.NoError(t, err)
	release()
}
