package httpserver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDraftLocksSerialiseSameKey(t *testing.T) {
	locks := newDraftLocks()
	unlock := locks.Lock("sess-1")

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock("sess-1")
		close(acquired)
		release()
	}()

	require.Never(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	unlock()
	require.Eventually(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return locks.len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDraftLocksIndependentKeys(t *testing.T) {
	locks := newDraftLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		locks.Lock("b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestDraftLocksManyWaiters(t *testing.T) {
	locks := newDraftLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("shared")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Zero(t, locks.len())
}
