package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedLockMutualExclusion(t *testing.T) {
	locks := newKeyedLock()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("thread-1")
			defer locks.Unlock("thread-1")
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)

	// All waiters drained, the entry is gone.
	require.Empty(t, locks.locks)
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := newKeyedLock()
	locks.Lock("a")

	done := make(chan struct{})
	go func() {
		locks.Lock("b")
		locks.Unlock("b")
		close(done)
	}()
	// A held lock on "a" must not block "b".
	<-done
	locks.Unlock("a")
}
