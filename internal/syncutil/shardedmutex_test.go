package syncutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShardedMutex_BasicLockUnlock(t *testing.T) {
	var m ShardedMutex
	unlock := m.Lock("key1")
	unlock()
}

func TestShardedMutex_MutualExclusion(t *testing.T) {
	var m ShardedMutex

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("counter")
			defer unlock()
			// Non-atomic increment; a broken lock makes this visible.
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	if atomic.LoadInt64(&counter) != n {
		t.Fatalf("expected %d, got %d: mutual exclusion violated", n, atomic.LoadInt64(&counter))
	}
}

func TestShardedMutex_UnlockAllowsNext(t *testing.T) {
	var m ShardedMutex

	unlock := m.Lock("relay")

	acquired := make(chan struct{})
	go func() {
		u := m.Lock("relay")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired lock before first released")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine did not acquire lock after first released")
	}
}
