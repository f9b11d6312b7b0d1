package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	t.Parallel()
	km := NewKeyedMutex()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("s1")
			defer unlock()

			n := inside.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen.Load())
	}
	if km.size() != 0 {
		t.Fatalf("size() = %d after all unlocks, want 0", km.size())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	t.Parallel()
	km := NewKeyedMutex()

	unlock := km.Lock("a")
	unlock()
	unlock()

	again := km.Lock("a")
	again()
}
