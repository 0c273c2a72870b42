package stopworld

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockMutualExclusion(t *testing.T) {
	l := NewLock()
	var holders atomic.Int32
	var maxHolders atomic.Int32
	var wg sync.WaitGroup

	const goroutines = 20
	const iterations = 200

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				l.Acquire()
				n := holders.Add(1)
				for {
					prev := maxHolders.Load()
					if n <= prev || maxHolders.CompareAndSwap(prev, n) {
						break
					}
				}
				holders.Add(-1)
				l.Release()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxHolders.Load(), int32(1), "exactly one goroutine should hold the lock at a time")
}

func TestLockTryAcquire(t *testing.T) {
	l := NewLock()
	assert.True(t, l.TryAcquire(), "uncontended TryAcquire should succeed")
	assert.False(t, l.TryAcquire(), "TryAcquire should fail while already held")
	l.Release()
	assert.True(t, l.TryAcquire(), "TryAcquire should succeed again after Release")
	l.Release()
}

func TestLockAdaptiveSpinMax(t *testing.T) {
	l := NewLock()
	assert.EqualValues(t, lowSpinMax, l.spinMax.Load(), "new Lock should start with the low spin budget")

	l.Acquire()
	done := make(chan struct{})
	go func() {
		l.Acquire()
		l.Release()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	l.Release()
	<-done
}

func TestLockCollectingSkipsSpinning(t *testing.T) {
	l := NewLock()
	l.Acquire()
	l.SetCollecting(true)

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("goroutine should still be blocked on the held lock")
	case <-time.After(20 * time.Millisecond):
	}

	l.SetCollecting(false)
	l.Release()
	<-acquired
}
