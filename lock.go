package stopworld

import (
	"runtime"
	"sync/atomic"
	_ "unsafe" // for go:linkname
)

// runtimeDoSpin issues one low-power spin-wait instruction (PAUSE/YIELD).
// Linked directly into the runtime's own implementation rather than
// hand-rolling a busy loop, the same trick the pack's own spin lock
// (haraldrudell-parl's SpinLock) uses to get at sync's private primitive.
//
//go:linkname runtimeDoSpin sync.runtime_doSpin
func runtimeDoSpin()

// runtimeCanSpin reports whether the runtime currently thinks spinning is
// worthwhile (multiple Ps, goroutine queue not backed up, etc).
//
//go:linkname runtimeCanSpin sync.runtime_canSpin
func runtimeCanSpin(i int) bool

// Lock is a test-and-set spin lock with adaptive back-off, protecting the
// thread table and the allocator's internal state (§3 "Global Allocation
// Lock", §4.1). It is not reentrant: the caller must track whether it
// already holds it. It must never be taken from inside Checkpoint's suspend
// path.
type Lock struct {
	word atomic.Uint32

	// spinMax and lastSpins persist across acquisitions to adapt future
	// spin budgets, exactly mirroring GC_lock's static spin_max/last_spins.
	spinMax   atomic.Uint32
	lastSpins atomic.Uint32

	// collecting is a hint that the current holder is inside a long
	// critical section (a collection), set by Controller.StopWorld's
	// caller. When true, acquirers skip straight to the yield loop.
	collecting atomic.Bool
}

// NewLock returns a ready-to-use Lock with the low spin budget selected, as
// if no contention evidence has yet been observed.
func NewLock() *Lock {
	l := &Lock{}
	l.spinMax.Store(lowSpinMax)
	return l
}

const (
	lockUnlocked uint32 = 0
	lockLocked   uint32 = 1
)

func (l *Lock) testAndSet() bool {
	return l.word.Swap(lockLocked) == lockLocked
}

// SetCollecting sets or clears the "long critical section in progress" hint
// (GC_collecting in the original). Held by whoever currently owns the lock.
func (l *Lock) SetCollecting(v bool) { l.collecting.Store(v) }

// Acquire blocks until the lock is held by the caller. While spinning or
// yielding it also honors a pending suspension request against the calling
// thread's own record, if it has one (trySelfCheckpoint) — lifecycle.go's
// CreateThread and runExitHook call Acquire with no MutatorContext in scope,
// and would otherwise be able to spin forever holding up a stop_world that
// is waiting on exactly this thread's handshake post.
func (l *Lock) Acquire() {
	log := componentLog("lock")
	if !l.testAndSet() {
		return
	}

	mySpinMax := l.spinMax.Load()
	myLastSpins := l.lastSpins.Load()

	for i := uint32(0); i < mySpinMax; i++ {
		trySelfCheckpoint()
		if l.collecting.Load() {
			break
		}
		if i < myLastSpins/2 || l.word.Load() == lockLocked {
			runtimeDoSpin()
			continue
		}
		if !l.testAndSet() {
			// Spinning worked: we're probably not scheduled against the
			// holder, so it pays to spin longer next time.
			l.lastSpins.Store(i)
			l.spinMax.Store(highSpinMax)
			return
		}
		if !runtimeCanSpin(int(i)) {
			runtime.Gosched()
		}
	}

	// We're probably scheduled against the holder: stop burning CPU and
	// just yield until it releases.
	l.spinMax.Store(lowSpinMax)
	log.Debug().Msg("lock contended past spin budget, yielding")
	for {
		trySelfCheckpoint()
		if !l.testAndSet() {
			return
		}
		runtime.Gosched()
	}
}

// Release releases a lock held by the caller.
func (l *Lock) Release() { l.word.Store(lockUnlocked) }

// TryAcquire attempts to take the lock without spinning, returning whether
// it succeeded.
func (l *Lock) TryAcquire() bool { return !l.testAndSet() }
