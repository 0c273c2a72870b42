package stopworld

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// Reserved signals (§4.3, §6). Chosen to match the original source exactly:
// SIGPWR is rarely used by anything else and doesn't collide with the Go
// runtime's own reserved signals; SIGCONT is delivered by the kernel on a
// process transitioning to running, so a thread genuinely blocked in the
// kernel unblocks even without our involvement.
const (
	sigSuspendOS = unix.SIGPWR
	sigRestartOS = unix.SIGCONT
)

// restartMu/restartCond implement the "wait for RESTART" half of the
// handshake (§4.3 steps 3-4) using the same sync.Cond predicate-recheck
// idiom the teacher's own ilock.Mutex uses for its state transitions: one
// condition variable, broadcast on every restart, each waiter rechecks its
// own record's signal field.
var (
	restartMu   sync.Mutex
	restartCond = sync.NewCond(&restartMu)
)

// handshakeSem is the Handshake Semaphore (§3): peers Release(1) once
// suspended ("post"), the stop controller Acquire(ctx, 1)s exactly once per
// live peer ("wait"). semaphore.Weighted starts with its full size
// immediately acquirable, the opposite of the sem_t-initialized-to-0 this
// mirrors, so newHandshakeSem drains the full capacity up front: cur starts
// at tableSize (fully "held"), and every post/wait pair just shuffles one
// unit of that capacity back and forth, matching "wait genuinely blocks
// until a post" instead of succeeding tableSize times for free.
var handshakeSem = newHandshakeSem()

func newHandshakeSem() *semaphore.Weighted {
	s := semaphore.NewWeighted(tableSize)
	if err := s.Acquire(context.Background(), tableSize); err != nil {
		panic("stopworld: failed to drain handshake semaphore at startup: " + err.Error())
	}
	return s
}

// waitForRestart blocks until the record's signal field has been set to
// sigRestart, then clears it back to sigNone. Mirrors the original's
// do { me->signal = 0; sigsuspend(&mask); } while (me->signal != SIG_RESTART);
func (r *Record) waitForRestart() {
	restartMu.Lock()
	defer restartMu.Unlock()
	for r.signal.Load() != sigRestart {
		restartCond.Wait()
	}
	r.signal.Store(sigNone)
}

// deliverRestart sets signal on the given record and wakes every goroutine
// parked in waitForRestart so it can recheck its own predicate.
func deliverRestart(r *Record) {
	restartMu.Lock()
	r.signal.Store(sigRestart)
	restartCond.Broadcast()
	restartMu.Unlock()
}

// MutatorContext is handed to a thread's user routine by CreateThread. It is
// the thread's only avenue back into the subsystem: carrying the thread's
// own Record means Checkpoint never has to look the record up (no table
// read, no allocation lock), which is exactly the non-reentrancy the
// suspend-handler logic requires (§9 "Signal-handler / allocator
// non-reentrancy").
type MutatorContext struct {
	rec *Record
}

// Checkpoint performs the SUSPEND handler's work (§4.3) if the collector has
// requested this thread's suspension; otherwise it returns immediately. Call
// it at loop back-edges and other safepoints, the way the pack's own
// SpinLock calls safePoint() before each spin iteration — that's the
// idiomatic Go rendition of "a signal may be delivered at any unmasked
// instruction boundary" when true asynchronous preemption isn't available
// without cgo.
func (m *MutatorContext) Checkpoint() {
	if !m.rec.suspendRequested.Load() {
		return
	}
	m.rec.checkpoint()
}

// checkpoint performs the SUSPEND handler's work unconditionally: the caller
// must already know suspension was requested. Shared by Checkpoint and
// trySelfCheckpoint, which honors the same request from inside Lock.Acquire
// for a thread with no MutatorContext in scope.
func (r *Record) checkpoint() {
	// Step 1: record our approximate SP and stack bound.
	r.stackPtr.Store(approxSP())
	r.stackEnd.Store(topOfStack())
	// Step 2: post — the only signal-safe primitive needed.
	handshakeSem.Release(1)
	// Steps 3-4: wait for RESTART.
	r.waitForRestart()
	r.suspendRequested.Store(false)
	// Step 5: return; control resumes at the call site.
}

// trySelfCheckpoint lets a thread that has no MutatorContext in scope still
// honor a pending suspension request. lifecycle.go's CreateThread and
// runExitHook call Lock.Acquire directly, with no mutator loop of their own
// to call Checkpoint from; without this, a thread the stop controller's
// table scan already counted as live could race its own exit, never post
// its acknowledgement, and leave the controller (and every other
// Lock.Acquire caller, since the controller already holds the lock) blocked
// forever. Looks the caller's own record up via recordRegistry, a lock-free
// side index of Table kept for exactly this reason — Table itself is not
// safe to read without already holding the lock this function is trying to
// help acquire.
func trySelfCheckpoint() {
	v, ok := recordRegistry.Load(currentID())
	if !ok {
		return
	}
	rec := v.(*Record)
	if !rec.suspendRequested.Load() {
		return
	}
	rec.checkpoint()
}

// BlockingSyscall wraps a raw, potentially-blocking syscall: StopWorld
// delivers a real unix.Tgkill(SIGPWR) to the thread's OS tid, and whenever fn
// returns EINTR this wrapper checkpoints and then retries fn, so the
// interruption stays invisible to client logic (§5). Only an EINTR return
// reaches the checkpoint. Whether the signal makes the kernel call return
// EINTR, or restarts it inside the kernel, depends on the handler disposition
// the Go runtime installs; while fn stays blocked the thread does not
// acknowledge, and a StopWorld that counted it keeps waiting.
//
// fn must be a single syscall invocation (e.g. a raw read(2) via
// golang.org/x/sys/unix), not an arbitrary blocking Go operation.
func (m *MutatorContext) BlockingSyscall(fn func() (uintptr, error)) (uintptr, error) {
	for {
		ret, err := fn()
		if err == unix.EINTR {
			m.Checkpoint()
			continue
		}
		return ret, err
	}
}

// acquireAck waits for one "thread suspended" acknowledgement (§4.4 step 3).
func acquireAck(ctx context.Context) error {
	return handshakeSem.Acquire(ctx, 1)
}
