package stopworld

import "golang.org/x/sys/unix"

// UserFunc is a thread's entry point. It receives a MutatorContext bound to
// its own Record — see MutatorContext.Checkpoint.
type UserFunc func(*MutatorContext) any

// ThreadAttr mirrors the handful of pthread_attr_t fields this subsystem
// cares about (§4.6 "create_thread").
type ThreadAttr struct {
	// Detached marks the thread so its record is reclaimed by the thread
	// itself on exit; Join on a detached thread returns ErrAlreadyDetached.
	Detached bool
}

// resultBox exists only so atomic.Value always sees the same concrete type,
// even when the user routine returns a nil interface.
type resultBox struct{ v any }

// CreateThread is the create_thread lifecycle interceptor (§4.6). It spawns
// fn on a freshly pinned OS thread and does not return until that thread's
// record is in the table — matching the invariant that a thread's record
// exists before its user code can run (invariant 1, §3).
func (c *Collector) CreateThread(fn UserFunc, attr ThreadAttr) (ID, error) {
	c.Lock.Acquire()
	defer c.Lock.Release()
	c.Init()

	idCh := make(chan ID, 1)
	startCh := make(chan struct{})
	go c.bootstrap(fn, idCh, startCh)

	id := <-idCh
	rec := c.Table.New(id)
	rec.tid.Store(int32(id))
	if attr.Detached {
		rec.setFlag(FlagDetached)
	}
	close(startCh)

	return id, nil
}

// bootstrap is the new thread's entry point (§4.6 "Bootstrap
// start_routine"): it pins an OS thread, announces its id, waits for the
// creator to finish registering it, runs the user routine, and then runs
// the exit hook on every path.
func (c *Collector) bootstrap(fn UserFunc, idCh chan<- ID, startCh <-chan struct{}) {
	pinCurrentThread()
	id := currentID()
	idCh <- id
	<-startCh

	c.Lock.Acquire()
	rec := c.Table.Lookup(id)
	c.Lock.Release()
	if rec == nil {
		abort("lifecycle", "bootstrap: no record for freshly created thread", "id", id)
		return
	}

	mc := &MutatorContext{rec: rec}

	var result any
	func() {
		defer c.runExitHook(rec, id)
		result = fn(mc)
		rec.status.Store(resultBox{result})
		rec.markFinished()
		close(rec.done)
	}()
}

// runExitHook is the exit hook (§4.6 "Exit hook"): detached threads reap
// themselves, others are left FINISHED for their joiner. Always runs,
// including on a panicking user routine, via defer in bootstrap.
func (c *Collector) runExitHook(rec *Record, id ID) {
	if r := recover(); r != nil {
		rec.status.Store(resultBox{r})
		rec.markFinished()
		closeOnce(rec)
	}
	c.Lock.Acquire()
	defer c.Lock.Release()
	if rec.isDetached() {
		c.Table.Delete(id)
	}
}

// closeOnce closes rec.done if it isn't already closed, so a panicking user
// routine still unblocks any pending Join.
func closeOnce(rec *Record) {
	select {
	case <-rec.done:
	default:
		close(rec.done)
	}
}

// Join is the join lifecycle interceptor (§4.6). It blocks until the
// thread's user routine has returned, then reaps its record by pointer
// identity — not by id, which may already have been recycled for a new live
// thread by the time the underlying join-equivalent returns.
func (c *Collector) Join(id ID) (any, error) {
	c.Lock.Acquire()
	rec := c.Table.Lookup(id)
	c.Lock.Release()
	if rec == nil {
		return nil, ErrNoSuchThread
	}
	if rec.isDetached() {
		return nil, ErrAlreadyDetached
	}

	<-rec.done

	c.Lock.Acquire()
	c.Table.DeleteSpecific(id, rec)
	c.Lock.Release()

	if box, ok := rec.status.Load().(resultBox); ok {
		return box.v, nil
	}
	return nil, nil
}

// Sigmask is the sigmask lifecycle interceptor (§4.6): it forcibly removes
// SIGPWR from any mask the caller is about to block or set, so the
// collector can always stop a registered thread (invariant 5, §3). oset is
// passed through untouched; the client still observes its own intended mask
// on read-back via SIG_SETMASK/SIG_BLOCK's own semantics, it just never
// succeeds in blocking SIGPWR.
func Sigmask(how int, set, oset *unix.Sigset_t) error {
	if set != nil && (how == unix.SIG_BLOCK || how == unix.SIG_SETMASK) {
		fudged := *set
		sigsetDel(&fudged, sigSuspendOS)
		set = &fudged
	}
	return unix.PthreadSigmask(how, set, oset)
}

// sigsetDel clears sig's bit in set. golang.org/x/sys/unix represents
// Sigset_t as a fixed array of 64-bit words on linux/amd64 and linux/arm64;
// this assumes that layout, matching this subsystem's Linux-only scope (the
// original source is itself LINUX_THREADS-gated).
func sigsetDel(set *unix.Sigset_t, sig unix.Signal) {
	word := (int(sig) - 1) / 64
	bit := uint((int(sig) - 1) % 64)
	set.Val[word] &^= 1 << bit
}

// Package-level convenience wrappers against Default, mirroring the client-
// facing names from §6 ("Functions exposed to client code").

func CreateThread(fn UserFunc, attr ThreadAttr) (ID, error) { return Default.CreateThread(fn, attr) }
func Join(id ID) (any, error)                               { return Default.Join(id) }
