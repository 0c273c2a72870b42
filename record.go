package stopworld

import "sync/atomic"

// ID is the opaque kernel-thread identity (§3): the Linux TID of a goroutine
// that has called runtime.LockOSThread. Equality-comparable and rehashable;
// the OS recycles TIDs, so table lookups always return the head-most
// (most-recent) record for a given ID — see Table.Lookup.
type ID int32

// Flag bits, packed into Record.flags (§3).
type Flag uint32

const (
	// FlagFinished: the thread's user routine has returned.
	FlagFinished Flag = 1 << iota
	// FlagDetached: no one will join it; it may delete its own record on exit.
	FlagDetached
	// FlagMainThread: the primordial thread, whose stack bottom is supplied
	// externally (PrimordialStackBottom) rather than derived arithmetically.
	FlagMainThread
)

const (
	sigNone    int32 = 0
	sigRestart int32 = 1
)

// Record is one thread table entry (§3 "Thread Record"). Exists in the table
// from strictly before the thread's user routine may run, until reaped
// (explicit delete on detached exit, or successful Join).
type Record struct {
	id   ID
	next *Record // most-recently-allocated record for this id comes first

	flags atomic.Uint32

	// stackPtr/stackEnd are meaningful to readers only while the thread is
	// suspended and the allocation lock is held (invariant 3).
	stackPtr atomic.Uintptr
	stackEnd atomic.Uintptr

	// signal is the transient handshake channel: 0 while waiting, set to
	// sigRestart by the restart path to break Checkpoint's wait loop.
	signal atomic.Int32

	// status retains the user routine's return value across the record's
	// post-return lifetime, so anything it transitively references via the
	// conservative scanner stays reachable until the record is reaped.
	status atomic.Value

	// done is closed once the user routine has returned (or, on a panic, by
	// the exit hook); Join blocks on it. Not part of the spec's data model (the
	// original relies on pthread_join itself for this); standing in for
	// the kernel join primitive stopWorld is layered on top of.
	done chan struct{}

	// tid is set once the record's owning goroutine has pinned an OS
	// thread; used by BlockingSyscall's directed tgkill delivery.
	tid atomic.Int32

	// suspendRequested is set by the stop controller and cleared by
	// Checkpoint once the corresponding restart has been observed; the
	// cooperative stand-in for "a SUSPEND signal is pending" (§0 of
	// SPEC_FULL.md).
	suspendRequested atomic.Bool
}

func newRecord(id ID) *Record {
	r := &Record{id: id, done: make(chan struct{})}
	return r
}

func (r *Record) setFlag(f Flag)          { r.flags.Or(uint32(f)) }
func (r *Record) hasFlag(f Flag) bool     { return r.flags.Load()&uint32(f) != 0 }
func (r *Record) isFinished() bool        { return r.hasFlag(FlagFinished) }
func (r *Record) isDetached() bool        { return r.hasFlag(FlagDetached) }
func (r *Record) isMainThread() bool      { return r.hasFlag(FlagMainThread) }
func (r *Record) markFinished()           { r.setFlag(FlagFinished) }
