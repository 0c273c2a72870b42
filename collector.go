package stopworld

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Collector bundles the Lock, Table, and Controller that together make up
// the subsystem (§2 "Control flow"). Most programs use the package-level
// Default; the type is exported so tests (and embedders wanting more than
// one independent registry, e.g. per-arena collectors) can construct their
// own.
type Collector struct {
	Lock       *Lock
	Table      *Table
	Controller *Controller

	initialized atomic.Bool
}

// NewCollector returns an uninitialized Collector; call Init (or let the
// first CreateThread do it lazily) before use.
func NewCollector() *Collector {
	t := &Table{}
	return &Collector{
		Lock:       NewLock(),
		Table:      t,
		Controller: NewController(t),
	}
}

// Default is the package-wide singleton most callers use (§9 "Global
// state"): the table, lock, and handshake semaphore are process-wide with no
// teardown, matching the collector's own lifetime.
var Default = NewCollector()

var notifyOnce sync.Once
var osSignals = make(chan os.Signal, 64)

// installSignalHandlers arranges for SIGPWR/SIGCONT to be caught rather
// than take their default (SIGPWR: terminate) action (§4.3 RESTART handler
// note: "the handler's mere existence is required so the signal is delivered
// and interrupts the wait"). Whether a thread blocked in a system call sees
// EINTR or has the call restarted inside the kernel depends on the handler
// disposition the Go runtime installs, which this package does not set. The
// real coordination happens via Checkpoint,
// waitForRestart and BlockingSyscall's EINTR retry, not in this goroutine.
func installSignalHandlers() {
	notifyOnce.Do(func() {
		signal.Notify(osSignals, sigSuspendOS, sigRestartOS)
		go func() {
			for range osSignals {
			}
		}()
	})
}

// Init installs the signal handlers and registers the calling thread as the
// primordial thread (§4.6 "thr_init"). Idempotent. Caller must hold c.Lock.
// Most programs never call this directly — it runs lazily, under the lock,
// from the first CreateThread — but the primordial thread itself must call
// it (or make its first CreateThread call) before anything may StopWorld.
func (c *Collector) Init() {
	if c.initialized.Load() {
		return
	}
	installSignalHandlers()

	pinCurrentThread()
	id := currentID()
	rec := c.Table.New(id)
	rec.setFlag(FlagMainThread)
	rec.setFlag(FlagDetached)
	rec.tid.Store(int32(id))
	rec.stackPtr.Store(approxSP()) // sentinel; never read while unsuspended

	c.initialized.Store(true)
}

// StopWorld suspends every registered thread but the caller (§4.4, §6).
// Caller must hold c.Lock.
func (c *Collector) StopWorld(ctx context.Context) error {
	return c.Controller.StopWorld(ctx)
}

// StartWorld resumes threads suspended by the matching StopWorld (§4.4, §6).
// Caller must hold c.Lock.
func (c *Collector) StartWorld() error {
	return c.Controller.StartWorld()
}

// PushAllStacks delivers [lo, hi) for every live thread's stack to scanner
// (§4.5, §6). Caller must hold c.Lock with the world stopped.
func (c *Collector) PushAllStacks(scanner StackScanner) {
	if !c.initialized.Load() {
		c.Init()
	}
	c.Controller.PushAllStacks(scanner)
}

// Init, StopWorld, StartWorld, and PushAllStacks against Default.

func Init()                               { Default.Init() }
func StopWorld(ctx context.Context) error { return Default.StopWorld(ctx) }
func StartWorld() error                   { return Default.StartWorld() }
func PushAllStacks(scanner StackScanner)  { Default.PushAllStacks(scanner) }
