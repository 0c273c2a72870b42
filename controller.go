package stopworld

import (
	"context"
	"runtime"

	"golang.org/x/sys/unix"
)

// Controller drives the stop/start handshake (§4.4) against a Table, using a
// Lock the caller must already hold. One Controller typically wraps the
// package-level singleton table (see Collector), but it takes the table
// explicitly so unit tests can exercise it against a scratch table without
// touching global state.
type Controller struct {
	table *Table

	// ProgressCounter, if set, lets start_world verify that no mutator made
	// progress while the world was stopped (§4.4 step 1, §9 open
	// question). Left nil by default: stopworld does not invent a mutator
	// increment site it was never given.
	ProgressCounter ProgressCounterFunc
	prevCounter     uint64
}

// NewController returns a Controller driving table.
func NewController(table *Table) *Controller {
	return &Controller{table: table}
}

// StopWorld suspends every registered thread other than the caller (§4.4).
// The caller must already hold the allocation lock.
func (c *Controller) StopWorld(ctx context.Context) error {
	log := componentLog("controller")

	// Give a thread that was just restarted a chance to actually leave
	// Checkpoint before we try to suspend it again; otherwise a SUSPEND
	// delivered while it's still unwinding from the previous one could be
	// lost or misordered.
	runtime.Gosched()

	self := currentID()
	nLive := 0
	var boundary error

	c.table.Each(func(r *Record) {
		if r.id == self || r.isFinished() {
			return
		}
		nLive++
		r.suspendRequested.Store(true)

		if tid := r.tid.Load(); tid != 0 {
			if err := unix.Tgkill(processID, int(tid), sigSuspendOS); err != nil {
				if err == unix.ESRCH {
					// Died between our membership snapshot and the send.
					nLive--
					boundary = newBoundaryError("stop_world", err)
				} else {
					abort("controller", "tgkill failed in stop_world", "id", r.id, "err", err)
				}
			}
		}
	})

	for i := 0; i < nLive; i++ {
		if err := acquireAck(ctx); err != nil {
			abort("controller", "handshake semaphore wait failed in stop_world", "err", err)
			return err
		}
	}

	if c.ProgressCounter != nil {
		c.prevCounter = c.ProgressCounter()
	}

	log.Debug().Int("n_live_threads", nLive).Msg("world stopped")
	return boundary
}

// StartWorld resumes every thread suspended by the matching StopWorld
// (§4.4). The caller must already hold the allocation lock.
func (c *Controller) StartWorld() error {
	log := componentLog("controller")

	if c.ProgressCounter != nil {
		if now := c.ProgressCounter(); now != c.prevCounter {
			abort("controller", "mutator made progress while world was stopped",
				"before", c.prevCounter, "after", now)
		}
	}

	self := currentID()
	var boundary error

	c.table.Each(func(r *Record) {
		// Keyed on suspendRequested, not isFinished: a record whose user
		// routine returned during the stop window (racing stop_world's own
		// table scan, handled by trySelfCheckpoint) is marked finished
		// before it's done waiting for its restart. Skipping it here on
		// isFinished would strand it in waitForRestart forever.
		if r.id == self || !r.suspendRequested.Load() {
			return
		}
		deliverRestart(r)

		if tid := r.tid.Load(); tid != 0 {
			if err := unix.Tgkill(processID, int(tid), sigRestartOS); err != nil {
				if err == unix.ESRCH {
					boundary = newBoundaryError("start_world", err)
				} else {
					abort("controller", "tgkill failed in start_world", "id", r.id, "err", err)
				}
			}
		}
	})

	log.Debug().Msg("world started")
	return boundary
}
