package stopworld

import "errors"

// Client-surface errors (§7 "Client-surface errors"): returned to callers of
// the lifecycle interceptors, never aborted on.
var (
	// ErrNoSuchThread is returned by Join when the id was never registered,
	// or has already been joined/reaped.
	ErrNoSuchThread = errors.New("stopworld: no such thread")

	// ErrAlreadyDetached is returned by Join when the target was created
	// detached and therefore cannot be joined.
	ErrAlreadyDetached = errors.New("stopworld: thread is detached")

	// ErrNotInitialized reports that Init has not run. No function in this
	// package returns it: CreateThread and PushAllStacks run Init lazily
	// instead.
	ErrNotInitialized = errors.New("stopworld: subsystem not initialized")
)

// boundaryError wraps a "recoverable-at-boundary" condition (§7): expected,
// and not fatal. StopWorld and StartWorld finish their work and then return
// it to the caller, which can match the cause with errors.Is. ESRCH racing a
// thread's exit during stop/start is the canonical example.
type boundaryError struct {
	op  string
	err error
}

func (e *boundaryError) Error() string { return "stopworld: " + e.op + ": " + e.err.Error() }
func (e *boundaryError) Unwrap() error { return e.err }

func newBoundaryError(op string, err error) error {
	return &boundaryError{op: op, err: err}
}
