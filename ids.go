package stopworld

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// currentID returns the calling OS thread's Linux TID. Only meaningful once
// the calling goroutine has called runtime.LockOSThread (otherwise the
// scheduler is free to move it to a different OS thread between calls).
func currentID() ID {
	return ID(unix.Gettid())
}

// pinCurrentThread locks the calling goroutine to its current OS thread for
// the remainder of its lifetime, matching a real pthread's fixed kernel
// identity (§3: "opaque kernel-thread identity"). Threads created through
// CreateThread call this once, at the top of the bootstrap goroutine, and
// never UnlockOSThread — the thread's identity must not move out from under
// the table.
func pinCurrentThread() {
	runtime.LockOSThread()
}

var processID = unix.Getpid()
