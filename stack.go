package stopworld

import "unsafe"

// StackScanner is the external conservative scanner (§1 "external
// collaborators"): it treats every machine word in [lo, hi) as a potential
// heap pointer. Supplied by the mark/sweep collector, not implemented here.
type StackScanner interface {
	PushStackRange(lo, hi uintptr)
}

// Allocator is the raw, lock-free allocator entry point (§1): AllocateInner
// does not itself take the allocation lock, so it must only be called while
// the caller already holds it.
type Allocator interface {
	AllocateInner(size uintptr, kind uint32) (unsafe.Pointer, error)
}

// PrimordialStackBottom is the main thread's stack base, supplied by the
// embedding program at start-up: it is not derivable arithmetically (§3,
// §4.5), unlike every other thread's stack-top bound.
var PrimordialStackBottom uintptr

// approxSP returns the caller's approximate current stack pointer by taking
// the address of a local (§1 "approx_current_sp()"). Conservative by
// construction: it's somewhere below the true SP, never above it.
//
//go:noinline
func approxSP() uintptr {
	var probe byte
	return uintptr(unsafe.Pointer(&probe))
}

// topOfStack derives a safe upper bound for the calling thread's stack by
// rounding its approximate SP up to the next threadStackAlignment boundary
// (§4.5). This assumes non-primordial thread stacks are allocated aligned to
// that boundary and never grow past it — an explicit dependency on the
// runtime's stack-placement policy (documented open question in DESIGN.md:
// a portable implementation would prefer querying the runtime's own
// thread-stack attribute where available, falling back to this arithmetic).
func topOfStack() uintptr {
	sp := approxSP()
	return (sp | (threadStackAlignment - 1)) + 1
}

// PushAllStacks is the Stack Enumerator (§4.5): for every non-finished
// record, it derives [lo, hi) and hands it to scanner. Caller must hold the
// allocation lock with the world already stopped.
func (c *Controller) PushAllStacks(scanner StackScanner) {
	self := currentID()
	c.table.Each(func(r *Record) {
		if r.isFinished() {
			return
		}

		var lo, hi uintptr
		if r.id != self {
			lo = r.stackPtr.Load()
		} else {
			lo = approxSP()
		}

		switch {
		case r.isMainThread():
			hi = PrimordialStackBottom
		case r.id != self:
			hi = r.stackEnd.Load()
		default:
			hi = topOfStack()
		}

		scanner.PushStackRange(lo, hi)
	})
}
