package stopworld

// Build-time constants (§6). These are compiled-in policy knobs, not runtime
// configuration: the embedding collector picks them once for its target
// platform, so a config-file parser (e.g. the toml reader several of the
// pack's tools pull in) would be solving a problem this package doesn't have.
const (
	// tableSize is the thread table's bucket count. Must be a power of two
	// (§4.2); lookup hashes an id with '& (tableSize-1)'.
	tableSize = 128

	// lowSpinMax is the Lock spin budget used when the last acquisition
	// looked uncontended, or GC_collecting-equivalent (collecting) is set.
	lowSpinMax = 30

	// highSpinMax is the Lock spin budget used after a spin-won acquisition,
	// i.e. evidence that spinning pays off on this machine.
	highSpinMax = 1000

	// threadStackSize is the assumed maximum size, and alignment boundary,
	// of a non-primordial thread's stack (§4.5 "2 MiB on the canonical
	// platform"). Used only to derive an upper bound for conservative
	// scanning; never a hard limit enforced on real stack growth.
	threadStackSize = 2 * 1024 * 1024

	threadStackAlignment = threadStackSize
)

// ProgressCounterFunc, if set on a Controller, lets stop_world/start_world
// verify that no mutator made forward progress while the world was stopped
// (§4.4 step 1 of start_world, §9 open question). The corresponding
// increment site lives in the embedding collector's own hot loop; stopworld
// does not invent one, so a nil ProgressCounterFunc simply skips the check.
type ProgressCounterFunc func() uint64
