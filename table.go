package stopworld

import "sync"

// recordRegistry is a lock-free id -> *Record side index, kept in step with
// Table's own bucket links but readable without holding the allocation lock.
// Its only consumer is trySelfCheckpoint, which needs a thread's own record
// from inside Lock.Acquire's spin loop — i.e. before the caller holds the
// lock Table's bucket slices otherwise depend on for safe concurrent access.
var recordRegistry sync.Map

// Table is the hash-bucketed thread registry (§4.2). All operations assume
// the caller holds the allocation lock, except where noted. Duplicate ids
// are allowed transiently (a recycled TID handed to a new thread before the
// old record is reaped), so the table is a multimap; bucket order is
// most-recently-allocated first, which is what makes Lookup return the live
// thread when an id has been reused.
type Table struct {
	buckets [tableSize]*Record

	// firstRecord is the statically reserved slot used by the very first
	// New call (§4.2, §4.6 "thr_init"): at that point the allocator may not
	// yet be usable, and the caller already holds the lock, so the general
	// allocation path can't be used. Mirrors GC_new_thread's
	// "static struct GC_Thread_Rep first_thread".
	firstRecord     Record
	firstRecordUsed bool
}

func bucketIndex(id ID) int {
	return int(uint32(id) & (tableSize - 1))
}

// New allocates a record for id, links it at the head of its bucket, and
// returns it. The first call ever made against a Table reuses a statically
// reserved slot instead of allocating.
func (t *Table) New(id ID) *Record {
	var r *Record
	if !t.firstRecordUsed {
		t.firstRecordUsed = true
		r = &t.firstRecord
		*r = Record{id: id, done: make(chan struct{})}
	} else {
		r = newRecord(id)
	}
	hv := bucketIndex(id)
	r.next = t.buckets[hv]
	t.buckets[hv] = r
	recordRegistry.Store(id, r)
	return r
}

// Delete unlinks the head-most record matching id. It is a fatal bug (§7) to
// call this when no such record exists.
func (t *Table) Delete(id ID) {
	hv := bucketIndex(id)
	var prev *Record
	p := t.buckets[hv]
	for p != nil && p.id != id {
		prev = p
		p = p.next
	}
	if p == nil {
		abort("table", "delete_thread: no record for id", "id", id)
		return
	}
	if prev == nil {
		t.buckets[hv] = p.next
	} else {
		prev.next = p.next
	}
	recordRegistry.CompareAndDelete(id, p)
}

// DeleteSpecific unlinks exactly the given record, identified by pointer
// rather than id (the join case, where id may have been recycled for a new
// live thread by the time the join completes).
func (t *Table) DeleteSpecific(id ID, rec *Record) {
	hv := bucketIndex(id)
	var prev *Record
	p := t.buckets[hv]
	for p != nil && p != rec {
		prev = p
		p = p.next
	}
	if p == nil {
		abort("table", "delete_specific: record not present", "id", id)
		return
	}
	if prev == nil {
		t.buckets[hv] = p.next
	} else {
		prev.next = p.next
	}
	recordRegistry.CompareAndDelete(id, rec)
}

// Lookup returns the head-most (most recent) record matching id, or nil.
func (t *Table) Lookup(id ID) *Record {
	p := t.buckets[bucketIndex(id)]
	for p != nil && p.id != id {
		p = p.next
	}
	return p
}

// Each calls fn for every record currently in the table. fn must not mutate
// table membership; it may freely read/write the record it's given. Caller
// holds the lock.
func (t *Table) Each(fn func(*Record)) {
	for _, head := range t.buckets {
		for p := head; p != nil; p = p.next {
			fn(p)
		}
	}
}

// Snapshot returns a flat copy of every record pointer currently in the
// table. Read-only debug/test helper (§ SPEC_FULL "Thread Table" addition);
// caller holds the lock.
func (t *Table) Snapshot() []*Record {
	var out []*Record
	t.Each(func(r *Record) { out = append(out, r) })
	return out
}

// Len returns the number of records currently in the table (live or not yet
// reaped). Caller holds the lock.
func (t *Table) Len() int {
	n := 0
	t.Each(func(*Record) { n++ })
	return n
}
