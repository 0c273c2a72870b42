package stopworld

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNewAndLookup(t *testing.T) {
	var tbl Table
	r := tbl.New(42)
	require.NotNil(t, r)
	assert.Equal(t, ID(42), r.id)

	got := tbl.Lookup(42)
	assert.Same(t, r, got)
	assert.Nil(t, tbl.Lookup(43))
}

func TestTableFirstRecordIsStaticallyReserved(t *testing.T) {
	var tbl Table
	first := tbl.New(1)
	assert.Same(t, &tbl.firstRecord, first, "the very first New call must use the reserved slot")

	second := tbl.New(2)
	assert.NotSame(t, &tbl.firstRecord, second)
}

func TestTableDeleteMostRecentFirst(t *testing.T) {
	var tbl Table
	a := tbl.New(7)
	b := tbl.New(7) // same id recycled before a is reaped

	assert.Same(t, b, tbl.Lookup(7), "lookup returns the most recently allocated record")

	tbl.DeleteSpecific(7, a)
	assert.Same(t, b, tbl.Lookup(7), "deleting the older record by pointer must not disturb the newer one")

	tbl.Delete(7)
	assert.Nil(t, tbl.Lookup(7))
}

func TestTableEachAndLen(t *testing.T) {
	var tbl Table
	tbl.New(1)
	tbl.New(2)
	tbl.New(3)

	assert.Equal(t, 3, tbl.Len())

	seen := map[ID]bool{}
	tbl.Each(func(r *Record) { seen[r.id] = true })
	assert.Equal(t, map[ID]bool{1: true, 2: true, 3: true}, seen)
}

func TestTableBucketCollisionOrdering(t *testing.T) {
	var tbl Table
	a := tbl.New(ID(tableSize))
	b := tbl.New(ID(2 * tableSize)) // hashes to the same bucket as a

	assert.Equal(t, bucketIndex(ID(tableSize)), bucketIndex(ID(2*tableSize)))
	assert.Same(t, b, tbl.buckets[bucketIndex(ID(tableSize))])
	assert.Same(t, a, b.next)
}
