package bitcask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeydirPutGetDelete(t *testing.T) {
	kd := newKeydir()

	inserted := kd.put([]byte("k"), keydirEntry{fileID: 1, valueSz: 2, valuePos: 3, version: 1})
	assert.True(t, inserted)

	entry, ok := kd.get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.fileID)

	inserted = kd.put([]byte("k"), keydirEntry{fileID: 2, valueSz: 5, valuePos: 9, version: 2})
	assert.False(t, inserted)

	existed := kd.delete([]byte("k"))
	assert.True(t, existed)

	_, ok = kd.get([]byte("k"))
	assert.False(t, ok)

	existed = kd.delete([]byte("k"))
	assert.False(t, existed)
}

func TestKeydirNextVersionMonotonic(t *testing.T) {
	kd := newKeydir()

	v1 := kd.nextVersion()
	v2 := kd.nextVersion()
	assert.Less(t, v1, v2)
}

func TestKeydirPutAdvancesVersionCounter(t *testing.T) {
	kd := newKeydir()

	kd.put([]byte("k"), keydirEntry{version: 100})
	v := kd.nextVersion()
	assert.Equal(t, uint64(101), v)
}

func TestKeydirTraverseEarlyStop(t *testing.T) {
	kd := newKeydir()
	kd.put([]byte("a"), keydirEntry{version: 1})
	kd.put([]byte("b"), keydirEntry{version: 2})

	visited := 0
	complete := kd.traverse(func(key string, entry keydirEntry) bool {
		visited++
		return false
	})

	assert.False(t, complete)
	assert.Equal(t, 1, visited)
}

func TestKeydirClearAndEmpty(t *testing.T) {
	kd := newKeydir()
	kd.put([]byte("a"), keydirEntry{version: 1})
	assert.False(t, kd.empty())
	assert.Equal(t, 1, kd.len())

	kd.clear()
	assert.True(t, kd.empty())
	assert.Equal(t, 0, kd.len())
}

func TestKeydirSnapshotIsConsistentCopy(t *testing.T) {
	kd := newKeydir()
	kd.put([]byte("a"), keydirEntry{version: 1})
	kd.put([]byte("b"), keydirEntry{version: 2})

	pairs := kd.snapshot()
	assert.Len(t, pairs, 2)

	kd.put([]byte("c"), keydirEntry{version: 3})
	assert.Len(t, pairs, 2, "snapshot must not observe later writes")
}
