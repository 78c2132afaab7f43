package bitcask

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors returned by the store. Callers should compare with
// errors.Is; wrapped errors keep working with errors.Cause from
// github.com/pkg/errors.
var (
	// ErrNotADirectory is returned by Open when the target path exists and
	// is not a directory.
	ErrNotADirectory = errors.New("bitcask: path exists and is not a directory")

	// ErrAlreadyLocked is returned by Open when the store's lockfile is
	// already held, by another process or by a Store open in this one.
	ErrAlreadyLocked = errors.New("bitcask: store directory is locked by another process")

	// ErrInvalidArgument is returned when a key exceeds the maximum key
	// size, or a value's length collides with the reserved tombstone
	// marker.
	ErrInvalidArgument = errors.New("bitcask: invalid key or value")

	// ErrKeyNotFound is returned by Get when the key has no entry in the
	// keydir.
	ErrKeyNotFound = errors.New("bitcask: key not found")
)

// CorruptedError reports a torn write or CRC mismatch discovered while
// scanning a data file, naming the exact file and byte offset at which the
// bad record starts.
type CorruptedError struct {
	Path     string
	Position int64
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("bitcask: corrupted record in %s at offset %d", e.Path, e.Position)
}

// CorruptIndexError reports that the keydir holds an entry pointing at a
// file id for which no open datafile exists. This should never happen
// unless the keydir and the datadir's file map have been allowed to drift
// apart, or a hint file was rebuilt against a dangling id.
type CorruptIndexError struct {
	FileID uint64
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("bitcask: keydir references unknown file id %016x", e.FileID)
}
