package bitcask

import (
	"github.com/pkg/errors"
)

// Store is an embeddable, persistent key/value store backed by an
// append-only log of datafiles and an in-memory keydir index. A Store owns
// an exclusive lock on its directory: only one Store may have a given
// directory open at a time, in this process or any other.
//
// All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	dd *datadir
	kd *keydir
}

// Open opens (creating it if necessary) the store rooted at directory,
// recovering its keydir from the datafiles already present, and returns a
// ready-to-use Store. The returned Store must be closed with Close once the
// caller is done with it, to release the directory lock and flush any
// buffered writes.
func Open(directory string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(o)
	}

	if o.maxValueSize >= tombstoneMarker {
		return nil, errors.Wrap(ErrInvalidArgument, "max value size collides with tombstone marker")
	}

	dd, err := openDatadir(o.fs, directory, o)
	if err != nil {
		return nil, err
	}

	kd := newKeydir()

	if err := dd.buildIndex(kd); err != nil {
		_ = dd.close()
		return nil, err
	}

	return &Store{dd: dd, kd: kd}, nil
}

// MaxFileSize returns the size threshold that triggers rollover of the
// active datafile.
func (s *Store) MaxFileSize() uint64 {
	return s.dd.maxFileSize()
}

// SetMaxFileSize changes the size threshold that triggers rollover of the
// active datafile. It takes effect on the next write that checks it.
func (s *Store) SetMaxFileSize(size uint64) {
	s.dd.setMaxFileSize(size)
}

// Get returns the current value of key, or ErrKeyNotFound if it has no
// entry (never written, or deleted).
func (s *Store) Get(key []byte) ([]byte, error) {
	entry, ok := s.kd.get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	return s.dd.get(location{
		fileID:   entry.fileID,
		valueSz:  entry.valueSz,
		valuePos: entry.valuePos,
		version:  entry.version,
	})
}

// Put writes key/value, superseding any previous value for key. It returns
// true iff key had no prior entry.
func (s *Store) Put(key, value []byte) (bool, error) {
	version := s.kd.nextVersion()

	loc, err := s.dd.put(key, value, version)
	if err != nil {
		return false, err
	}

	inserted := s.kd.put(key, keydirEntry{
		fileID:   loc.fileID,
		valueSz:  loc.valueSz,
		valuePos: loc.valuePos,
		version:  loc.version,
	})

	return inserted, nil
}

// Delete removes key, appending a tombstone so the deletion survives a
// restart. It returns true iff key had an entry to remove.
func (s *Store) Delete(key []byte) (bool, error) {
	version := s.kd.nextVersion()

	if err := s.dd.del(key, version); err != nil {
		return false, err
	}

	return s.kd.delete(key), nil
}

// Traverse visits every (key, value) pair in unspecified order, stopping
// early if visit returns false. It is weakly consistent: the keys visited
// and the value locations read are a snapshot taken at the start of the
// call, so a Put or Delete that lands after the snapshot is not reflected.
// A pair whose value cannot be read (for example because a concurrent
// Merge removed its datafile) is skipped without being reported. Traverse
// returns false iff visit requested an early stop.
func (s *Store) Traverse(visit func(key, value []byte) bool) bool {
	for _, pair := range s.kd.snapshot() {
		value, err := s.dd.get(location{
			fileID:   pair.entry.fileID,
			valueSz:  pair.entry.valueSz,
			valuePos: pair.entry.valuePos,
			version:  pair.entry.version,
		})
		if err != nil {
			continue
		}

		if !visit([]byte(pair.key), value) {
			return false
		}
	}

	return true
}

// Empty reports whether the store currently holds no keys.
func (s *Store) Empty() bool {
	return s.kd.empty()
}

// Len returns the number of keys currently in the store.
func (s *Store) Len() int {
	return s.kd.len()
}

// Merge compacts every immutable datafile, discarding superseded values and
// tombstones, reclaiming the disk space they occupied. The active datafile
// is never touched by a Merge.
func (s *Store) Merge() error {
	return s.dd.merge(s.kd)
}

// Clear removes every key and every datafile, leaving the store as empty as
// a freshly created one.
func (s *Store) Clear() error {
	if err := s.dd.clear(); err != nil {
		return err
	}

	s.kd.clear()

	return nil
}

// Sync flushes the active datafile's buffered writes to stable storage.
func (s *Store) Sync() error {
	return s.dd.sync()
}

// Close releases the store's directory lock and closes every open
// datafile. The Store must not be used afterwards.
func (s *Store) Close() error {
	return s.dd.close()
}
