package bitcask

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// datadir owns the store directory: the lockfile, the set of open
// datafiles keyed by id, and the configured size cap that drives rollover.
// The datafile with the greatest id is always the active (writable) one.
type datadir struct {
	mu sync.RWMutex

	fs  FileSystem
	dir string
	opt *options

	lock *lockfile

	files    map[uint64]*datafile
	activeID uint64
}

// openDatadir implements the open protocol of SPEC_FULL §4.5: validate or
// create the directory, take the exclusive lock, open every existing
// datafile (greatest id read-write, the rest read-only), or create a fresh
// id-0 active file if the directory was empty.
func openDatadir(fs FileSystem, dir string, opt *options) (*datadir, error) {
	if err := ensureDir(fs, dir); err != nil {
		return nil, err
	}

	lock, err := acquireLockfile(fs, dir)
	if err != nil {
		return nil, err
	}

	dd := &datadir{
		fs:    fs,
		dir:   dir,
		opt:   opt,
		files: make(map[uint64]*datafile),
	}

	ids, err := listDataFileIDs(fs, dir)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	if len(ids) == 0 {
		df, err := openDatafile(fs, dir, 0, false)
		if err != nil {
			_ = lock.Release()
			return nil, err
		}
		dd.files[0] = df
		dd.activeID = 0
		dd.lock = lock
		return dd, nil
	}

	for i, id := range ids {
		readOnly := i != len(ids)-1
		df, err := openDatafile(fs, dir, id, readOnly)
		if err != nil {
			dd.closeAll()
			_ = lock.Release()
			return nil, err
		}
		dd.files[id] = df
	}

	dd.activeID = ids[len(ids)-1]
	dd.lock = lock

	return dd, nil
}

func (dd *datadir) closeAll() {
	for _, df := range dd.files {
		_ = df.close()
	}
}

func (dd *datadir) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(dd.files))
	for id := range dd.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (dd *datadir) active() *datafile {
	return dd.files[dd.activeID]
}

// nextActiveID implements the sparse id-allocation scheme: the new active
// file's id bumps the high 32 bits and zeroes the low 32 bits, reserving
// the low half for ids merge output can slot strictly between the last
// immutable file and the (new) active file without ever renaming anything.
func nextActiveID(previousActive uint64) uint64 {
	return ((previousActive >> 32) + 1) << 32
}

func (dd *datadir) maxFileSize() uint64 {
	dd.mu.RLock()
	defer dd.mu.RUnlock()
	return dd.opt.maxFileSize
}

func (dd *datadir) setMaxFileSize(size uint64) {
	dd.mu.Lock()
	defer dd.mu.Unlock()
	dd.opt.maxFileSize = size
}

// rolloverIfNeeded reopens the active file read-only and opens a fresh
// active file if the current one has reached the configured cap. Must
// be called with dd.mu held for writing.
func (dd *datadir) rolloverIfNeeded() error {
	active := dd.active()

	size, err := active.size()
	if err != nil {
		return err
	}

	if uint64(size) < dd.opt.maxFileSize {
		return nil
	}

	if err := active.reopen(true); err != nil {
		return err
	}

	newID := nextActiveID(dd.activeID)

	newActive, err := openDatafile(dd.fs, dd.dir, newID, false)
	if err != nil {
		return err
	}

	dd.files[newID] = newActive
	dd.activeID = newID

	return nil
}

// put appends a record for key/value at the given version to the active
// file, rolling it over first if necessary, and returns the resulting
// location.
func (dd *datadir) put(key, value []byte, version uint64) (location, error) {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	if uint64(len(key)) > uint64(dd.opt.maxKeySize) {
		return location{}, errors.Wrap(ErrInvalidArgument, "key exceeds configured maximum size")
	}
	if uint64(len(value)) > dd.opt.maxValueSize {
		return location{}, errors.Wrap(ErrInvalidArgument, "value exceeds configured maximum size")
	}

	if err := dd.rolloverIfNeeded(); err != nil {
		return location{}, err
	}

	return dd.active().appendPut(key, value, version)
}

// del appends a tombstone for key at the given version to the active file.
func (dd *datadir) del(key []byte, version uint64) error {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	if uint64(len(key)) > uint64(dd.opt.maxKeySize) {
		return errors.Wrap(ErrInvalidArgument, "key exceeds configured maximum size")
	}

	if err := dd.rolloverIfNeeded(); err != nil {
		return err
	}

	return dd.active().appendDelete(key, version)
}

// get reads the value described by loc from the datafile it names.
func (dd *datadir) get(loc location) ([]byte, error) {
	dd.mu.RLock()
	df, ok := dd.files[loc.fileID]
	dd.mu.RUnlock()

	if !ok {
		return nil, errors.WithStack(&CorruptIndexError{FileID: loc.fileID})
	}

	return df.readValue(loc)
}

// buildIndex scans (or reads the hint file of) every datafile in ascending
// id order, so that later records and tombstones correctly supersede
// earlier ones.
func (dd *datadir) buildIndex(kd *keydir) error {
	dd.mu.RLock()
	ids := dd.sortedIDs()
	dd.mu.RUnlock()

	for _, id := range ids {
		dd.mu.RLock()
		df := dd.files[id]
		dd.mu.RUnlock()

		if err := df.buildIndex(dd.fs, kd); err != nil {
			return err
		}
	}

	return nil
}

// clear removes every datafile and hintfile and starts over with a fresh
// empty active file at id 0.
func (dd *datadir) clear() error {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	for id, df := range dd.files {
		if err := df.remove(dd.fs); err != nil {
			return err
		}
		delete(dd.files, id)
	}

	fresh, err := openDatafile(dd.fs, dd.dir, 0, false)
	if err != nil {
		return err
	}

	dd.files[0] = fresh
	dd.activeID = 0

	return nil
}

// sync flushes the active datafile's buffered writes to stable storage.
func (dd *datadir) sync() error {
	dd.mu.RLock()
	defer dd.mu.RUnlock()

	return dd.active().sync()
}

// close syncs and closes every open datafile and releases the lockfile.
func (dd *datadir) close() error {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	var firstErr error
	for _, df := range dd.files {
		if err := df.sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := df.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := dd.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
