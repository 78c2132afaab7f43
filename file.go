package bitcask

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// file wraps an afero.File handle with a tracked logical write position (to
// avoid a redundant Seek on every append) and a mutex serializing the
// positioned reads and writes that share the single OS file descriptor, per
// the concurrency model: a datafile's own descriptor serializes its reads
// and writes even when the keydir lookup that preceded the read has already
// released its lock.
type file struct {
	mu sync.Mutex

	fs   FileSystem
	path string
	f    afero.File

	readOnly bool
	writePos int64
}

// openFile opens path for append (read-write) if readOnly is false, or
// read-only otherwise, creating it if it does not exist and readOnly is
// false.
func openFile(fs FileSystem, path string, readOnly bool) (*file, error) {
	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR | os.O_CREATE
	}

	f, err := fs.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	return &file{
		fs:       fs,
		path:     path,
		f:        f,
		readOnly: readOnly,
		writePos: fi.Size(),
	}, nil
}

// size returns the current on-disk size of the file.
func (fl *file) size() (int64, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fi, err := fl.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", fl.path)
	}

	return fi.Size(), nil
}

// append writes buf at the end of the file and returns the offset at which
// it was written. Appends are serialized by fl.mu so the tracked writePos
// stays authoritative without an extra Seek+SEEK_END round trip.
func (fl *file) append(buf []byte) (int64, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.readOnly {
		return 0, errors.Errorf("append to read-only file %s", fl.path)
	}

	pos := fl.writePos
	n, err := fl.f.WriteAt(buf, pos)
	if err != nil {
		return 0, errors.Wrapf(err, "write %s at %d", fl.path, pos)
	}

	fl.writePos += int64(n)

	return pos, nil
}

// readAt reads len(buf) bytes at the given offset. It distinguishes a clean
// EOF (zero bytes read at or past EOF) from a torn read (some, but not all,
// of buf filled) by returning io.EOF only in the former case and
// io.ErrUnexpectedEOF in the latter — callers use this to tell a clean log
// tail from a corrupted record.
func (fl *file) readAt(buf []byte, offset int64) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	n, err := fl.f.ReadAt(buf, offset)
	if n == len(buf) {
		return nil
	}

	if err == io.EOF || err == nil {
		if n == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}

	return errors.Wrapf(err, "read %s at %d", fl.path, offset)
}

// reopen transitions the file from active (read-write) to immutable
// (read-only) without losing the logical handle identity other components
// hold onto. It flushes first so every byte the active writer produced is
// visible to the reopened read-only handle.
func (fl *file) reopen(readOnly bool) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", fl.path)
	}

	if err := fl.f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", fl.path)
	}

	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR | os.O_CREATE
	}

	f, err := fl.fs.OpenFile(fl.path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "reopen %s", fl.path)
	}

	fl.f = f
	fl.readOnly = readOnly

	return nil
}

// sync flushes the file to stable storage.
func (fl *file) sync() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	return errors.Wrapf(fl.f.Sync(), "sync %s", fl.path)
}

// close releases the underlying descriptor.
func (fl *file) close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	return errors.Wrapf(fl.f.Close(), "close %s", fl.path)
}

// remove closes and deletes the file.
func (fl *file) remove() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	_ = fl.f.Close()

	return errors.Wrapf(fl.fs.Remove(fl.path), "remove %s", fl.path)
}
