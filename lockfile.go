package bitcask

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// lockfile is a directory-scoped exclusive advisory lock guaranteeing a
// single writable Store per directory. On the real OS filesystem it takes
// a non-blocking exclusive flock(2) lock (golang.org/x/sys/unix.Flock) on
// the underlying descriptor, which protects against another *process*
// opening the same store. Files that expose no descriptor (such as afero's
// in-memory filesystem) get no OS lock at all, so a process-local registry
// (heldLocks) additionally guards against the same process opening the
// same directory twice; it is checked before the OS lock is tried.
// Together they give the "exactly one live Store per directory per
// process" guarantee the package promises.
type lockfile struct {
	fs   FileSystem
	path string
	f    afero.File

	flocked bool
	release func()
}

var (
	heldLocksMu sync.Mutex
	heldLocks   = map[string]bool{}
)

func acquireLockfile(fs FileSystem, dir string) (*lockfile, error) {
	path := lockFilePath(dir)

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	heldLocksMu.Lock()
	if heldLocks[key] {
		heldLocksMu.Unlock()
		return nil, ErrAlreadyLocked
	}
	heldLocks[key] = true
	heldLocksMu.Unlock()

	release := func() {
		heldLocksMu.Lock()
		delete(heldLocks, key)
		heldLocksMu.Unlock()
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "open lockfile %s", path)
	}

	lf := &lockfile{fs: fs, path: path, f: f, release: release}

	if fdFile, ok := f.(interface{ Fd() uintptr }); ok {
		if err := unix.Flock(int(fdFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			_ = f.Close()
			release()
			return nil, ErrAlreadyLocked
		}
		lf.flocked = true
	}

	return lf, nil
}

// Release unlocks and closes the lockfile. Safe to call at most once; the
// Store calls it from Close.
func (lf *lockfile) Release() error {
	if lf.release != nil {
		lf.release()
		lf.release = nil
	}

	if lf.flocked {
		if fdFile, ok := lf.f.(interface{ Fd() uintptr }); ok {
			_ = unix.Flock(int(fdFile.Fd()), unix.LOCK_UN)
		}
	}

	return errors.Wrapf(lf.f.Close(), "close lockfile %s", lf.path)
}
