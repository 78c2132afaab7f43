package bitcask

import (
	"math"

	"github.com/spf13/afero"
)

const (
	// tombstoneMarker is the reserved value_sz that marks a deleted record.
	// It can never appear as the real size of a live value.
	tombstoneMarker = math.MaxUint64

	defaultMaxKeySize   = uint32(1) << 16        // 64KiB
	defaultMaxValueSize = uint64(1)<<20 - 1       // ~1MiB, one short of its own overflow headroom
	defaultMaxFileSize  = uint64(1) << 30         // 1GiB, per the distilled spec's default
)

// options holds the configuration assembled from the functional Option
// values passed to Open.
type options struct {
	// maxFileSize is the threshold at or above which the active datafile
	// is rolled over into a fresh one on the next write.
	maxFileSize uint64

	// maxKeySize and maxValueSize bound a single record's key and value.
	// maxValueSize must stay below tombstoneMarker.
	maxKeySize   uint32
	maxValueSize uint64

	// fs is the filesystem the store operates against. Production callers
	// use the OS filesystem (the default); tests substitute afero's
	// in-memory filesystem.
	fs FileSystem
}

func defaultOptions() *options {
	return &options{
		maxFileSize:  defaultMaxFileSize,
		maxKeySize:   defaultMaxKeySize,
		maxValueSize: defaultMaxValueSize,
		fs:           afero.NewOsFs(),
	}
}

// Option configures a Store at Open time.
type Option interface {
	apply(*options)
}

type funcOption struct {
	fn func(*options)
}

func (funcOpt funcOption) apply(o *options) {
	funcOpt.fn(o)
}

func newFuncOption(fn func(*options)) *funcOption {
	return &funcOption{fn: fn}
}

// WithMaxFileSize sets the size threshold at or above which the active
// datafile is rolled over into a fresh segment before the next write.
func WithMaxFileSize(maxFileSize uint64) Option {
	return newFuncOption(func(o *options) {
		o.maxFileSize = maxFileSize
	})
}

// WithMaxKeySize sets the maximum number of bytes allowed in a single key.
func WithMaxKeySize(maxKeySize uint32) Option {
	return newFuncOption(func(o *options) {
		o.maxKeySize = maxKeySize
	})
}

// WithMaxValueSize sets the maximum number of bytes allowed in a single
// value. It must stay strictly below the tombstone marker
// (math.MaxUint64); Open rejects math.MaxUint64 itself with
// ErrInvalidArgument.
func WithMaxValueSize(maxValueSize uint64) Option {
	return newFuncOption(func(o *options) {
		o.maxValueSize = maxValueSize
	})
}

// WithFileSystem sets the filesystem the store operates against. Tests use
// afero.NewMemMapFs() for speed; production uses the default OS filesystem.
func WithFileSystem(fs FileSystem) Option {
	return newFuncOption(func(o *options) {
		o.fs = fs
	})
}
