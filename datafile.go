package bitcask

import (
	"math"

	"github.com/pkg/errors"
)

// location is the byte range of a value within a specific datafile, plus
// the version of the record that produced it. It is what a Datadir returns
// from a write and what a Keydir entry stores.
type location struct {
	fileID   uint64
	valueSz  uint64
	valuePos int64
	version  uint64
}

// scanEntry is what Datafile.scan hands its visitor for each record: the
// key, and either a value (with its version and on-disk position) or
// nothing at all for a tombstone.
type scanEntry struct {
	key      []byte
	hasValue bool
	value    []byte
	valuePos int64
	version  uint64
}

// datafile is a single append-only segment. Exactly one datafile in a
// datadir is active (writable) at any time; the rest are immutable.
type datafile struct {
	id   uint64
	dir  string
	f    *file
	path string
}

func openDatafile(fs FileSystem, dir string, id uint64, readOnly bool) (*datafile, error) {
	path := dataFilePath(dir, id)

	f, err := openFile(fs, path, readOnly)
	if err != nil {
		return nil, err
	}

	return &datafile{id: id, dir: dir, f: f, path: path}, nil
}

func (df *datafile) size() (int64, error) {
	return df.f.size()
}

// appendPut writes one live record and returns the location of its value.
func (df *datafile) appendPut(key, value []byte, version uint64) (location, error) {
	if err := validateKey(key); err != nil {
		return location{}, err
	}
	if uint64(len(value)) >= tombstoneMarker {
		return location{}, errors.Wrap(ErrInvalidArgument, "value length collides with tombstone marker")
	}

	buf := encodeDataRecord(key, value, version, false)

	pos, err := df.f.append(buf)
	if err != nil {
		return location{}, err
	}

	valuePos := pos + dataRecordHeaderSize + int64(len(key))

	return location{
		fileID:   df.id,
		valueSz:  uint64(len(value)),
		valuePos: valuePos,
		version:  version,
	}, nil
}

// appendDelete writes a tombstone record; it has no location to return.
func (df *datafile) appendDelete(key []byte, version uint64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	buf := encodeDataRecord(key, nil, version, true)
	_, err := df.f.append(buf)
	return err
}

func validateKey(key []byte) error {
	if uint64(len(key)) > math.MaxUint32 {
		return errors.Wrap(ErrInvalidArgument, "key exceeds maximum length")
	}
	return nil
}

// readValue reads exactly loc.valueSz bytes at loc.valuePos. A zero-length
// value is returned without touching the file.
func (df *datafile) readValue(loc location) ([]byte, error) {
	if loc.valueSz == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, loc.valueSz)
	if err := df.f.readAt(buf, loc.valuePos); err != nil {
		return nil, errors.Wrapf(err, "read value from %s", df.path)
	}

	return buf, nil
}

// scan walks every record from offset 0 to a clean EOF, invoking visit for
// each. Stopping early (visit returning false) is supported; visit
// returning a non-nil error aborts the scan and propagates that error.
func (df *datafile) scan(visit func(scanEntry) (bool, error)) error {
	var offset int64

	header := make([]byte, dataRecordHeaderSize)

	for {
		if err := df.f.readAt(header, offset); err != nil {
			if isCleanEOF(err) {
				return nil
			}
			return &CorruptedError{Path: df.path, Position: offset}
		}

		crc, version, ksz, valueSz := decodeDataRecordHeader(header)
		tombstone := valueSz == tombstoneMarker

		key := make([]byte, ksz)
		if ksz > 0 {
			if err := df.f.readAt(key, offset+dataRecordHeaderSize); err != nil {
				return &CorruptedError{Path: df.path, Position: offset}
			}
		}

		entry := scanEntry{key: key, version: version}

		var value []byte
		var valuePos int64
		if !tombstone {
			valuePos = offset + dataRecordHeaderSize + int64(ksz)
			value = make([]byte, valueSz)
			if valueSz > 0 {
				if err := df.f.readAt(value, valuePos); err != nil {
					return &CorruptedError{Path: df.path, Position: offset}
				}
			}

			entry.hasValue = true
			entry.value = value
			entry.valuePos = valuePos
		}

		if checksumDataRecord(version, ksz, valueSz, key, value) != crc {
			return &CorruptedError{Path: df.path, Position: offset}
		}

		cont, err := visit(entry)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}

		offset += dataRecordHeaderSize + int64(ksz)
		if !tombstone {
			offset += int64(valueSz)
		}
	}
}

// buildIndex rebuilds the portion of kd owned by this datafile, preferring
// the sibling hint file when present and well formed, falling back to a
// full scan otherwise.
func (df *datafile) buildIndex(fs FileSystem, kd *keydir) error {
	hintPath := hintFilePath(df.dir, df.id)

	if info, err := fs.Stat(hintPath); err == nil && !info.IsDir() {
		if err := buildIndexFromHint(fs, hintPath, df.id, kd); err == nil {
			return nil
		}
		// Fall through to a full scan: the hint file is trusted without a
		// CRC, so any inconsistency (bad lengths, truncation) sends us back
		// to the authoritative datafile.
	}

	err := df.scan(func(e scanEntry) (bool, error) {
		if e.hasValue {
			kd.put(e.key, keydirEntry{
				fileID:   df.id,
				valueSz:  uint64(len(e.value)),
				valuePos: e.valuePos,
				version:  e.version,
			})
		} else {
			kd.delete(e.key)
		}
		return true, nil
	})

	// A corrupt or torn tail record stops recovery at that point rather
	// than failing Open outright: whatever came before it is still a
	// valid, consistent log prefix.
	if _, corrupt := err.(*CorruptedError); corrupt {
		return nil
	}

	return err
}

// reopen transitions the datafile between active (read-write) and
// immutable (read-only).
func (df *datafile) reopen(readOnly bool) error {
	return df.f.reopen(readOnly)
}

func (df *datafile) sync() error {
	return df.f.sync()
}

func (df *datafile) close() error {
	return df.f.close()
}

// remove deletes the datafile and its sibling hintfile, if any.
func (df *datafile) remove(fs FileSystem) error {
	if err := df.f.remove(); err != nil {
		return err
	}

	hintPath := hintFilePath(df.dir, df.id)
	if _, err := fs.Stat(hintPath); err == nil {
		if err := fs.Remove(hintPath); err != nil {
			return errors.Wrapf(err, "remove %s", hintPath)
		}
	}

	return nil
}
