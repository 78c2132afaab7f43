package bitcask

import (
	"github.com/pkg/errors"
)

// hintWriter appends hint records to a hint file during merge. It carries
// no CRC: a hint file is trusted as-is during recovery, and falls back to
// the sibling datafile scan whenever it looks inconsistent.
type hintWriter struct {
	f *file
}

func createHintWriter(fs FileSystem, dir string, fileID uint64) (*hintWriter, error) {
	f, err := openFile(fs, hintFilePath(dir, fileID), false)
	if err != nil {
		return nil, err
	}
	return &hintWriter{f: f}, nil
}

func (hw *hintWriter) put(h hint) error {
	_, err := hw.f.append(encodeHint(h))
	return err
}

func (hw *hintWriter) close() error {
	if err := hw.f.sync(); err != nil {
		return err
	}
	return hw.f.close()
}

// buildIndexFromHint reads a hint file sequentially and installs the
// entries it describes into kd under fileID, the id of the sibling
// datafile. It returns an error if the file's size does not add up with
// the entry lengths it claims, signalling to the caller that it should
// fall back to scanning the datafile instead.
func buildIndexFromHint(fs FileSystem, path string, fileID uint64, kd *keydir) error {
	f, err := openFile(fs, path, true)
	if err != nil {
		return err
	}
	defer func() { _ = f.close() }()

	size, err := f.size()
	if err != nil {
		return err
	}

	var offset int64
	header := make([]byte, hintRecordHeaderSize)

	for offset < size {
		if err := f.readAt(header, offset); err != nil {
			return errors.Wrapf(err, "read hint header in %s at %d", path, offset)
		}

		version, valueSz, valuePos, ksz := decodeHintHeader(header)

		key := make([]byte, ksz)
		if ksz > 0 {
			if err := f.readAt(key, offset+hintRecordHeaderSize); err != nil {
				return errors.Wrapf(err, "read hint key in %s at %d", path, offset)
			}
		}

		kd.put(key, keydirEntry{
			fileID:   fileID,
			valueSz:  valueSz,
			valuePos: valuePos,
			version:  version,
		})

		offset += hintRecordHeaderSize + int64(ksz)
	}

	if offset != size {
		return errors.Errorf("hint file %s has trailing garbage", path)
	}

	return nil
}
