package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	dataFilePrefix = "bitcask-"
	dataFileExt    = ".data"
	hintFileExt    = ".data.hint"
	lockFileName   = "LOCK"
	fileIDNibbles  = 16
)

var dataFileNameRE = regexp.MustCompile(`^bitcask-[0-9a-f]{16}\.data$`)

// dataFilename returns the basename of the datafile for fileID, e.g.
// "bitcask-0000000000000001.data".
func dataFilename(fileID uint64) string {
	return fmt.Sprintf("%s%0*x%s", dataFilePrefix, fileIDNibbles, fileID, dataFileExt)
}

// hintFilename returns the basename of the hintfile sibling to fileID's
// datafile.
func hintFilename(fileID uint64) string {
	return fmt.Sprintf("%s%0*x%s", dataFilePrefix, fileIDNibbles, fileID, hintFileExt)
}

func dataFilePath(dir string, fileID uint64) string {
	return filepath.Join(dir, dataFilename(fileID))
}

func hintFilePath(dir string, fileID uint64) string {
	return filepath.Join(dir, hintFilename(fileID))
}

func lockFilePath(dir string) string {
	return filepath.Join(dir, lockFileName)
}

// fileIDFromDataFilename parses the file id out of a datafile basename. It
// rejects anything that does not match the bitcask-<16 hex>.data pattern,
// since alphabetic ASCII ordering of that pattern matches numeric id order
// exactly (that's the whole point of the fixed-width zero-padded hex).
func fileIDFromDataFilename(name string) (uint64, error) {
	base := filepath.Base(name)
	if !dataFileNameRE.MatchString(base) {
		return 0, errors.Errorf("%q is not a valid datafile name", base)
	}

	hex := strings.TrimSuffix(strings.TrimPrefix(base, dataFilePrefix), dataFileExt)
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse file id from %q", base)
	}

	return id, nil
}

// listDataFileIDs lists every datafile in dir and returns their ids sorted
// in ascending order. Listing the directory in ASCII order already yields
// id order, but we sort explicitly since afero.ReadDir's ordering is not
// contractually guaranteed across every Fs implementation.
func listDataFileIDs(fs FileSystem, dir string) ([]uint64, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Wrap(err, "read store directory")
	}

	ids := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !dataFileNameRE.MatchString(entry.Name()) {
			continue
		}

		id, err := fileIDFromDataFilename(entry.Name())
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// ensureDir creates dir (and its parents) if it does not already exist, and
// fails with ErrNotADirectory if the path exists but names something else.
func ensureDir(fs FileSystem, dir string) error {
	info, err := fs.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return ErrNotADirectory
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat store directory")
	}

	return fs.MkdirAll(dir, 0o755)
}
