package bitcask

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// dataRecordHeaderSize is the fixed-size prefix of every data record:
// crc(4) + version(8) + ksz(4) + value_sz(8).
const dataRecordHeaderSize = 4 + 8 + 4 + 8

// hintRecordHeaderSize is the fixed-size prefix of every hint record:
// version(8) + value_sz(8) + value_pos(8) + ksz(4).
const hintRecordHeaderSize = 8 + 8 + 8 + 4

// dataRecord is the decoded form of one entry in a datafile's append-only
// log: crc | version | ksz | value_sz | key | value. A tombstone carries
// value_sz == tombstoneMarker and no value bytes.
type dataRecord struct {
	crc       uint32
	version   uint64
	key       []byte
	value     []byte // nil for a tombstone
	tombstone bool
}

// encodeDataRecord serializes a put (tombstone == false) or delete
// (tombstone == true) record, computing the CRC over bytes 4..end in their
// on-the-wire form, as dataRecordHeaderSize at offset 0 reserves room for it.
func encodeDataRecord(key, value []byte, version uint64, tombstone bool) []byte {
	valueSz := uint64(len(value))
	if tombstone {
		valueSz = tombstoneMarker
	}

	buf := make([]byte, dataRecordHeaderSize+len(key)+len(value))

	binary.BigEndian.PutUint64(buf[4:], version)
	binary.BigEndian.PutUint32(buf[12:], uint32(len(key)))
	binary.BigEndian.PutUint64(buf[16:], valueSz)
	copy(buf[24:], key)
	if !tombstone {
		copy(buf[24+len(key):], value)
	}

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.BigEndian.PutUint32(buf, crc)

	return buf
}

// decodeDataRecordHeader parses the fixed-size header. The caller is
// responsible for then reading ksz+value_sz more bytes (unless the record
// is a tombstone, in which case there are no value bytes to read).
func decodeDataRecordHeader(header []byte) (crc uint32, version uint64, ksz uint32, valueSz uint64) {
	crc = binary.BigEndian.Uint32(header)
	version = binary.BigEndian.Uint64(header[4:])
	ksz = binary.BigEndian.Uint32(header[12:])
	valueSz = binary.BigEndian.Uint64(header[16:])
	return
}

// checksumDataRecord recomputes the CRC over the header (bytes 4..24), key
// and value, matching the layout encodeDataRecord produced. It is used by
// scan to validate a record read back off disk.
func checksumDataRecord(version uint64, ksz uint32, valueSz uint64, key, value []byte) uint32 {
	h := crc32.NewIEEE()

	var tail [20]byte
	binary.BigEndian.PutUint64(tail[0:], version)
	binary.BigEndian.PutUint32(tail[8:], ksz)
	binary.BigEndian.PutUint64(tail[12:], valueSz)

	_, _ = h.Write(tail[:])
	_, _ = h.Write(key)
	_, _ = h.Write(value)

	return h.Sum32()
}

// hint is the decoded form of one hint record: the subset of a keydir entry
// recoverable without re-reading the value itself.
type hint struct {
	version  uint64
	valueSz  uint64
	valuePos int64
	key      []byte
}

func encodeHint(h hint) []byte {
	buf := make([]byte, hintRecordHeaderSize+len(h.key))

	binary.BigEndian.PutUint64(buf[0:], h.version)
	binary.BigEndian.PutUint64(buf[8:], h.valueSz)
	binary.BigEndian.PutUint64(buf[16:], uint64(h.valuePos))
	binary.BigEndian.PutUint32(buf[24:], uint32(len(h.key)))
	copy(buf[hintRecordHeaderSize:], h.key)

	return buf
}

func decodeHintHeader(header []byte) (version, valueSz uint64, valuePos int64, ksz uint32) {
	version = binary.BigEndian.Uint64(header[0:])
	valueSz = binary.BigEndian.Uint64(header[8:])
	valuePos = int64(binary.BigEndian.Uint64(header[16:]))
	ksz = binary.BigEndian.Uint32(header[24:])
	return
}

// isCleanEOF reports whether an error from file.readAt is a clean
// end-of-file (io.EOF: nothing at all left at the start of a record), as
// opposed to a partial read or any other failure, which the caller treats
// as corruption.
func isCleanEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
