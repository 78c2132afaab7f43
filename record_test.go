package bitcask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDataRecordRoundTrip(t *testing.T) {
	key := []byte("some-key")
	value := []byte("some-value")

	buf := encodeDataRecord(key, value, 42, false)
	require.Len(t, buf, dataRecordHeaderSize+len(key)+len(value))

	crc, version, ksz, valueSz := decodeDataRecordHeader(buf)
	assert.Equal(t, uint64(42), version)
	assert.Equal(t, uint32(len(key)), ksz)
	assert.Equal(t, uint64(len(value)), valueSz)
	assert.Equal(t, crc, checksumDataRecord(version, ksz, valueSz, key, value))
}

func TestEncodeTombstoneUsesReservedMarker(t *testing.T) {
	buf := encodeDataRecord([]byte("k"), nil, 7, true)

	_, _, _, valueSz := decodeDataRecordHeader(buf)
	assert.Equal(t, uint64(tombstoneMarker), valueSz)
}

func TestChecksumDetectsSingleByteMutation(t *testing.T) {
	key := []byte("k")
	value := []byte("v")
	buf := encodeDataRecord(key, value, 1, false)

	crc, version, ksz, valueSz := decodeDataRecordHeader(buf)
	assert.Equal(t, crc, checksumDataRecord(version, ksz, valueSz, key, value))

	mutated := append([]byte(nil), value...)
	mutated[0] ^= 0xff

	assert.NotEqual(t, crc, checksumDataRecord(version, ksz, valueSz, key, mutated))
}

func TestEncodeDecodeHintRoundTrip(t *testing.T) {
	h := hint{version: 3, valueSz: 10, valuePos: 128, key: []byte("abc")}

	buf := encodeHint(h)
	require.Len(t, buf, hintRecordHeaderSize+len(h.key))

	version, valueSz, valuePos, ksz := decodeHintHeader(buf)
	assert.Equal(t, h.version, version)
	assert.Equal(t, h.valueSz, valueSz)
	assert.Equal(t, h.valuePos, valuePos)
	assert.Equal(t, uint32(len(h.key)), ksz)
}
