// Package codec implements the on-disk record layouts shared across the
// store: the common DataHeader, the PG/shard superblocks, and the blob
// header. All multibyte fields are little-endian and structures are
// packed — every field is serialized explicitly field-by-field so there
// are never implicit alignment gaps, mirroring the way the skiplist node
// computes explicit byte offsets instead of relying on struct layout.
package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Magic is the fixed magic value every DataHeader must carry.
const Magic uint64 = 0x21FDFFDBA8D68FC6

// CurrentVersion is the highest DataHeader version this codec can read.
const CurrentVersion uint32 = 1

// RecordType identifies which on-disk record a DataHeader precedes.
type RecordType uint8

const (
	RecordTypePGInfo    RecordType = 0
	RecordTypeShardInfo RecordType = 1
	RecordTypeBlobInfo  RecordType = 2
)

// HeaderSize is the encoded length of a DataHeader.
const HeaderSize = 16

// DataHeader is the 16-byte header shared by every on-disk record.
type DataHeader struct {
	Magic   uint64
	Version uint32
	Type    RecordType
}

var (
	ErrBadMagic       = errors.New("codec: bad magic")
	ErrUnknownVersion = errors.New("codec: record version newer than supported")
)

// NewDataHeader builds a header for the given record type at the current
// version.
func NewDataHeader(t RecordType) DataHeader {
	return DataHeader{Magic: Magic, Version: CurrentVersion, Type: t}
}

// Encode appends the header's wire bytes to buf and returns the result.
func (h DataHeader) Encode(buf []byte) []byte {
	var tmp [HeaderSize]byte
	binary.LittleEndian.PutUint64(tmp[0:8], h.Magic)
	binary.LittleEndian.PutUint32(tmp[8:12], h.Version)
	tmp[12] = byte(h.Type)
	// tmp[13:16] reserved, left zero.
	return append(buf, tmp[:]...)
}

// DecodeDataHeader parses a header from the front of buf and returns it;
// the header always occupies HeaderSize bytes. It validates magic and
// version; a mismatch here is a structural fault (corruption), not a
// recoverable condition.
func DecodeDataHeader(buf []byte) (DataHeader, error) {
	if len(buf) < HeaderSize {
		return DataHeader{}, errors.New("codec: short buffer for DataHeader")
	}
	h := DataHeader{
		Magic:   binary.LittleEndian.Uint64(buf[0:8]),
		Version: binary.LittleEndian.Uint32(buf[8:12]),
		Type:    RecordType(buf[12]),
	}
	if h.Magic != Magic {
		return DataHeader{}, ErrBadMagic
	}
	if h.Version > CurrentVersion {
		return DataHeader{}, ErrUnknownVersion
	}
	return h, nil
}

// CRC32 computes the CRC32-IEEE checksum used for payload_crc throughout
// the wire and on-disk formats.
func CRC32(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
