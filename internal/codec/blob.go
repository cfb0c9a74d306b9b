package codec

import (
	"encoding/binary"
	"errors"
)

// HashAlgorithm is the digest algorithm covering a blob's data followed by
// its user key. Stdlib crypto/md5, crypto/sha1, and hash/crc32 cover the
// named algorithms directly; no third-party hash library in the
// retrieval pack implements an alternative CRC32/MD5/SHA1.
type HashAlgorithm uint8

const (
	HashNone  HashAlgorithm = 0
	HashCRC32 HashAlgorithm = 1
	HashMD5   HashAlgorithm = 2
	HashSHA1  HashAlgorithm = 3
)

// HashSize is the fixed width of the BlobHeader hash field, wide enough
// for any supported digest (SHA1 at 20 bytes is the widest); shorter
// digests are zero-padded.
const HashSize = 32

// BlobHeader precedes every blob's payload on disk: DataHeader, then hash
// metadata, then the routing and layout fields needed to validate and
// locate the payload without consulting the index.
type BlobHeader struct {
	HashAlgorithm HashAlgorithm
	Hash          [HashSize]byte
	ShardID       uint64
	BlobID        uint64
	BlobSize      uint32
	ObjectOffset  uint64
	DataOffset    uint32
	UserKeySize   uint32
}

const blobHeaderBodySize = 1 + HashSize + 8 + 8 + 4 + 8 + 4 + 4

// BlobHeaderSize is the total encoded length of a BlobHeader, including
// its DataHeader.
const BlobHeaderSize = HeaderSize + blobHeaderBodySize

func (h BlobHeader) Encode() []byte {
	buf := NewDataHeader(RecordTypeBlobInfo).Encode(nil)
	var tmp [blobHeaderBodySize]byte
	off := 0
	tmp[off] = byte(h.HashAlgorithm)
	off += 1
	copy(tmp[off:off+HashSize], h.Hash[:])
	off += HashSize
	binary.LittleEndian.PutUint64(tmp[off:], h.ShardID)
	off += 8
	binary.LittleEndian.PutUint64(tmp[off:], h.BlobID)
	off += 8
	binary.LittleEndian.PutUint32(tmp[off:], h.BlobSize)
	off += 4
	binary.LittleEndian.PutUint64(tmp[off:], h.ObjectOffset)
	off += 8
	binary.LittleEndian.PutUint32(tmp[off:], h.DataOffset)
	off += 4
	binary.LittleEndian.PutUint32(tmp[off:], h.UserKeySize)
	return append(buf, tmp[:]...)
}

func DecodeBlobHeader(buf []byte) (BlobHeader, error) {
	if _, err := DecodeDataHeader(buf); err != nil {
		return BlobHeader{}, err
	}
	buf = buf[HeaderSize:]
	if len(buf) < blobHeaderBodySize {
		return BlobHeader{}, errors.New("codec: short buffer for BlobHeader")
	}
	var h BlobHeader
	off := 0
	h.HashAlgorithm = HashAlgorithm(buf[off])
	off += 1
	copy(h.Hash[:], buf[off:off+HashSize])
	off += HashSize
	h.ShardID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.BlobID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.BlobSize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.ObjectOffset = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.DataOffset = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.UserKeySize = binary.LittleEndian.Uint32(buf[off:])
	return h, nil
}

// ComputeHash hashes data followed by userKey with algo.
func ComputeHash(algo HashAlgorithm, data, userKey []byte) ([HashSize]byte, error) {
	var out [HashSize]byte
	digest, err := hashBytes(algo, data, userKey)
	if err != nil {
		return out, err
	}
	copy(out[:], digest)
	return out, nil
}
