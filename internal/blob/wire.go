package blob

import (
	"encoding/binary"
	"fmt"

	"shardstore/internal/codec"
)

// putPayload is the PUT_BLOB_MSG log payload: routing and hashing
// metadata the commit handler needs before it can decode the BlobHeader
// out of the associated data write.
type putPayload struct {
	PGID          uint16
	ShardID       uint64
	BlobID        uint64
	HashAlgorithm codec.HashAlgorithm
	UserKeySize   uint32
	DataSize      uint32
}

const putPayloadSize = 2 + 8 + 8 + 1 + 4 + 4

func encodePutPayload(p putPayload) []byte {
	buf := make([]byte, putPayloadSize)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], p.PGID)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], p.ShardID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.BlobID)
	off += 8
	buf[off] = byte(p.HashAlgorithm)
	off += 1
	binary.LittleEndian.PutUint32(buf[off:], p.UserKeySize)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.DataSize)
	return buf
}

func decodePutPayload(buf []byte) (putPayload, error) {
	if len(buf) < putPayloadSize {
		return putPayload{}, fmt.Errorf("blob: short put_blob payload")
	}
	var p putPayload
	off := 0
	p.PGID = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.ShardID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	p.BlobID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	p.HashAlgorithm = codec.HashAlgorithm(buf[off])
	off += 1
	p.UserKeySize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	p.DataSize = binary.LittleEndian.Uint32(buf[off:])
	return p, nil
}

const delPayloadSize = 2 + 8 + 8

func encodeDelPayload(pgID uint16, shardID, blobID uint64) []byte {
	buf := make([]byte, delPayloadSize)
	binary.LittleEndian.PutUint16(buf[0:2], pgID)
	binary.LittleEndian.PutUint64(buf[2:10], shardID)
	binary.LittleEndian.PutUint64(buf[10:18], blobID)
	return buf
}

func decodeDelPayload(buf []byte) (pgID uint16, shardID, blobID uint64, err error) {
	if len(buf) < delPayloadSize {
		return 0, 0, 0, fmt.Errorf("blob: short del_blob payload")
	}
	pgID = binary.LittleEndian.Uint16(buf[0:2])
	shardID = binary.LittleEndian.Uint64(buf[2:10])
	blobID = binary.LittleEndian.Uint64(buf[10:18])
	return pgID, shardID, blobID, nil
}
