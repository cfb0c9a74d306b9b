package base

import "encoding/binary"

// RouteKeySize is the encoded length of a BlobRouteKey.
const RouteKeySize = 16

// BlobRouteKey is the index key addressing one blob: its owning shard and
// its per-PG blob id. It is encoded as a fixed 16-byte value so it can be
// used directly as a skiplist logical key.
type BlobRouteKey struct {
	ShardID uint64
	BlobID  uint64
}

// Encode writes the route key as two big-endian uint64s, shard_id then
// blob_id. Big-endian (unlike the little-endian on-disk record formats in
// package codec) is deliberate here: byte-lexicographic comparison of the
// encoded key must agree with numeric (shard_id, blob_id) order, since the
// index is iterated in ascending shard/blob order by the snapshot streamer.
func (k BlobRouteKey) Encode() []byte {
	buf := make([]byte, RouteKeySize)
	binary.BigEndian.PutUint64(buf[0:8], k.ShardID)
	binary.BigEndian.PutUint64(buf[8:16], k.BlobID)
	return buf
}

// DecodeBlobRouteKey parses the wire form produced by Encode.
func DecodeBlobRouteKey(buf []byte) BlobRouteKey {
	return BlobRouteKey{
		ShardID: binary.BigEndian.Uint64(buf[0:8]),
		BlobID:  binary.BigEndian.Uint64(buf[8:16]),
	}
}

// BlkExtent is one contiguous run of blocks within a chunk. Chunk id 0 is
// reserved (mirrors the arena's offset-0-is-nil convention), so the
// all-zero extent doubles as part of the tombstone sentinel.
type BlkExtent struct {
	ChunkID     uint16
	BlockOffset uint32
	NumBlocks   uint32
}

// BlkExtentSize is the encoded length of one BlkExtent.
const BlkExtentSize = 2 + 4 + 4

// MultiBlkId is the ordered list of block extents holding one blob's
// on-disk payload. A single extent of the zero value is the tombstone
// sentinel described in spec section 3.
type MultiBlkId []BlkExtent

// Tombstone is the sentinel MultiBlkId value that marks a blob as
// logically deleted. The index entry itself is the liveness bit; there is
// no separate boolean column.
func Tombstone() MultiBlkId {
	return MultiBlkId{{ChunkID: 0, BlockOffset: 0, NumBlocks: 0}}
}

// IsTombstone reports whether m is the tombstone sentinel.
func (m MultiBlkId) IsTombstone() bool {
	return len(m) == 1 && m[0] == BlkExtent{}
}

// Encode serializes the extent list: a uint16 count followed by that many
// fixed-size extents, little-endian, no padding.
func (m MultiBlkId) Encode() []byte {
	buf := make([]byte, 2+len(m)*BlkExtentSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m)))
	off := 2
	for _, e := range m {
		binary.LittleEndian.PutUint16(buf[off:off+2], e.ChunkID)
		binary.LittleEndian.PutUint32(buf[off+2:off+6], e.BlockOffset)
		binary.LittleEndian.PutUint32(buf[off+6:off+10], e.NumBlocks)
		off += BlkExtentSize
	}
	return buf
}

// EncodedLen returns the byte length Encode would produce for n extents.
func EncodedLen(n int) int { return 2 + n*BlkExtentSize }

// DecodeMultiBlkId parses the wire form produced by Encode.
func DecodeMultiBlkId(buf []byte) MultiBlkId {
	if len(buf) < 2 {
		return nil
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	m := make(MultiBlkId, n)
	off := 2
	for i := 0; i < n; i++ {
		m[i] = BlkExtent{
			ChunkID:     binary.LittleEndian.Uint16(buf[off : off+2]),
			BlockOffset: binary.LittleEndian.Uint32(buf[off+2 : off+6]),
			NumBlocks:   binary.LittleEndian.Uint32(buf[off+6 : off+10]),
		}
		off += BlkExtentSize
	}
	return m
}

// NumBlocks returns the total number of blocks covered by all extents.
func (m MultiBlkId) NumBlocks() uint32 {
	var n uint32
	for _, e := range m {
		n += e.NumBlocks
	}
	return n
}
