package codec

import (
	"encoding/binary"
	"errors"
)

// ShardState is a shard's lifecycle state. OPEN -> SEALED -> DELETED;
// OPEN -> DELETED directly is disallowed (spec section 4.4).
type ShardState uint8

const (
	ShardOpen    ShardState = 1
	ShardSealed  ShardState = 2
	ShardDeleted ShardState = 3
)

// ShardInfo is the logical shard record embedded in ShardInfoSuperblock.
type ShardInfo struct {
	ID               uint64
	PGID             uint16
	State            ShardState
	CreatedTime      int64
	LastModifiedTime int64
	TotalCapacityMB  uint64
	UsedCapacityMB   uint64
	DeletedCapacityMB uint64
}

const shardInfoSize = 8 + 2 + 1 + 8 + 8 + 8 + 8 + 8

func encodeShardInfo(buf []byte, si ShardInfo) []byte {
	var tmp [shardInfoSize]byte
	off := 0
	binary.LittleEndian.PutUint64(tmp[off:], si.ID)
	off += 8
	binary.LittleEndian.PutUint16(tmp[off:], si.PGID)
	off += 2
	tmp[off] = byte(si.State)
	off += 1
	binary.LittleEndian.PutUint64(tmp[off:], uint64(si.CreatedTime))
	off += 8
	binary.LittleEndian.PutUint64(tmp[off:], uint64(si.LastModifiedTime))
	off += 8
	binary.LittleEndian.PutUint64(tmp[off:], si.TotalCapacityMB)
	off += 8
	binary.LittleEndian.PutUint64(tmp[off:], si.UsedCapacityMB)
	off += 8
	binary.LittleEndian.PutUint64(tmp[off:], si.DeletedCapacityMB)
	return append(buf, tmp[:]...)
}

func decodeShardInfo(buf []byte) ShardInfo {
	var si ShardInfo
	off := 0
	si.ID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	si.PGID = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	si.State = ShardState(buf[off])
	off += 1
	si.CreatedTime = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	si.LastModifiedTime = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	si.TotalCapacityMB = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	si.UsedCapacityMB = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	si.DeletedCapacityMB = binary.LittleEndian.Uint64(buf[off:])
	return si
}

// ShardInfoSuperblock is the durable per-shard record: DataHeader |
// ShardInfo | p_chunk_id | v_chunk_id.
type ShardInfoSuperblock struct {
	Info      ShardInfo
	PChunkID  uint16
	VChunkID  uint16
}

const shardSuperblockTrailerSize = 2 + 2

func (sb ShardInfoSuperblock) Encode() []byte {
	buf := NewDataHeader(RecordTypeShardInfo).Encode(nil)
	buf = encodeShardInfo(buf, sb.Info)
	var tail [shardSuperblockTrailerSize]byte
	binary.LittleEndian.PutUint16(tail[0:2], sb.PChunkID)
	binary.LittleEndian.PutUint16(tail[2:4], sb.VChunkID)
	return append(buf, tail[:]...)
}

func DecodeShardInfoSuperblock(buf []byte) (ShardInfoSuperblock, error) {
	if _, err := DecodeDataHeader(buf); err != nil {
		return ShardInfoSuperblock{}, err
	}
	buf = buf[HeaderSize:]
	if len(buf) < shardInfoSize+shardSuperblockTrailerSize {
		return ShardInfoSuperblock{}, errors.New("codec: short buffer for ShardInfoSuperblock")
	}
	sb := ShardInfoSuperblock{Info: decodeShardInfo(buf[:shardInfoSize])}
	tail := buf[shardInfoSize:]
	sb.PChunkID = binary.LittleEndian.Uint16(tail[0:2])
	sb.VChunkID = binary.LittleEndian.Uint16(tail[2:4])
	return sb, nil
}
