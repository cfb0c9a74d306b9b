package shard

import (
	"encoding/binary"
	"fmt"
)

const createShardPayloadSize = 2 + 8 + 2 + 8

func encodeCreateShardPayload(p createShardPayload) []byte {
	buf := make([]byte, createShardPayloadSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.PGID)
	binary.LittleEndian.PutUint64(buf[2:10], p.ShardID)
	binary.LittleEndian.PutUint16(buf[10:12], p.VChunkID)
	binary.LittleEndian.PutUint64(buf[12:20], p.SizeBytes)
	return buf
}

func decodeCreateShardPayload(buf []byte) (createShardPayload, error) {
	if len(buf) < createShardPayloadSize {
		return createShardPayload{}, fmt.Errorf("shard: short create_shard payload")
	}
	return createShardPayload{
		PGID:      binary.LittleEndian.Uint16(buf[0:2]),
		ShardID:   binary.LittleEndian.Uint64(buf[2:10]),
		VChunkID:  binary.LittleEndian.Uint16(buf[10:12]),
		SizeBytes: binary.LittleEndian.Uint64(buf[12:20]),
	}, nil
}

func encodeSealShardPayload(shardID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, shardID)
	return buf
}

func decodeSealShardPayload(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, fmt.Errorf("shard: short seal_shard payload")
	}
	return binary.LittleEndian.Uint64(buf[:8]), nil
}
