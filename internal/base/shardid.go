package base

// ShardID packs a 16-bit pg_id into the top bits and a 48-bit per-PG
// sequence number into the bottom bits, so pg_id is always recoverable
// from a shard_id alone without a side lookup.
const shardSeqBits = 48

func EncodeShardID(pgID uint16, seq uint64) uint64 {
	return uint64(pgID)<<shardSeqBits | (seq & (1<<shardSeqBits - 1))
}

func DecodeShardID(shardID uint64) (pgID uint16, seq uint64) {
	return uint16(shardID >> shardSeqBits), shardID & (1<<shardSeqBits - 1)
}
