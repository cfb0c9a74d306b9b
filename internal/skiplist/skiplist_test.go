package skiplist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shardstore/internal/base"
	"shardstore/internal/compare"
)

func key(shard, blob uint64) base.InternalKey {
	rk := base.BlobRouteKey{ShardID: shard, BlobID: blob}
	return base.MakeInternalKey(rk.Encode())
}

func TestAddGetRoundTrip(t *testing.T) {
	skl := New(64*1024, compare.Bytes)

	blk := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 2}}
	require.NoError(t, skl.Add(key(1, 1), blk.Encode()))

	val, ok := skl.Get(key(1, 1))
	require.True(t, ok)
	require.Equal(t, blk, base.DecodeMultiBlkId(val))

	_, ok = skl.Get(key(1, 2))
	require.False(t, ok)
}

func TestAddRejectsDuplicateKey(t *testing.T) {
	skl := New(64*1024, compare.Bytes)

	blk := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 1}}
	require.NoError(t, skl.Add(key(1, 1), blk.Encode()))
	require.ErrorIs(t, skl.Add(key(1, 1), blk.Encode()), ErrRecordExists)
}

func TestSetValueTombstonesInPlace(t *testing.T) {
	skl := New(64*1024, compare.Bytes)

	blk := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 1}}
	require.NoError(t, skl.Add(key(1, 1), blk.Encode()))

	require.True(t, skl.SetValue(key(1, 1), base.Tombstone().Encode()))

	val, ok := skl.Get(key(1, 1))
	require.True(t, ok)
	require.True(t, base.DecodeMultiBlkId(val).IsTombstone())
}

func TestAscendOrdersByShardThenBlob(t *testing.T) {
	skl := New(64*1024, compare.Bytes)

	blk := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 1}}
	require.NoError(t, skl.Add(key(2, 5), blk.Encode()))
	require.NoError(t, skl.Add(key(1, 9), blk.Encode()))
	require.NoError(t, skl.Add(key(1, 3), blk.Encode()))

	var seen []base.BlobRouteKey
	skl.Ascend(func(k base.InternalKey, _ []byte) bool {
		seen = append(seen, base.DecodeBlobRouteKey(k.LogicalKey))
		return true
	})

	require.Equal(t, []base.BlobRouteKey{
		{ShardID: 1, BlobID: 3},
		{ShardID: 1, BlobID: 9},
		{ShardID: 2, BlobID: 5},
	}, seen)
}
