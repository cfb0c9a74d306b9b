package index

import (
	"testing"

	"github.com/stretchr/testify/require"
	"shardstore/internal/base"
)

func rk(shard, blob uint64) base.BlobRouteKey {
	return base.BlobRouteKey{ShardID: shard, BlobID: blob}
}

func TestInsertGetRoundTrip(t *testing.T) {
	tbl := New(1 << 16)
	loc := base.MultiBlkId{{ChunkID: 3, BlockOffset: 10, NumBlocks: 2}}
	require.NoError(t, tbl.Insert(rk(1, 1), loc))

	got, ok := tbl.Get(rk(1, 1))
	require.True(t, ok)
	require.Equal(t, loc, got)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	tbl := New(1 << 16)
	loc := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 1}}
	require.NoError(t, tbl.Insert(rk(1, 1), loc))
	err := tbl.Insert(rk(1, 1), loc)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMoveToTombstoneHidesEntry(t *testing.T) {
	tbl := New(1 << 16)
	loc := base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: 1}}
	require.NoError(t, tbl.Insert(rk(2, 5), loc))

	require.NoError(t, tbl.MoveToTombstone(rk(2, 5)))

	_, ok := tbl.Get(rk(2, 5))
	require.False(t, ok)

	raw, ok := tbl.Lookup(rk(2, 5))
	require.True(t, ok)
	require.True(t, raw.IsTombstone())
}

func TestMoveToTombstoneMultiExtent(t *testing.T) {
	tbl := New(1 << 16)
	loc := base.MultiBlkId{
		{ChunkID: 1, BlockOffset: 0, NumBlocks: 1},
		{ChunkID: 2, BlockOffset: 4, NumBlocks: 1},
	}
	require.NoError(t, tbl.Insert(rk(3, 1), loc))
	require.NoError(t, tbl.MoveToTombstone(rk(3, 1)))

	raw, ok := tbl.Lookup(rk(3, 1))
	require.True(t, ok)
	require.True(t, raw.IsTombstone())
}

func TestMoveToTombstoneMissingKey(t *testing.T) {
	tbl := New(1 << 16)
	err := tbl.MoveToTombstone(rk(9, 9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAscendOrdersByShardThenBlob(t *testing.T) {
	tbl := New(1 << 16)
	require.NoError(t, tbl.Insert(rk(1, 2), base.MultiBlkId{{ChunkID: 1, NumBlocks: 1}}))
	require.NoError(t, tbl.Insert(rk(1, 1), base.MultiBlkId{{ChunkID: 1, NumBlocks: 1}}))
	require.NoError(t, tbl.Insert(rk(2, 1), base.MultiBlkId{{ChunkID: 1, NumBlocks: 1}}))

	var seen []base.BlobRouteKey
	tbl.Ascend(func(key base.BlobRouteKey, loc base.MultiBlkId) bool {
		seen = append(seen, key)
		return true
	})

	require.Equal(t, []base.BlobRouteKey{rk(1, 1), rk(1, 2), rk(2, 1)}, seen)
}
