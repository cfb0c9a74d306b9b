package recovery

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shardstore/internal/base"
	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/replication"
	"shardstore/internal/shard"
	"shardstore/internal/superblock"
)

func newIteratorTestManagers(t *testing.T) (*pg.Manager, *shard.Manager) {
	sel := chunkselector.New(4096, map[chunkselector.DeviceID]uint32{0: 64})
	replMgr := replication.NewFakeManager(t.TempDir(), zerolog.Nop())
	sb, err := superblock.NewFileStore(t.TempDir())
	require.NoError(t, err)

	pgMgr := pg.NewManager(4096, sel, replMgr, sb, zerolog.Nop())
	shardMgr := shard.NewManager(pgMgr, sel, sb, zerolog.Nop())
	pgMgr.OnPGCreated(func(e *pg.Entry) {
		e.Device.AddListener(shardMgr)
	})

	require.Equal(t, pg.OK, pgMgr.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 16 * 4096, ChunkSize: 4096}, nil))
	return pgMgr, shardMgr
}

func routeKey(shardID, blobID uint64) base.BlobRouteKey {
	return base.BlobRouteKey{ShardID: shardID, BlobID: blobID}
}

func oneBlockLoc(numBlocks uint32) base.MultiBlkId {
	return base.MultiBlkId{{ChunkID: 1, BlockOffset: 0, NumBlocks: numBlocks}}
}

func shardEntriesOf(t *testing.T, shardMgr *shard.Manager, pgID uint16) []shard.Entry {
	var entries []shard.Entry
	for _, id := range shardMgr.ListShards(pgID) {
		e, ok := shardMgr.Get(id)
		require.True(t, ok)
		entries = append(entries, e.Snapshot())
	}
	return entries
}

func TestPGBlobIteratorEmptyPGYieldsMetaOnlyBatch(t *testing.T) {
	pgMgr, shardMgr := newIteratorTestManagers(t)
	entry, ok := pgMgr.Get(1)
	require.True(t, ok)

	it := NewPGBlobIterator(entry, shardEntriesOf(t, shardMgr, 1), 1024, 1<<20, 512)

	batch, ok := it.Next()
	require.True(t, ok)
	require.NotNil(t, batch.Meta)
	require.Equal(t, uint16(1), batch.Meta.PGID)
	require.Empty(t, batch.ShardPreamble)
	require.Empty(t, batch.Blobs)
	require.Empty(t, batch.EndOfShard)

	require.True(t, it.Done())
	_, ok = it.Next()
	require.False(t, ok)
}

func TestPGBlobIteratorEmptyShardGetsPreambleAndEndOfShard(t *testing.T) {
	pgMgr, shardMgr := newIteratorTestManagers(t)
	entry, ok := pgMgr.Get(1)
	require.True(t, ok)

	shardID, sErr := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, shard.OK, sErr)

	it := NewPGBlobIterator(entry, shardEntriesOf(t, shardMgr, 1), 1024, 1<<20, 512)

	batch, ok := it.Next()
	require.True(t, ok)
	require.NotNil(t, batch.Meta)
	require.Len(t, batch.ShardPreamble, 1)
	require.Equal(t, shardID, batch.ShardPreamble[0].ID)
	require.Empty(t, batch.Blobs)
	require.Equal(t, []uint64{shardID}, batch.EndOfShard)
	require.True(t, it.Done())
}

func TestPGBlobIteratorMultiShardOrderingExcludesTombstones(t *testing.T) {
	pgMgr, shardMgr := newIteratorTestManagers(t)
	entry, ok := pgMgr.Get(1)
	require.True(t, ok)

	blobMgrShards := []uint64{}
	for i := 0; i < 2; i++ {
		shardID, sErr := shardMgr.CreateShard(context.Background(), 1, 1<<20)
		require.Equal(t, shard.OK, sErr)
		blobMgrShards = append(blobMgrShards, shardID)
	}

	// Insert directly via the index to avoid depending on the blob
	// package here; this exercises PGBlobIterator in isolation.
	for _, shardID := range blobMgrShards {
		key := routeKey(shardID, 1)
		entry.Index.Insert(key, oneBlockLoc(10))
		key2 := routeKey(shardID, 2)
		entry.Index.Insert(key2, oneBlockLoc(20))
		entry.Index.MoveToTombstone(key2)
	}

	it := NewPGBlobIterator(entry, shardEntriesOf(t, shardMgr, 1), 1024, 1<<20, 512)

	batch, ok := it.Next()
	require.True(t, ok)
	require.Len(t, batch.ShardPreamble, 2)
	require.Len(t, batch.Blobs, 2)
	require.Equal(t, blobMgrShards, batch.EndOfShard)
	for _, b := range batch.Blobs {
		require.Equal(t, uint64(1), b.BlobID)
	}
	require.True(t, it.Done())
}

func TestPGBlobIteratorSplitsAcrossBatchesOnMaxBlobs(t *testing.T) {
	pgMgr, shardMgr := newIteratorTestManagers(t)
	entry, ok := pgMgr.Get(1)
	require.True(t, ok)

	shardID, sErr := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, shard.OK, sErr)

	for i := uint64(1); i <= 3; i++ {
		entry.Index.Insert(routeKey(shardID, i), oneBlockLoc(10))
	}

	it := NewPGBlobIterator(entry, shardEntriesOf(t, shardMgr, 1), 1, 1<<20, 512)

	b1, ok := it.Next()
	require.True(t, ok)
	require.Len(t, b1.Blobs, 1)
	require.Empty(t, b1.EndOfShard)
	require.False(t, it.Done())

	b2, ok := it.Next()
	require.True(t, ok)
	require.Len(t, b2.Blobs, 1)
	require.Empty(t, b2.EndOfShard)
	require.Nil(t, b2.Meta)

	b3, ok := it.Next()
	require.True(t, ok)
	require.Len(t, b3.Blobs, 1)
	require.Equal(t, []uint64{shardID}, b3.EndOfShard)

	require.True(t, it.Done())
}

func TestPGBlobIteratorAdmitsOversizedBlobAlone(t *testing.T) {
	pgMgr, shardMgr := newIteratorTestManagers(t)
	entry, ok := pgMgr.Get(1)
	require.True(t, ok)

	shardID, sErr := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, shard.OK, sErr)

	entry.Index.Insert(routeKey(shardID, 1), oneBlockLoc(1<<20))

	it := NewPGBlobIterator(entry, shardEntriesOf(t, shardMgr, 1), 1024, 1, 512)

	batch, ok := it.Next()
	require.True(t, ok)
	require.Len(t, batch.Blobs, 1)
	require.True(t, it.Done())
}
