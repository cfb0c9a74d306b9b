package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/shard"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(context.Background(), t.TempDir(),
		WithLogger(zerolog.Nop()),
		WithDeviceTotals(map[chunkselector.DeviceID]uint32{0: 32}))
	require.NoError(t, err)
	return s
}

func TestCreatePGIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	info := codec.PGInfo{ID: 1, SizeBytes: 8 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}

	require.Equal(t, pg.OK, s.CreatePG(context.Background(), info, nil))
	require.Equal(t, pg.OK, s.CreatePG(context.Background(), info, nil))

	stats, err := s.GetPGStats(1)
	require.Equal(t, pg.OK, err)
	require.Equal(t, uint16(1), stats.ID)
}

func TestCreatePGRejectsInsufficientCapacity(t *testing.T) {
	s := openTestStore(t)
	info := codec.PGInfo{ID: 2, SizeBytes: 1000 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}
	require.Equal(t, pg.NoSpaceLeft, s.CreatePG(context.Background(), info, nil))
}

func TestShardCreateSealMonotonicIDs(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, pg.OK, s.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 8 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}, nil))

	id1, err1 := s.CreateShard(context.Background(), 1, s.cfg.ChunkSize)
	require.Equal(t, shard.OK, err1)
	id2, err2 := s.CreateShard(context.Background(), 1, s.cfg.ChunkSize)
	require.Equal(t, shard.OK, err2)
	require.Less(t, id1, id2)

	require.Equal(t, shard.OK, s.SealShard(context.Background(), id1))
	_, putErr := s.PutBlob(context.Background(), id1, nil, []byte("x"), codec.HashNone)
	require.NotEmpty(t, string(putErr))
}

func TestBlobRoundTripAndTombstoneSticks(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, pg.OK, s.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 8 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}, nil))
	shardID, sErr := s.CreateShard(context.Background(), 1, s.cfg.ChunkSize)
	require.Equal(t, shard.OK, sErr)

	blobID, putErr := s.PutBlob(context.Background(), shardID, []byte("key"), []byte("payload"), codec.HashCRC32)
	require.Empty(t, string(putErr))

	res, getErr := s.GetBlob(context.Background(), shardID, blobID, 0, 0)
	require.Empty(t, string(getErr))
	require.Equal(t, []byte("payload"), res.Data)

	require.Empty(t, string(s.DelBlob(context.Background(), shardID, blobID)))
	// A second delete of an already-tombstoned blob must stay a no-op.
	require.Empty(t, string(s.DelBlob(context.Background(), shardID, blobID)))

	_, getErr = s.GetBlob(context.Background(), shardID, blobID, 0, 0)
	require.NotEmpty(t, string(getErr))
}

func TestResyncIteratorCoversEveryLiveBlob(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, pg.OK, s.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 8 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}, nil))
	shardID, sErr := s.CreateShard(context.Background(), 1, s.cfg.ChunkSize)
	require.Equal(t, shard.OK, sErr)

	var live []uint64
	for i := 0; i < 3; i++ {
		id, putErr := s.PutBlob(context.Background(), shardID, nil, []byte("data"), codec.HashNone)
		require.Empty(t, string(putErr))
		live = append(live, id)
	}
	deadID, putErr := s.PutBlob(context.Background(), shardID, nil, []byte("gone"), codec.HashNone)
	require.Empty(t, string(putErr))
	require.Empty(t, string(s.DelBlob(context.Background(), shardID, deadID)))

	it, err := s.NewResyncIterator(1)
	require.NoError(t, err)

	var seen []uint64
	for !it.Done() {
		batch, ok := it.Next()
		require.True(t, ok)
		for _, b := range batch.Blobs {
			seen = append(seen, b.BlobID)
		}
	}
	require.ElementsMatch(t, live, seen)
}

func TestReopenRecoversPG(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, WithLogger(zerolog.Nop()), WithDeviceTotals(map[chunkselector.DeviceID]uint32{0: 32}))
	require.NoError(t, err)
	require.Equal(t, pg.OK, s.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 8 * s.cfg.ChunkSize, ChunkSize: s.cfg.ChunkSize}, nil))
	_, sErr := s.CreateShard(context.Background(), 1, s.cfg.ChunkSize)
	require.Equal(t, shard.OK, sErr)

	s2, err := Open(context.Background(), dir,
		WithLogger(zerolog.Nop()),
		WithDeviceTotals(map[chunkselector.DeviceID]uint32{0: 32}),
		WithReplicationManager(s.repl))
	require.NoError(t, err)

	stats, pErr := s2.GetPGStats(1)
	require.Equal(t, pg.OK, pErr)
	require.Equal(t, uint16(1), stats.ID)
	require.Len(t, s2.Shards.ListShards(1), 1)
}
