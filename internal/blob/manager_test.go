package blob

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/replication"
	"shardstore/internal/shard"
	"shardstore/internal/superblock"
)

func newTestManagers(t *testing.T) (*pg.Manager, *shard.Manager, *Manager) {
	sel := chunkselector.New(4096, map[chunkselector.DeviceID]uint32{0: 16})
	replMgr := replication.NewFakeManager(t.TempDir(), zerolog.Nop())
	sb, err := superblock.NewFileStore(t.TempDir())
	require.NoError(t, err)

	pgMgr := pg.NewManager(4096, sel, replMgr, sb, zerolog.Nop())
	shardMgr := shard.NewManager(pgMgr, sel, sb, zerolog.Nop())
	blobMgr := NewManager(pgMgr, shardMgr, zerolog.Nop())
	pgMgr.OnPGCreated(func(e *pg.Entry) {
		e.Device.AddListener(shardMgr)
		e.Device.AddListener(blobMgr)
	})

	require.Equal(t, pg.OK, pgMgr.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 4 * 4096, ChunkSize: 4096}, nil))
	return pgMgr, shardMgr, blobMgr
}

func openShard(t *testing.T, shardMgr *shard.Manager) uint64 {
	id, err := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, shard.OK, err)
	return id
}

func TestPutGetBlobRoundTrip(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)

	blobID, err := blobMgr.PutBlob(context.Background(), shardID, []byte("user-key"), []byte("hello world"), codec.HashCRC32)
	require.Equal(t, OK, err)
	require.Equal(t, uint64(1), blobID)

	res, getErr := blobMgr.GetBlob(context.Background(), shardID, blobID, 0, 0)
	require.Equal(t, OK, getErr)
	require.Equal(t, []byte("hello world"), res.Data)
}

func TestPutBlobAssignsIncreasingIDs(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)

	id1, err1 := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("a"), codec.HashNone)
	id2, err2 := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("b"), codec.HashNone)
	require.Equal(t, OK, err1)
	require.Equal(t, OK, err2)
	require.Less(t, id1, id2)
}

func TestPutBlobRejectsSealedShard(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)
	require.Equal(t, shard.OK, shardMgr.SealShard(context.Background(), shardID))

	_, err := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("data"), codec.HashNone)
	require.Equal(t, SealedShard, err)
}

func TestGetBlobAfterDeleteIsUnknown(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)

	blobID, err := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("gone soon"), codec.HashNone)
	require.Equal(t, OK, err)

	require.Equal(t, OK, blobMgr.DelBlob(context.Background(), shardID, blobID))

	_, getErr := blobMgr.GetBlob(context.Background(), shardID, blobID, 0, 0)
	require.Equal(t, UnknownBlob, getErr)
}

func TestDelBlobIsIdempotent(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)

	blobID, err := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("data"), codec.HashNone)
	require.Equal(t, OK, err)

	require.Equal(t, OK, blobMgr.DelBlob(context.Background(), shardID, blobID))
	require.Equal(t, OK, blobMgr.DelBlob(context.Background(), shardID, blobID))
}

func TestGetBlobRespectsOffsetAndLength(t *testing.T) {
	_, shardMgr, blobMgr := newTestManagers(t)
	shardID := openShard(t, shardMgr)

	blobID, err := blobMgr.PutBlob(context.Background(), shardID, nil, []byte("0123456789"), codec.HashCRC32)
	require.Equal(t, OK, err)

	res, getErr := blobMgr.GetBlob(context.Background(), shardID, blobID, 3, 4)
	require.Equal(t, OK, getErr)
	require.Equal(t, []byte("3456"), res.Data)
}

func TestGetBlobUnknownShardIsUnknownBlob(t *testing.T) {
	_, _, blobMgr := newTestManagers(t)
	_, err := blobMgr.GetBlob(context.Background(), 999, 1, 0, 0)
	require.Equal(t, UnknownBlob, err)
}
