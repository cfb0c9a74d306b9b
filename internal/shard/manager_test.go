package shard

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
	"shardstore/internal/superblock"
)

func newTestManagers(t *testing.T) (*pg.Manager, *Manager) {
	sel := chunkselector.New(4096, map[chunkselector.DeviceID]uint32{0: 16})
	replMgr := replication.NewFakeManager(t.TempDir(), zerolog.Nop())
	sb, err := superblock.NewFileStore(t.TempDir())
	require.NoError(t, err)

	pgMgr := pg.NewManager(4096, sel, replMgr, sb, zerolog.Nop())
	shardMgr := NewManager(pgMgr, sel, sb, zerolog.Nop())
	pgMgr.OnPGCreated(func(e *pg.Entry) {
		e.Device.AddListener(shardMgr)
	})

	require.Equal(t, pg.OK, pgMgr.CreatePG(context.Background(), codec.PGInfo{ID: 1, SizeBytes: 4 * 4096, ChunkSize: 4096}, nil))
	return pgMgr, shardMgr
}

func TestCreateShardAssignsIncreasingIDs(t *testing.T) {
	_, shardMgr := newTestManagers(t)

	id1, err := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, OK, err)
	id2, errr := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, OK, errr)

	require.Less(t, id1, id2)
	pgID1, _ := base.DecodeShardID(id1)
	pgID2, _ := base.DecodeShardID(id2)
	require.Equal(t, uint16(1), pgID1)
	require.Equal(t, uint16(1), pgID2)

	ids := shardMgr.ListShards(1)
	require.Equal(t, []uint64{id1, id2}, ids)
}

func TestSealShardTransitionsState(t *testing.T) {
	_, shardMgr := newTestManagers(t)

	id, errc := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, OK, errc)

	entry, ok := shardMgr.Get(id)
	require.True(t, ok)
	require.Equal(t, codec.ShardOpen, entry.snapshot().State)

	require.Equal(t, OK, shardMgr.SealShard(context.Background(), id))
	require.Equal(t, codec.ShardSealed, entry.snapshot().State)
}

func TestCreateShardCommitAdvancesPGShardSeqNum(t *testing.T) {
	pgMgr, shardMgr := newTestManagers(t)

	_, err1 := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, OK, err1)
	stats, statsErr := pgMgr.GetPGStats(1)
	require.Equal(t, pg.OK, statsErr)
	require.Equal(t, uint64(1), stats.ShardSequenceNum)

	_, err2 := shardMgr.CreateShard(context.Background(), 1, 1<<20)
	require.Equal(t, OK, err2)
	stats, statsErr = pgMgr.GetPGStats(1)
	require.Equal(t, pg.OK, statsErr)
	require.Equal(t, uint64(2), stats.ShardSequenceNum)
}

func TestCreateShardUnknownPG(t *testing.T) {
	_, shardMgr := newTestManagers(t)
	_, errc := shardMgr.CreateShard(context.Background(), 99, 1<<20)
	require.Equal(t, UnknownPG, errc)
}
