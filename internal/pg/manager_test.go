package pg

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/replication"
	"shardstore/internal/superblock"
)

func newTestManager(t *testing.T) *Manager {
	sel := chunkselector.New(4096, map[chunkselector.DeviceID]uint32{0: 16})
	replMgr := replication.NewFakeManager(t.TempDir(), zerolog.Nop())
	sb, err := superblock.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(4096, sel, replMgr, sb, zerolog.Nop())
}

func TestCreatePGIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	info := codec.PGInfo{ID: 1, SizeBytes: 4 * 4096, ChunkSize: 4096}

	require.Equal(t, OK, m.CreatePG(context.Background(), info, nil))

	e, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, uint16(1), e.ID)

	require.Equal(t, OK, m.CreatePG(context.Background(), info, nil))
}

func TestCreatePGRejectsZeroSize(t *testing.T) {
	m := newTestManager(t)
	info := codec.PGInfo{ID: 2, SizeBytes: 0, ChunkSize: 4096}
	require.Equal(t, InvalidArg, m.CreatePG(context.Background(), info, nil))
}

func TestCreatePGRejectsInsufficientSpace(t *testing.T) {
	m := newTestManager(t)
	info := codec.PGInfo{ID: 3, SizeBytes: 4096 * 1000, ChunkSize: 4096}
	require.Equal(t, NoSpaceLeft, m.CreatePG(context.Background(), info, nil))
}

func TestOnCreatePGCommitRejectsChunkSizeMismatch(t *testing.T) {
	m := newTestManager(t)
	body, err := codec.EncodePGInfo(codec.PGInfo{ID: 4, SizeBytes: 4096, ChunkSize: 8192})
	require.NoError(t, err)
	wire := codec.NewLogHeader(codec.CreatePGMsg, body).Encode(nil)
	wire = append(wire, body...)

	got := m.OnCreatePGCommit(context.Background(), nil, wire)
	require.Equal(t, Unknown, got)

	_, ok := m.Get(4)
	require.False(t, ok)
}

func TestGetPGStatsIncludesNumChunks(t *testing.T) {
	m := newTestManager(t)
	info := codec.PGInfo{ID: 6, SizeBytes: 4 * 4096, ChunkSize: 4096}
	require.Equal(t, OK, m.CreatePG(context.Background(), info, nil))

	stats, err := m.GetPGStats(6)
	require.Equal(t, OK, err)
	require.Equal(t, uint32(4), stats.NumChunks)
}

func TestPersistEntryRoundTripsShardSeqNum(t *testing.T) {
	m := newTestManager(t)
	info := codec.PGInfo{ID: 7, SizeBytes: 4 * 4096, ChunkSize: 4096}
	require.Equal(t, OK, m.CreatePG(context.Background(), info, nil))

	e, ok := m.Get(7)
	require.True(t, ok)
	require.Equal(t, uint64(1), e.IncShardSeq())
	require.NoError(t, m.PersistEntry(7))

	stats, err := m.GetPGStats(7)
	require.Equal(t, OK, err)
	require.Equal(t, uint64(1), stats.ShardSequenceNum)

	raw, found, sbErr := m.sb.Get("pg/7")
	require.NoError(t, sbErr)
	require.True(t, found)
	persisted, decErr := codec.DecodePGInfoSuperblock(raw)
	require.NoError(t, decErr)
	require.Equal(t, uint64(1), persisted.ShardSequenceNum)
}

func TestOnCreatePGCommitDetectsCorruption(t *testing.T) {
	m := newTestManager(t)
	body, err := codec.EncodePGInfo(codec.PGInfo{ID: 5, SizeBytes: 4096, ChunkSize: 4096})
	require.NoError(t, err)
	wire := codec.NewLogHeader(codec.CreatePGMsg, body).Encode(nil)
	wire = append(wire, body...)
	wire[len(wire)-1] ^= 0xFF

	got := m.OnCreatePGCommit(context.Background(), nil, wire)
	require.Equal(t, CRCMismatch, got)
}
