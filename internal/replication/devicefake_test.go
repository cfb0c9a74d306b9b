package replication

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	preCommitErr error
	committed    [][]byte
	rolledBack   [][]byte
}

func (l *recordingListener) PreCommit(ctx context.Context, msgType uint8, payload []byte) error {
	return l.preCommitErr
}

func (l *recordingListener) Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *BlkID) {
	l.committed = append(l.committed, payload)
}

func (l *recordingListener) Rollback(ctx context.Context, msgType uint8, payload []byte) {
	l.rolledBack = append(l.rolledBack, payload)
}

func TestProposeCommitsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	mgr := NewFakeManager(dir, zerolog.Nop())
	group := uuid.New()
	dev, err := mgr.CreateReplDev(context.Background(), group, []Member{{ID: uuid.New()}})
	require.NoError(t, err)

	l := &recordingListener{}
	dev.AddListener(l)

	require.NoError(t, dev.Propose(context.Background(), 1, []byte("payload")))
	require.Len(t, l.committed, 1)
	require.Empty(t, l.rolledBack)
	require.Equal(t, uint64(1), dev.GetReplicationStatus().CommittedLSN)
}

func TestProposeRollsBackOnPreCommitVeto(t *testing.T) {
	dir := t.TempDir()
	mgr := NewFakeManager(dir, zerolog.Nop())
	group := uuid.New()
	dev, err := mgr.CreateReplDev(context.Background(), group, nil)
	require.NoError(t, err)

	l := &recordingListener{preCommitErr: errors.New("veto")}
	dev.AddListener(l)

	err = dev.Propose(context.Background(), 1, []byte("payload"))
	require.Error(t, err)
	require.Empty(t, l.committed)
	require.Len(t, l.rolledBack, 1)
	require.Equal(t, uint64(0), dev.GetReplicationStatus().CommittedLSN)
}

func TestAsyncAllocWriteReturnsIncreasingExtents(t *testing.T) {
	dir := t.TempDir()
	mgr := NewFakeManager(dir, zerolog.Nop())
	group := uuid.New()
	dev, err := mgr.CreateReplDev(context.Background(), group, nil)
	require.NoError(t, err)

	blk1, err := dev.AsyncAllocWrite(context.Background(), 4, []byte("meta1"), make([]byte, 128))
	require.NoError(t, err)
	blk2, err := dev.AsyncAllocWrite(context.Background(), 4, []byte("meta2"), make([]byte, 128))
	require.NoError(t, err)

	require.NotEqual(t, blk1.ChunkID, blk2.ChunkID)
	require.Less(t, blk1.BlockOffset, blk2.BlockOffset)
}
