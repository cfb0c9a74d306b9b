package rsm

import (
	"context"

	"github.com/rs/zerolog"

	"shardstore/internal/codec"
	"shardstore/internal/replication"
)

// handler is the minimal interface the dispatch table needs from each
// manager: just enough to satisfy replication.Listener without importing
// pg/shard/blob (which would cycle back through rsm if those packages
// ever needed dispatch types).
type handler interface {
	PreCommit(ctx context.Context, msgType uint8, payload []byte) error
	Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *replication.BlkID)
	Rollback(ctx context.Context, msgType uint8, payload []byte)
}

// NewPGDispatcher builds the post-creation dispatch table that every PG's
// device shares: CREATE_SHARD/SEAL_SHARD to the Shard Manager, PUT_BLOB/
// DEL_BLOB to the Blob Engine, matching the routing table in spec §4.7.
// CREATE_PG itself is never routed through this dispatcher: the PG
// Manager registers directly as a replication.Listener on the device
// before the PG exists, since no PG entry — and so no Dispatcher — has
// been installed yet at that point.
func NewPGDispatcher(log zerolog.Logger, shardMgr, blobMgr handler) *Dispatcher {
	d := New(log)
	d.Register(codec.CreateShardMsg, shardMgr)
	d.Register(codec.SealShardMsg, shardMgr)
	d.Register(codec.PutBlobMsg, blobMgr)
	d.Register(codec.DelBlobMsg, blobMgr)
	return d
}
