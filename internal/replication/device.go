// Package replication defines the ReplicatedDevice abstraction that the PG,
// Shard, and Blob managers commit their mutations through, along with an
// in-process fake used by tests and by single-node deployments.
package replication

import (
	"context"

	"github.com/google/uuid"
)

// GroupID identifies a replicated device instance (one per PG).
type GroupID = uuid.UUID

// PeerID identifies one member of a replica set.
type PeerID = uuid.UUID

// Member describes one participant of a replicated device's group.
type Member struct {
	ID       PeerID
	Name     string
	Priority int32
}

// Status summarizes a replicated device's current replication health, used
// to answer get_replication_status.
type Status struct {
	GroupID     GroupID
	Leader      PeerID
	Members     []Member
	CommittedLSN uint64
}

// BlkID addresses a block range written through AsyncAllocWrite.
type BlkID struct {
	ChunkID     uint16
	BlockOffset uint32
	NumBlocks   uint32
}

// Listener receives the three phases of a replicated commit: PreCommit may
// veto a proposal before quorum is sought, Commit applies an already
// majority-durable entry and must not block or await further I/O, and
// Rollback unwinds whatever PreCommit reserved when quorum is never
// reached. MsgType and payload are opaque to the device; only the managers
// registered as listeners interpret them.
type Listener interface {
	PreCommit(ctx context.Context, msgType uint8, payload []byte) error
	Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *BlkID)
	Rollback(ctx context.Context, msgType uint8, payload []byte)
}

// Device is the control surface a PG's replicated log is driven through:
// the commit/pre-commit/rollback vocabulary a write-ahead log wraps
// around a single os.File, generalized here to a replica group rather
// than a single process's durability boundary.
type Device interface {
	// GroupID returns the identity of this replicated device's group.
	GroupID() GroupID

	// IsLeader reports whether this process currently holds leadership for
	// the group. Only the leader proposes new entries; followers still
	// receive Commit/Rollback callbacks as the log replicates to them.
	IsLeader() bool

	// GetBlkSize returns the block size entries are padded to before
	// durable write.
	GetBlkSize() uint64

	// Propose submits msgType/payload for replication. It blocks until the
	// entry reaches commit quorum (invoking Commit on every listener) or is
	// abandoned (invoking Rollback), and returns the error PreCommit raised
	// on the proposing replica, if any.
	Propose(ctx context.Context, msgType uint8, payload []byte) error

	// AsyncAllocWrite allocates a data block range alongside the next
	// proposed entry and replicates the payload out-of-band from the log,
	// returning the allocated extent once durable.
	AsyncAllocWrite(ctx context.Context, msgType uint8, payload []byte, data []byte) (BlkID, error)

	// ReadBlk reads back the bytes written at blk. It is not part of the
	// write-side interface external callers consume, but every replica
	// needs it to serve get_blob against its own local copy of the data.
	ReadBlk(ctx context.Context, blk BlkID) ([]byte, error)

	// ReplaceMember swaps an existing member for a new one. commitQuorum
	// mirrors the wire protocol's allowance for the request to be forwarded
	// to the leader when issued against a follower.
	ReplaceMember(ctx context.Context, old, new Member, commitQuorum int) error

	// GetReplicationStatus reports the group's membership and commit
	// progress.
	GetReplicationStatus() Status

	// AddListener registers l to receive PreCommit/Commit/Rollback
	// callbacks for every entry proposed on this device.
	AddListener(l Listener)

	// Close releases the device's resources.
	Close() error
}

// Manager creates and looks up replicated devices by group id, mirroring
// create_repl_dev/get_repl_dev.
type Manager interface {
	CreateReplDev(ctx context.Context, group GroupID, members []Member) (Device, error)
	GetReplDev(group GroupID) (Device, bool)
}
