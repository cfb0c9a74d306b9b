// Package shard implements the Shard Manager: shard creation and sealing
// driven through the replicated log, and the per-PG shard list.
package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shardstore/internal/base"
	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/replication"
	"shardstore/internal/superblock"
)

// Entry is one shard's in-memory state.
type Entry struct {
	mu sync.Mutex

	ID               uint64
	PGID             uint16
	State            codec.ShardState
	CreatedTime      int64
	LastModifiedTime int64
	TotalCapacityMB  uint64
	UsedCapacityMB   uint64
	DeletedCapacityMB uint64

	PChunkID uint16
	VChunkID uint16
}

func (e *Entry) snapshot() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e
}

// Snapshot returns a point-in-time copy of the entry's fields, for
// callers outside this package that need to read shard state (the Blob
// Manager checking shard state before put_blob/get_blob).
func (e *Entry) Snapshot() Entry {
	return e.snapshot()
}

// MarkWritten records a successful put_blob commit against this shard:
// dataSize bytes more used capacity and a fresh last-modified time.
func (e *Entry) MarkWritten(dataSize uint64, now int64) {
	e.mu.Lock()
	e.UsedCapacityMB += dataSize / (1 << 20)
	if dataSize%(1<<20) != 0 {
		e.UsedCapacityMB++
	}
	e.LastModifiedTime = now
	e.mu.Unlock()
}

func (e *Entry) superblock() codec.ShardInfoSuperblock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return codec.ShardInfoSuperblock{
		Info: codec.ShardInfo{
			ID:                e.ID,
			PGID:              e.PGID,
			State:             e.State,
			CreatedTime:       e.CreatedTime,
			LastModifiedTime:  e.LastModifiedTime,
			TotalCapacityMB:   e.TotalCapacityMB,
			UsedCapacityMB:    e.UsedCapacityMB,
			DeletedCapacityMB: e.DeletedCapacityMB,
		},
		PChunkID: e.PChunkID,
		VChunkID: e.VChunkID,
	}
}

// createShardPayload is the CREATE_SHARD_MSG log payload: enough to
// reconstruct the shard superblock at commit on every replica.
type createShardPayload struct {
	PGID      uint16
	ShardID   uint64
	VChunkID  uint16
	SizeBytes uint64
}

// Manager owns every shard and dispatches CREATE_SHARD_MSG/SEAL_SHARD_MSG
// commits. It looks PG entries up through pg.Manager rather than holding
// its own PG references, per the "weak cross-component reference" rule.
type Manager struct {
	pgMgr    *pg.Manager
	selector *chunkselector.Selector
	sb       superblock.Store
	log      zerolog.Logger

	mu     sync.RWMutex
	shards map[uint64]*Entry
	byPG   map[uint16][]uint64

	// pendingVChunk tracks, per pg_id, the virtual chunk a pre-committed
	// but not-yet-committed CREATE_SHARD has consumed, so PreCommit can
	// veto a racing create_shard before it ever reaches ConsumeChunk
	// twice for the same virtual chunk.
	pendingMu     sync.Mutex
	pendingVChunk map[uint16]map[uint16]bool
}

func NewManager(pgMgr *pg.Manager, selector *chunkselector.Selector, sb superblock.Store, log zerolog.Logger) *Manager {
	return &Manager{
		pgMgr:         pgMgr,
		selector:      selector,
		sb:            sb,
		log:           log,
		shards:        make(map[uint64]*Entry),
		byPG:          make(map[uint16][]uint64),
		pendingVChunk: make(map[uint16]map[uint16]bool),
	}
}

func (m *Manager) Get(shardID uint64) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.shards[shardID]
	return e, ok
}

// ListShards returns pgID's shards in ascending shard_id order, which is
// also ascending sequence order since EncodeShardID packs the sequence
// into the low bits.
func (m *Manager) ListShards(pgID uint16) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := append([]uint64(nil), m.byPG[pgID]...)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// CreateShard implements create_shard: leader-only, picks the next free
// virtual chunk, and replicates the resulting superblock fields.
func (m *Manager) CreateShard(ctx context.Context, pgID uint16, sizeBytes uint64) (uint64, Error) {
	entry, ok := m.pgMgr.Get(pgID)
	if !ok {
		return 0, UnknownPG
	}
	if !entry.Device.IsLeader() {
		return 0, NotLeader
	}

	vChunk, ok := m.selector.NextFreeVChunk(pgID)
	if !ok {
		return 0, InvalidArg
	}

	seq := m.nextSeq(pgID)
	shardID := base.EncodeShardID(pgID, seq)

	body := encodeCreateShardPayload(createShardPayload{PGID: pgID, ShardID: shardID, VChunkID: vChunk, SizeBytes: sizeBytes})
	wire := codec.NewLogHeader(codec.CreateShardMsg, body).Encode(nil)
	wire = append(wire, body...)

	if err := entry.Device.Propose(ctx, uint8(codec.CreateShardMsg), wire); err != nil {
		return 0, Timeout
	}
	return shardID, OK
}

func (m *Manager) nextSeq(pgID uint16) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.byPG[pgID])) + 1
}

// PreCommit vetoes a CREATE_SHARD whose virtual chunk has already been
// reserved by a racing proposal not yet committed.
func (m *Manager) PreCommit(ctx context.Context, msgType uint8, payload []byte) error {
	if msgType != uint8(codec.CreateShardMsg) {
		return nil
	}
	p, err := decodeCreateShardPayload(stripLogHeader(payload))
	if err != nil {
		return err
	}

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	set := m.pendingVChunk[p.PGID]
	if set == nil {
		set = make(map[uint16]bool)
		m.pendingVChunk[p.PGID] = set
	}
	if set[p.VChunkID] {
		return fmt.Errorf("shard: virtual chunk %d of pg %d already reserved by a racing create_shard", p.VChunkID, p.PGID)
	}
	if _, ok := m.selector.ConsumeChunk(p.PGID, p.VChunkID); !ok {
		return fmt.Errorf("shard: virtual chunk %d of pg %d already consumed", p.VChunkID, p.PGID)
	}
	set[p.VChunkID] = true
	return nil
}

// Commit installs the shard entry on every replica, or seals an existing
// one for SEAL_SHARD_MSG.
func (m *Manager) Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *replication.BlkID) {
	body := stripLogHeader(payload)
	switch codec.MsgType(msgType) {
	case codec.CreateShardMsg:
		m.commitCreateShard(body)
	case codec.SealShardMsg:
		m.commitSealShard(body)
	}
}

func (m *Manager) commitCreateShard(body []byte) {
	p, err := decodeCreateShardPayload(body)
	if err != nil {
		m.log.Error().Err(err).Msg("CRC_MISMATCH decoding create_shard payload at commit")
		return
	}

	if _, ok := m.Get(p.ShardID); ok {
		return
	}

	pgEntry, ok := m.pgMgr.Get(p.PGID)
	if !ok {
		m.log.Error().Uint16("pg_id", p.PGID).Msg("UNKNOWN_PG at create_shard commit")
		return
	}
	if int(p.VChunkID) >= len(pgEntry.ChunkIDs) {
		m.log.Error().Uint16("v_chunk_id", p.VChunkID).Msg("v_chunk_id out of range at create_shard commit")
		return
	}
	pChunkID := pgEntry.ChunkIDs[p.VChunkID]

	now := time.Now().Unix()
	entry := &Entry{
		ID:              p.ShardID,
		PGID:            p.PGID,
		State:           codec.ShardOpen,
		CreatedTime:     now,
		LastModifiedTime: now,
		TotalCapacityMB: p.SizeBytes / (1 << 20),
		PChunkID:        uint16(pChunkID),
		VChunkID:        p.VChunkID,
	}

	m.mu.Lock()
	m.shards[entry.ID] = entry
	m.byPG[entry.PGID] = append(m.byPG[entry.PGID], entry.ID)
	m.mu.Unlock()

	m.pendingMu.Lock()
	if set := m.pendingVChunk[p.PGID]; set != nil {
		delete(set, p.VChunkID)
	}
	m.pendingMu.Unlock()

	pgEntry.IncShardSeq()
	if err := m.pgMgr.PersistEntry(p.PGID); err != nil {
		m.log.Error().Err(err).Uint16("pg_id", p.PGID).Msg("persist PG superblock after shard_seq_num bump failed")
	}

	if err := m.persist(entry); err != nil {
		m.log.Error().Err(err).Uint64("shard_id", entry.ID).Msg("persist shard superblock failed")
	}
}

func (m *Manager) commitSealShard(body []byte) {
	shardID, err := decodeSealShardPayload(body)
	if err != nil {
		m.log.Error().Err(err).Msg("CRC_MISMATCH decoding seal_shard payload at commit")
		return
	}
	entry, ok := m.Get(shardID)
	if !ok {
		m.log.Error().Uint64("shard_id", shardID).Msg("UNKNOWN_SHARD at seal_shard commit")
		return
	}

	entry.mu.Lock()
	entry.State = codec.ShardSealed
	entry.LastModifiedTime = time.Now().Unix()
	entry.mu.Unlock()

	if err := m.persist(entry); err != nil {
		m.log.Error().Err(err).Uint64("shard_id", entry.ID).Msg("persist shard superblock after seal failed")
	}
}

// Rollback releases the virtual chunk a create_shard proposal reserved
// in PreCommit when the log entry never reaches quorum, so a retry can
// succeed against the same virtual chunk.
func (m *Manager) Rollback(ctx context.Context, msgType uint8, payload []byte) {
	if msgType != uint8(codec.CreateShardMsg) {
		return
	}
	p, err := decodeCreateShardPayload(stripLogHeader(payload))
	if err != nil {
		return
	}
	m.selector.ReleaseChunk(p.PGID, p.VChunkID)
	m.pendingMu.Lock()
	if set := m.pendingVChunk[p.PGID]; set != nil {
		delete(set, p.VChunkID)
	}
	m.pendingMu.Unlock()
}

// SealShard implements seal_shard.
func (m *Manager) SealShard(ctx context.Context, shardID uint64) Error {
	entry, ok := m.Get(shardID)
	if !ok {
		return UnknownShard
	}
	pgEntry, ok := m.pgMgr.Get(entry.PGID)
	if !ok {
		return UnknownPG
	}
	if !pgEntry.Device.IsLeader() {
		return NotLeader
	}

	body := encodeSealShardPayload(shardID)
	wire := codec.NewLogHeader(codec.SealShardMsg, body).Encode(nil)
	wire = append(wire, body...)

	if err := pgEntry.Device.Propose(ctx, uint8(codec.SealShardMsg), wire); err != nil {
		return Timeout
	}
	return OK
}

// InstallRecoveredShard rebuilds a shard entry from its durable
// superblock at startup and marks its virtual chunk busy again in the
// chunk selector, as create_shard's pre-commit did originally. Shard
// superblocks must be installed after every PG superblock has been
// installed (the shard's pg_id must already resolve), per the fixed
// startup order.
func (m *Manager) InstallRecoveredShard(sb codec.ShardInfoSuperblock) {
	if _, ok := m.Get(sb.Info.ID); ok {
		return
	}
	m.selector.ConsumeChunk(sb.Info.PGID, sb.VChunkID)
	entry := &Entry{
		ID:                sb.Info.ID,
		PGID:              sb.Info.PGID,
		State:             sb.Info.State,
		CreatedTime:       sb.Info.CreatedTime,
		LastModifiedTime:  sb.Info.LastModifiedTime,
		TotalCapacityMB:   sb.Info.TotalCapacityMB,
		UsedCapacityMB:    sb.Info.UsedCapacityMB,
		DeletedCapacityMB: sb.Info.DeletedCapacityMB,
		PChunkID:          sb.PChunkID,
		VChunkID:          sb.VChunkID,
	}
	m.mu.Lock()
	m.shards[entry.ID] = entry
	m.byPG[entry.PGID] = append(m.byPG[entry.PGID], entry.ID)
	m.mu.Unlock()
}

func (m *Manager) persist(e *Entry) error {
	sb := e.superblock()
	return m.sb.Put(fmt.Sprintf("shard/%d", sb.Info.ID), sb.Encode())
}

func stripLogHeader(wire []byte) []byte {
	if len(wire) < codec.LogHeaderSize {
		return nil
	}
	return wire[codec.LogHeaderSize:]
}
