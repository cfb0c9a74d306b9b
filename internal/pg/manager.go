// Package pg implements the PG Manager: PG lifecycle, membership
// replacement, and the per-PG in-memory state every other manager looks
// entries up through.
package pg

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/index"
	"shardstore/internal/replication"
	"shardstore/internal/superblock"
)

// Entry is one PG's in-memory state: the durable attributes plus the
// mutable bits every commit handler touches. Durable counters are kept
// as plain fields guarded by mu rather than atomics, since every mutation
// already happens inside the single-writer commit path the replication
// device serializes. The PG superblock is rewritten only by the create_pg
// commit, the replace_member commit callback and PersistEntry; there is
// no periodic checkpoint, so counter changes made by blob commits reach
// disk only with the next of those rewrites. The dirty flag is set on
// every mutation but nothing reads it.
type Entry struct {
	mu sync.Mutex

	ID              uint16
	ReplicaSetUUID  uuid.UUID
	SizeBytes       uint64
	ChunkSize       uint64
	IndexTableUUID  uuid.UUID
	Members         []codec.Member
	ChunkIDs        []uint32

	BlobSequenceNum uint64
	ShardSequenceNum uint64
	ActiveBlobCount uint64
	TombstoneCount  uint64
	OccupiedBlocks  uint64

	Device replication.Device
	Index  *index.Table

	dirty bool
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}

// NextBlobID assigns the next blob_id in this PG's sequence. Only the
// leader replica's Blob Manager calls this; followers learn blob_id
// from the committed put_blob payload instead.
func (e *Entry) NextBlobID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BlobSequenceNum++
	e.dirty = true
	return e.BlobSequenceNum
}

// IncActiveBlob records a newly committed blob: one more active blob
// and numBlocks more occupied blocks.
func (e *Entry) IncActiveBlob(numBlocks uint32) {
	e.mu.Lock()
	e.ActiveBlobCount++
	e.OccupiedBlocks += uint64(numBlocks)
	e.dirty = true
	e.mu.Unlock()
}

// DecActiveIncTombstone records a blob moving from active to tombstoned.
func (e *Entry) DecActiveIncTombstone() {
	e.mu.Lock()
	if e.ActiveBlobCount > 0 {
		e.ActiveBlobCount--
	}
	e.TombstoneCount++
	e.dirty = true
	e.mu.Unlock()
}

// IncShardSeq records a newly committed shard against this PG's shard
// sequence counter, the value surfaced as shard_seq_num in a joining
// replica's resync metadata.
func (e *Entry) IncShardSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ShardSequenceNum++
	e.dirty = true
	return e.ShardSequenceNum
}

// Snapshot is a point-in-time copy of an Entry's stats, used to answer
// get_pg_stats without holding the entry lock past the call.
type Snapshot struct {
	ID               uint16
	SizeBytes        uint64
	ChunkSize        uint64
	NumChunks        uint32
	ReplicaSetUUID   uuid.UUID
	Members          []codec.Member
	BlobSequenceNum  uint64
	ShardSequenceNum uint64
	ActiveBlobCount  uint64
	TombstoneCount   uint64
	OccupiedBlocks   uint64
}

// Snapshot returns a point-in-time copy of the entry's durable and
// queryable fields, for callers outside this package (get_pg_stats, the
// snapshot streamer) that need to read PG state without reaching into
// unexported fields.
func (e *Entry) Snapshot() Snapshot {
	return e.snapshot()
}

func (e *Entry) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		ID:               e.ID,
		SizeBytes:        e.SizeBytes,
		ChunkSize:        e.ChunkSize,
		ReplicaSetUUID:   e.ReplicaSetUUID,
		Members:          append([]codec.Member(nil), e.Members...),
		BlobSequenceNum:  e.BlobSequenceNum,
		ShardSequenceNum: e.ShardSequenceNum,
		ActiveBlobCount:  e.ActiveBlobCount,
		TombstoneCount:   e.TombstoneCount,
		OccupiedBlocks:   e.OccupiedBlocks,
	}
}

func (e *Entry) superblock() codec.PGInfoSuperblock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return codec.PGInfoSuperblock{
		ID:               e.ID,
		ReplicaSetUUID:   e.ReplicaSetUUID,
		PGSizeBytes:      e.SizeBytes,
		IndexTableUUID:   e.IndexTableUUID,
		BlobSequenceNum:  e.BlobSequenceNum,
		ShardSequenceNum: e.ShardSequenceNum,
		ActiveBlobCount:  e.ActiveBlobCount,
		TombstoneCount:   e.TombstoneCount,
		OccupiedBlocks:   e.OccupiedBlocks,
		Members:          append([]codec.Member(nil), e.Members...),
		ChunkIDs:         append([]uint32(nil), e.ChunkIDs...),
	}
}

// Manager owns every PG entry. The map is guarded by a read-write lock
// per the concurrency model: readers (get_pg_stats, list_pg_ids, lookups
// from the Replication State Machine) take shared access, and create
// takes exclusive access only long enough to install the entry. The
// replace_member callback finds its entry under shared access and
// mutates the members under the entry's own lock.
type Manager struct {
	chunkSize uint64
	log       zerolog.Logger

	selector *chunkselector.Selector
	repl     replication.Manager
	sb       superblock.Store

	mu  sync.RWMutex
	pgs map[uint16]*Entry

	// createHooks run after a new Entry is installed by OnCreatePGCommit,
	// letting the Shard and Blob managers register themselves as
	// replication.Listeners on the PG's device without pg importing
	// either package.
	createHooks []func(*Entry)

	// indexMu guards uuidIndex separately from mu, per the concurrency
	// model's requirement to avoid lock-order inversion between the PG
	// map and the uuid->index-table map.
	indexMu   sync.Mutex
	uuidIndex map[uuid.UUID]*index.Table
}

func NewManager(chunkSize uint64, selector *chunkselector.Selector, repl replication.Manager, sb superblock.Store, log zerolog.Logger) *Manager {
	return &Manager{
		chunkSize: chunkSize,
		log:       log,
		selector:  selector,
		repl:      repl,
		sb:        sb,
		pgs:       make(map[uint16]*Entry),
		uuidIndex: make(map[uuid.UUID]*index.Table),
	}
}

// OnPGCreated registers fn to run after every new PG entry is installed,
// used to wire additional replication.Listeners onto the entry's device.
func (m *Manager) OnPGCreated(fn func(*Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createHooks = append(m.createHooks, fn)
}

// Get returns the entry for pgID under the map's read lock.
func (m *Manager) Get(pgID uint16) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pgs[pgID]
	return e, ok
}

// ListPGIDs returns every known pg_id.
func (m *Manager) ListPGIDs() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint16, 0, len(m.pgs))
	for id := range m.pgs {
		ids = append(ids, id)
	}
	return ids
}

// GetPGStats answers get_pg_stats.
func (m *Manager) GetPGStats(pgID uint16) (Snapshot, Error) {
	e, ok := m.Get(pgID)
	if !ok {
		return Snapshot{}, UnknownPG
	}
	snap := e.snapshot()
	snap.NumChunks = m.selector.NumChunks(pgID)
	return snap, OK
}

// PersistEntry rewrites pgID's superblock, used by the Shard Manager after
// a shard-create commit advances the PG's shard sequence counter, a field
// this package owns but the Shard Manager's commit handler mutates it
// through.
func (m *Manager) PersistEntry(pgID uint16) error {
	e, ok := m.Get(pgID)
	if !ok {
		return fmt.Errorf("pg: unknown pg %d", pgID)
	}
	return m.persist(e)
}

// CreatePG implements create_pg: idempotent by pg_id, capacity-checked
// before any log entry is proposed, then replicated.
func (m *Manager) CreatePG(ctx context.Context, info codec.PGInfo, members []replication.Member) Error {
	if _, ok := m.Get(info.ID); ok {
		// Step 1: already exists locally, success no-op.
		return OK
	}
	if info.SizeBytes == 0 {
		return InvalidArg
	}
	if info.SizeBytes/info.ChunkSize > uint64(m.selector.MostAvailNumChunks()) {
		return NoSpaceLeft
	}

	info.ReplicaSetUUID = uuid.New()
	dev, err := m.repl.CreateReplDev(ctx, info.ReplicaSetUUID, members)
	if err != nil {
		m.log.Error().Err(err).Uint16("pg_id", info.ID).Msg("create_repl_dev failed")
		return Unknown
	}
	dev.AddListener(m)

	body, err := codec.EncodePGInfo(info)
	if err != nil {
		m.log.Error().Err(err).Msg("encode PGInfo failed")
		return InvalidArg
	}
	wire := codec.NewLogHeader(codec.CreatePGMsg, body).Encode(nil)
	wire = append(wire, body...)

	if err := dev.Propose(ctx, uint8(codec.CreatePGMsg), wire); err != nil {
		return Unknown
	}
	return OK
}

// OnCreatePGCommit executes on every replica at commit time, per
// on_create_pg_commit. wire is the LogHeader followed by the JSON
// PGInfo payload exactly as proposed.
func (m *Manager) OnCreatePGCommit(ctx context.Context, dev replication.Device, wire []byte) Error {
	header, err := codec.DecodeLogHeader(wire)
	if err != nil || len(wire) < codec.LogHeaderSize {
		m.log.Error().Err(err).Msg("CRC_MISMATCH: truncated log header at create_pg commit")
		return CRCMismatch
	}
	body := wire[codec.LogHeaderSize:]
	if !header.Valid(body) {
		m.log.Error().Msg("CRC_MISMATCH: payload CRC mismatch at create_pg commit")
		return CRCMismatch
	}

	info, err := codec.DecodePGInfo(body)
	if err != nil {
		m.log.Error().Err(err).Msg("CRC_MISMATCH decoding PGInfo at commit")
		return CRCMismatch
	}

	if _, ok := m.Get(info.ID); ok {
		return OK
	}

	if info.ChunkSize != m.chunkSize {
		m.log.Error().Uint64("got", info.ChunkSize).Uint64("want", m.chunkSize).
			Msg("UNKNOWN: diverging chunk_size at create_pg commit")
		return Unknown
	}

	if _, ok := m.selector.SelectChunksForPG(info.ID, info.SizeBytes); !ok {
		return NoSpaceLeft
	}
	chunkIDs := m.selector.ChunkIDs(info.ID)

	indexTableUUID := uuid.New()
	tbl := index.New(index.DefaultTableSize)

	m.indexMu.Lock()
	if _, collide := m.uuidIndex[indexTableUUID]; collide {
		m.indexMu.Unlock()
		return Unknown
	}
	m.uuidIndex[indexTableUUID] = tbl
	m.indexMu.Unlock()

	members := make([]codec.Member, len(info.Members))
	copy(members, info.Members)

	entry := &Entry{
		ID:             info.ID,
		ReplicaSetUUID: info.ReplicaSetUUID,
		SizeBytes:      info.SizeBytes,
		ChunkSize:      info.ChunkSize,
		IndexTableUUID: indexTableUUID,
		Members:        members,
		ChunkIDs:       chunkIDs,
		Device:         dev,
		Index:          tbl,
	}

	m.mu.Lock()
	m.pgs[info.ID] = entry
	hooks := append([]func(*Entry){}, m.createHooks...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(entry)
	}

	if err := m.persist(entry); err != nil {
		m.log.Error().Err(err).Uint16("pg_id", info.ID).Msg("persist PG superblock failed")
	}
	return OK
}

// InstallRecoveredPG rebuilds a PG entry from its durable superblock at
// startup, bypassing create_pg's normal replication round-trip. dev is
// the already-recreated replication.Device for sb.ReplicaSetUUID. The
// chunk selector's RecoverPGChunks must already have been called for
// sb.ID with sb.ChunkIDs before this runs, and RecoverPerDeviceHeap once
// every PG has been installed, per the fixed startup order.
func (m *Manager) InstallRecoveredPG(dev replication.Device, sb codec.PGInfoSuperblock) (*Entry, error) {
	if e, ok := m.Get(sb.ID); ok {
		return e, nil
	}

	dev.AddListener(m)

	m.indexMu.Lock()
	if _, ok := m.uuidIndex[sb.IndexTableUUID]; ok {
		m.indexMu.Unlock()
		return nil, fmt.Errorf("pg: index table %s already owned by another PG", sb.IndexTableUUID)
	}
	tbl := index.New(index.DefaultTableSize)
	m.uuidIndex[sb.IndexTableUUID] = tbl
	m.indexMu.Unlock()

	entry := &Entry{
		ID:               sb.ID,
		ReplicaSetUUID:   sb.ReplicaSetUUID,
		SizeBytes:        sb.PGSizeBytes,
		ChunkSize:        m.chunkSize,
		IndexTableUUID:   sb.IndexTableUUID,
		Members:          append([]codec.Member(nil), sb.Members...),
		ChunkIDs:         append([]uint32(nil), sb.ChunkIDs...),
		BlobSequenceNum:  sb.BlobSequenceNum,
		ShardSequenceNum: sb.ShardSequenceNum,
		ActiveBlobCount:  sb.ActiveBlobCount,
		TombstoneCount:   sb.TombstoneCount,
		OccupiedBlocks:   sb.OccupiedBlocks,
		Device:           dev,
		Index:            tbl,
	}

	m.mu.Lock()
	m.pgs[entry.ID] = entry
	hooks := append([]func(*Entry){}, m.createHooks...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(entry)
	}
	return entry, nil
}

func (m *Manager) persist(e *Entry) error {
	sb := e.superblock()
	return m.sb.Put(fmt.Sprintf("pg/%d", sb.ID), sb.Encode())
}

// ReplaceMember implements replace_member.
func (m *Manager) ReplaceMember(ctx context.Context, pgID uint16, out, in replication.Member, commitQuorum int) Error {
	e, ok := m.Get(pgID)
	if !ok {
		return UnknownPG
	}
	if !e.Device.IsLeader() && commitQuorum == 0 {
		return NotLeader
	}
	if err := e.Device.ReplaceMember(ctx, out, in, commitQuorum); err != nil {
		return Unknown
	}
	return OK
}

// OnPGReplaceMember is the commit callback on_pg_replace_member.
func (m *Manager) OnPGReplaceMember(group uuid.UUID, out, in replication.Member) {
	m.mu.RLock()
	var entry *Entry
	for _, e := range m.pgs {
		if e.ReplicaSetUUID == group {
			entry = e
			break
		}
	}
	m.mu.RUnlock()
	if entry == nil {
		return
	}

	entry.mu.Lock()
	for i, mem := range entry.Members {
		if mem.ID == out.ID {
			entry.Members[i] = codec.Member{ID: in.ID, Name: in.Name, Priority: in.Priority}
			break
		}
	}
	entry.mu.Unlock()

	if err := m.persist(entry); err != nil {
		m.log.Error().Err(err).Uint16("pg_id", entry.ID).Msg("persist PG superblock after replace_member failed")
	}
}

// PreCommit, Commit, and Rollback make Manager a replication.Listener for
// its own CREATE_PG entries. A PG's device has no existing PG Manager
// entry to consult until the entry itself is created at commit time, so
// unlike the Shard and Blob managers (which veto in PreCommit against
// already-known state), create_pg has nothing to veto here: capacity and
// idempotence are checked in CreatePG, before the entry is ever proposed.
func (m *Manager) PreCommit(ctx context.Context, msgType uint8, payload []byte) error {
	return nil
}

func (m *Manager) Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *replication.BlkID) {
	if msgType != uint8(codec.CreatePGMsg) {
		return
	}
	if result := m.commitCreatePG(ctx, payload); result != OK {
		m.log.Warn().Str("result", string(result)).Msg("create_pg commit did not install a PG entry")
	}
}

func (m *Manager) Rollback(ctx context.Context, msgType uint8, payload []byte) {
	// create_pg reserves nothing in PreCommit, so there is nothing to
	// release on rollback.
}

// commitCreatePG resolves the proposing device by replica_set_uuid
// embedded in the payload and delegates to OnCreatePGCommit.
func (m *Manager) commitCreatePG(ctx context.Context, wire []byte) Error {
	if len(wire) < codec.LogHeaderSize {
		return CRCMismatch
	}
	body := wire[codec.LogHeaderSize:]
	info, err := codec.DecodePGInfo(body)
	if err != nil {
		return CRCMismatch
	}
	dev, ok := m.repl.GetReplDev(info.ReplicaSetUUID)
	if !ok {
		return Unknown
	}
	return m.OnCreatePGCommit(ctx, dev, wire)
}
