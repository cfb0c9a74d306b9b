// Package blob implements the Blob Engine: put/get/delete of blob
// payloads, block allocation hints, index insertion, tombstoning, and
// hash verification.
package blob

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shardstore/internal/base"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/replication"
	"shardstore/internal/shard"
)

// Manager implements put_blob/get_blob/del_blob. Like the Shard Manager,
// it looks PG and shard state up through their owning managers rather
// than caching its own copies. blob_id assignment lives on the owning
// pg.Entry itself (NextBlobID), so only the leader replica's call into
// PutBlob ever advances it.
type Manager struct {
	pgMgr    *pg.Manager
	shardMgr *shard.Manager
	log      zerolog.Logger
}

// Result is the outcome of a successful get_blob.
type Result struct {
	Data []byte
}

func NewManager(pgMgr *pg.Manager, shardMgr *shard.Manager, log zerolog.Logger) *Manager {
	return &Manager{pgMgr: pgMgr, shardMgr: shardMgr, log: log}
}

// PutBlob implements put_blob.
func (m *Manager) PutBlob(ctx context.Context, shardID uint64, userKey, data []byte, algo codec.HashAlgorithm) (uint64, Error) {
	shardEntry, ok := m.shardMgr.Get(shardID)
	if !ok {
		return 0, InvalidArg
	}
	shardSnap := shardEntry.Snapshot()
	if shardSnap.State != codec.ShardOpen {
		return 0, SealedShard
	}

	pgEntry, ok := m.pgMgr.Get(shardSnap.PGID)
	if !ok {
		return 0, InvalidArg
	}

	hash, err := codec.ComputeHash(algo, data, userKey)
	if err != nil {
		return 0, InvalidArg
	}

	blobID := pgEntry.NextBlobID()

	header := codec.BlobHeader{
		HashAlgorithm: algo,
		Hash:          hash,
		ShardID:       shardID,
		BlobID:        blobID,
		BlobSize:      uint32(len(data)),
		DataOffset:    uint32(codec.BlobHeaderSize) + uint32(len(userKey)),
		UserKeySize:   uint32(len(userKey)),
	}
	headerBytes := header.Encode()

	sg := make([]byte, 0, len(headerBytes)+len(userKey)+len(data)+ioAlign)
	sg = append(sg, headerBytes...)
	sg = append(sg, userKey...)
	sg = append(sg, data...)
	sg = append(sg, pad(len(sg))...)

	payload := encodePutPayload(putPayload{
		PGID:          shardSnap.PGID,
		ShardID:       shardID,
		BlobID:        blobID,
		HashAlgorithm: algo,
		UserKeySize:   uint32(len(userKey)),
		DataSize:      uint32(len(data)),
	})
	wire := codec.NewLogHeader(codec.PutBlobMsg, payload).Encode(nil)
	wire = append(wire, payload...)

	if _, err := pgEntry.Device.AsyncAllocWrite(ctx, uint8(codec.PutBlobMsg), wire, sg); err != nil {
		return 0, Timeout
	}
	return blobID, OK
}

// PreCommit never vetoes put_blob/del_blob: the only thing that could
// veto (the shard being sealed) is enforced synchronously in PutBlob
// before the proposal is even made, and no resource is reserved ahead
// of commit the way chunk reservation is for create_shard.
func (m *Manager) PreCommit(ctx context.Context, msgType uint8, payload []byte) error {
	return nil
}

func (m *Manager) Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *replication.BlkID) {
	body := stripLogHeader(payload)
	switch codec.MsgType(msgType) {
	case codec.PutBlobMsg:
		m.commitPutBlob(body, blkID)
	case codec.DelBlobMsg:
		m.commitDelBlob(body)
	}
}

func (m *Manager) Rollback(ctx context.Context, msgType uint8, payload []byte) {
	// Neither put_blob nor del_blob reserves anything in PreCommit.
}

func (m *Manager) commitPutBlob(body []byte, blkID *replication.BlkID) {
	p, err := decodePutPayload(body)
	if err != nil {
		m.log.Error().Err(err).Msg("CRC_MISMATCH decoding put_blob payload at commit")
		return
	}
	if blkID == nil {
		m.log.Error().Msg("put_blob commit missing data extent")
		return
	}

	pgEntry, ok := m.pgMgr.Get(p.PGID)
	if !ok {
		m.log.Error().Uint16("pg_id", p.PGID).Msg("UNKNOWN_PG at put_blob commit")
		return
	}

	key := base.BlobRouteKey{ShardID: p.ShardID, BlobID: p.BlobID}
	loc := base.MultiBlkId{{ChunkID: blkID.ChunkID, BlockOffset: blkID.BlockOffset, NumBlocks: blkID.NumBlocks}}
	if err := pgEntry.Index.Insert(key, loc); err != nil {
		m.log.Error().Err(err).Msg("index insert failed at put_blob commit")
		return
	}

	pgEntry.IncActiveBlob(loc.NumBlocks())

	if shardEntry, ok := m.shardMgr.Get(p.ShardID); ok {
		shardEntry.MarkWritten(uint64(p.DataSize), time.Now().Unix())
	}
}

// DelBlob implements del_blob.
func (m *Manager) DelBlob(ctx context.Context, shardID, blobID uint64) Error {
	shardEntry, ok := m.shardMgr.Get(shardID)
	if !ok {
		return InvalidArg
	}
	pgID := shardEntry.Snapshot().PGID
	pgEntry, ok := m.pgMgr.Get(pgID)
	if !ok {
		return InvalidArg
	}

	payload := encodeDelPayload(pgID, shardID, blobID)
	wire := codec.NewLogHeader(codec.DelBlobMsg, payload).Encode(nil)
	wire = append(wire, payload...)

	if err := pgEntry.Device.Propose(ctx, uint8(codec.DelBlobMsg), wire); err != nil {
		return Timeout
	}
	return OK
}

func (m *Manager) commitDelBlob(body []byte) {
	pgID, shardID, blobID, err := decodeDelPayload(body)
	if err != nil {
		m.log.Error().Err(err).Msg("CRC_MISMATCH decoding del_blob payload at commit")
		return
	}

	pgEntry, ok := m.pgMgr.Get(pgID)
	if !ok {
		return
	}

	key := base.BlobRouteKey{ShardID: shardID, BlobID: blobID}
	loc, ok := pgEntry.Index.Lookup(key)
	if !ok || loc.IsTombstone() {
		// del_blob on an already-tombstoned or never-existing blob is a
		// no-op that still returns success to the caller.
		return
	}
	if err := pgEntry.Index.MoveToTombstone(key); err != nil {
		m.log.Error().Err(err).Msg("move_to_tombstone failed at del_blob commit")
		return
	}
	pgEntry.DecActiveIncTombstone()
}

// GetBlob implements get_blob.
func (m *Manager) GetBlob(ctx context.Context, shardID, blobID uint64, offset, length uint32) (Result, Error) {
	shardEntry, ok := m.shardMgr.Get(shardID)
	if !ok {
		return Result{}, UnknownBlob
	}
	snap := shardEntry.Snapshot()
	if snap.State == codec.ShardDeleted {
		return Result{}, UnknownBlob
	}

	pgEntry, ok := m.pgMgr.Get(snap.PGID)
	if !ok {
		return Result{}, UnknownBlob
	}

	key := base.BlobRouteKey{ShardID: shardID, BlobID: blobID}
	loc, ok := pgEntry.Index.Get(key)
	if !ok {
		return Result{}, UnknownBlob
	}
	if len(loc) == 0 {
		return Result{}, UnknownBlob
	}

	ext := loc[0]
	raw, err := pgEntry.Device.ReadBlk(ctx, replication.BlkID{ChunkID: ext.ChunkID, BlockOffset: ext.BlockOffset, NumBlocks: ext.NumBlocks})
	if err != nil {
		return Result{}, Timeout
	}

	header, err := codec.DecodeBlobHeader(raw)
	if err != nil {
		return Result{}, CRCMismatch
	}
	if header.ShardID != shardID || header.BlobID != blobID {
		return Result{}, CRCMismatch
	}

	dataStart := int(header.DataOffset)
	dataEnd := dataStart + int(header.BlobSize)
	if dataEnd > len(raw) {
		return Result{}, CRCMismatch
	}
	userKeyStart := dataStart - int(header.UserKeySize)
	userKey := raw[userKeyStart:dataStart]
	payload := raw[dataStart:dataEnd]

	gotHash, err := codec.ComputeHash(header.HashAlgorithm, payload, userKey)
	if err != nil || gotHash != header.Hash {
		return Result{}, CRCMismatch
	}

	if int(offset) > len(payload) {
		return Result{}, InvalidArg
	}
	if length == 0 {
		length = uint32(len(payload)) - offset
	}
	end := int(offset) + int(length)
	if end > len(payload) {
		end = len(payload)
	}
	return Result{Data: payload[offset:end]}, OK
}

func stripLogHeader(wire []byte) []byte {
	if len(wire) < codec.LogHeaderSize {
		return nil
	}
	return wire[codec.LogHeaderSize:]
}
