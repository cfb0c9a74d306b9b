package recovery

import (
	"shardstore/internal/base"
	"shardstore/internal/codec"
	"shardstore/internal/pg"
	"shardstore/internal/shard"
)

// AliveBlob is one entry of the PGBlobIterator's output: a blob whose
// final state is alive (not tombstoned), with the extents holding its
// data.
type AliveBlob struct {
	ShardID uint64
	BlobID  uint64
	Loc     base.MultiBlkId
}

func (b AliveBlob) bytes(blockSize uint64) uint64 {
	return uint64(b.Loc.NumBlocks()) * blockSize
}

// Batch is one unit of PGBlobIterator output. Meta is only set on the
// first batch. ShardPreamble lists shards whose preamble falls in this
// batch (the shard is about to start or, for an empty shard, start and
// end in the same batch). EndOfShard lists shards whose last blob was
// just emitted, so the receiver knows it can flush that shard.
type Batch struct {
	Meta          *codec.ResyncPGMetaData
	ShardPreamble []codec.ShardInfo
	Blobs         []AliveBlob
	EndOfShard    []uint64
}

// PGBlobIterator streams one PG's live blobs to a joining replica in
// batches no larger than maxBlobs entries or maxBytes total payload
// size, visiting shards in ascending shard_seq_num and, within a shard,
// ascending blob_id — the same order the index's BlobRouteKey encoding
// already produces, since EncodeShardID packs a strictly increasing
// per-PG sequence into shard_id's low bits.
type PGBlobIterator struct {
	meta      codec.ResyncPGMetaData
	shards    []codec.ShardInfo
	blobs     []AliveBlob
	maxBlobs  uint64
	maxBytes  uint64
	blockSize uint64

	blobPos     int
	shardPos    int
	emittedMeta bool
	shardOpen   bool // true once the current shard's preamble has been sent
}

// NewPGBlobIterator builds an iterator over entry's currently alive
// blobs. shardEntries must already be in ascending shard_seq_num order
// (shard.Manager.ListShards guarantees this).
func NewPGBlobIterator(entry *pg.Entry, shardEntries []shard.Entry, maxBlobs, maxBytes, blockSize uint64) *PGBlobIterator {
	snap := entry.Snapshot()

	var blobs []AliveBlob
	entry.Index.Ascend(func(key base.BlobRouteKey, loc base.MultiBlkId) bool {
		if !loc.IsTombstone() {
			blobs = append(blobs, AliveBlob{ShardID: key.ShardID, BlobID: key.BlobID, Loc: loc})
		}
		return true
	})

	var totalBytes uint64
	for _, b := range blobs {
		totalBytes += b.bytes(blockSize)
	}

	shardIDs := make([]uint64, len(shardEntries))
	shardInfos := make([]codec.ShardInfo, len(shardEntries))
	for i, s := range shardEntries {
		shardIDs[i] = s.ID
		shardInfos[i] = codec.ShardInfo{
			ID:                s.ID,
			PGID:              s.PGID,
			State:             s.State,
			CreatedTime:       s.CreatedTime,
			LastModifiedTime:  s.LastModifiedTime,
			TotalCapacityMB:   s.TotalCapacityMB,
			UsedCapacityMB:    s.UsedCapacityMB,
			DeletedCapacityMB: s.DeletedCapacityMB,
		}
	}

	return &PGBlobIterator{
		meta: codec.ResyncPGMetaData{
			PGID:                 snap.ID,
			ReplicaSetUUID:       snap.ReplicaSetUUID,
			PGSize:               snap.SizeBytes,
			ChunkSize:            snap.ChunkSize,
			BlobSeqNum:           snap.BlobSequenceNum,
			ShardSeqNum:          snap.ShardSequenceNum,
			Members:              snap.Members,
			ShardIDs:             shardIDs,
			TotalBlobsToTransfer: uint64(len(blobs)),
			TotalBytesToTransfer: totalBytes,
		},
		shards:    shardInfos,
		blobs:     blobs,
		maxBlobs:  maxBlobs,
		maxBytes:  maxBytes,
		blockSize: blockSize,
	}
}

// Done reports whether every batch has already been returned.
func (it *PGBlobIterator) Done() bool {
	return it.emittedMeta && it.shardPos >= len(it.shards) && it.blobPos >= len(it.blobs)
}

// Next returns the next batch, or ok=false once the stream is exhausted.
func (it *PGBlobIterator) Next() (Batch, bool) {
	if it.Done() {
		return Batch{}, false
	}

	var batch Batch
	if !it.emittedMeta {
		meta := it.meta
		batch.Meta = &meta
		it.emittedMeta = true
	}

	var numBlobs, numBytes uint64
	for it.shardPos < len(it.shards) {
		shardID := it.shards[it.shardPos].ID
		if !it.shardOpen {
			batch.ShardPreamble = append(batch.ShardPreamble, it.shards[it.shardPos])
			it.shardOpen = true
		}

		for it.blobPos < len(it.blobs) && it.blobs[it.blobPos].ShardID == shardID {
			b := it.blobs[it.blobPos]
			bytes := b.bytes(it.blockSize)
			// Always let at least one blob through even if it alone
			// exceeds the byte budget, so a single oversized blob can't
			// stall the stream forever.
			if numBlobs > 0 && (numBlobs+1 > it.maxBlobs || numBytes+bytes > it.maxBytes) {
				return batch, true
			}
			batch.Blobs = append(batch.Blobs, b)
			numBlobs++
			numBytes += bytes
			it.blobPos++
		}

		// Every blob belonging to shardID has been emitted (possibly
		// none, for an empty shard): close it out and move on.
		batch.EndOfShard = append(batch.EndOfShard, shardID)
		it.shardOpen = false
		it.shardPos++
	}

	return batch, true
}
