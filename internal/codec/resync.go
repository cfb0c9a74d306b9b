package codec

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ResyncPGMetaData is the batch-0 preamble of a PG resync stream: enough
// for a joining replica to allocate its own PG entry, chunk assignment,
// and shard list before any blob data arrives. Carried as JSON, the same
// choice as PGInfo, since a resync stream crosses process/version
// boundaries the way a log proposal does.
type ResyncPGMetaData struct {
	PGID                 uint16   `json:"pg_id"`
	ReplicaSetUUID       uuid.UUID `json:"replica_set_uuid"`
	PGSize               uint64   `json:"pg_size"`
	ChunkSize            uint64   `json:"chunk_size"`
	BlobSeqNum           uint64   `json:"blob_seq_num"`
	ShardSeqNum          uint64   `json:"shard_seq_num"`
	Members              []Member `json:"members"`
	ShardIDs             []uint64 `json:"shard_ids"`
	TotalBlobsToTransfer uint64   `json:"total_blobs_to_transfer"`
	TotalBytesToTransfer uint64   `json:"total_bytes_to_transfer"`
}

func EncodeResyncPGMetaData(m ResyncPGMetaData) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeResyncPGMetaData(buf []byte) (ResyncPGMetaData, error) {
	var m ResyncPGMetaData
	err := json.Unmarshal(buf, &m)
	return m, err
}
