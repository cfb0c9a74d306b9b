package codec

import (
	"encoding/json"

	"github.com/google/uuid"
)

// PGInfo is the CREATE_PG_MSG log payload, carried as JSON rather than a
// packed binary record — unlike the superblock and shard/blob records,
// the create-PG proposal needs to travel without every replica first
// agreeing on a binary schema version.
type PGInfo struct {
	ID             uint16    `json:"id"`
	SizeBytes      uint64    `json:"size_bytes"`
	ChunkSize      uint64    `json:"chunk_size"`
	ReplicaSetUUID uuid.UUID `json:"replica_set_uuid"`
	Members        []Member  `json:"members"`
}

// EncodePGInfo marshals p to JSON.
func EncodePGInfo(p PGInfo) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePGInfo is the inverse of EncodePGInfo.
func DecodePGInfo(buf []byte) (PGInfo, error) {
	var p PGInfo
	err := json.Unmarshal(buf, &p)
	return p, err
}
