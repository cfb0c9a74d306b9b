package codec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPGInfoSuperblockRoundTrip(t *testing.T) {
	sb := PGInfoSuperblock{
		ID:               7,
		ReplicaSetUUID:   uuid.New(),
		PGSizeBytes:      4096,
		IndexTableUUID:   uuid.New(),
		BlobSequenceNum:  3,
		ShardSequenceNum: 5,
		ActiveBlobCount:  2,
		TombstoneCount:   1,
		OccupiedBlocks:   9,
		Members: []Member{
			{ID: uuid.New(), Name: "A", Priority: 1},
			{ID: uuid.New(), Name: "B", Priority: 2},
		},
		ChunkIDs: []uint32{10, 11, 12, 13},
	}

	got, err := DecodePGInfoSuperblock(sb.Encode())
	require.NoError(t, err)
	require.Equal(t, sb, got)
}

func TestShardInfoSuperblockRoundTrip(t *testing.T) {
	sb := ShardInfoSuperblock{
		Info: ShardInfo{
			ID:              0x0001000000000002,
			PGID:            1,
			State:           ShardOpen,
			CreatedTime:     1000,
			LastModifiedTime: 1001,
			TotalCapacityMB: 128,
			UsedCapacityMB:  0,
			DeletedCapacityMB: 0,
		},
		PChunkID: 5,
		VChunkID: 0,
	}

	got, err := DecodeShardInfoSuperblock(sb.Encode())
	require.NoError(t, err)
	require.Equal(t, sb, got)
}

func TestBlobHeaderRoundTrip(t *testing.T) {
	hash, err := ComputeHash(HashSHA1, []byte("hello"), []byte("k"))
	require.NoError(t, err)

	h := BlobHeader{
		HashAlgorithm: HashSHA1,
		Hash:          hash,
		ShardID:       42,
		BlobID:        7,
		BlobSize:      5,
		ObjectOffset:  0,
		DataOffset:    16,
		UserKeySize:   1,
	}

	got, err := DecodeBlobHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeDataHeaderRejectsBadMagic(t *testing.T) {
	buf := NewDataHeader(RecordTypeBlobInfo).Encode(nil)
	buf[0] ^= 0xFF
	_, err := DecodeDataHeader(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestLogHeaderDetectsCorruption(t *testing.T) {
	payload := []byte("create-pg-payload")
	h := NewLogHeader(CreatePGMsg, payload)
	require.True(t, h.Valid(payload))

	corrupted := append([]byte{}, payload...)
	corrupted[0] ^= 0xFF
	require.False(t, h.Valid(corrupted))
}
