package codec

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// MemberNameSize is the fixed, NUL-padded width of a PG member's name
// field in the on-disk superblock.
const MemberNameSize = 32

// Member is one entry of a PG's membership set.
type Member struct {
	ID       uuid.UUID
	Name     string
	Priority int32
}

const memberSize = 16 + MemberNameSize + 4

func encodeMember(buf []byte, m Member) []byte {
	buf = append(buf, m.ID[:]...)
	var name [MemberNameSize]byte
	copy(name[:], m.Name)
	buf = append(buf, name[:]...)
	var pr [4]byte
	binary.LittleEndian.PutUint32(pr[:], uint32(m.Priority))
	return append(buf, pr[:]...)
}

func decodeMember(buf []byte) Member {
	var id uuid.UUID
	copy(id[:], buf[0:16])
	nameBytes := buf[16 : 16+MemberNameSize]
	end := 0
	for end < len(nameBytes) && nameBytes[end] != 0 {
		end++
	}
	priority := int32(binary.LittleEndian.Uint32(buf[16+MemberNameSize : memberSize]))
	return Member{ID: id, Name: string(nameBytes[:end]), Priority: priority}
}

// PGInfoSuperblock is the durable per-PG record persisted by the
// metadata-block service: a fixed header followed by the members array
// then the chunk-id array, with array lengths given explicitly (counts
// derived from len(Members)/len(ChunkIDs) at encode time) rather than
// encoded pointers, since a packed on-disk record has no room for them.
type PGInfoSuperblock struct {
	ID               uint16
	ReplicaSetUUID   uuid.UUID
	PGSizeBytes      uint64
	IndexTableUUID   uuid.UUID
	BlobSequenceNum  uint64
	ShardSequenceNum uint64
	ActiveBlobCount  uint64
	TombstoneCount   uint64
	OccupiedBlocks   uint64
	Members          []Member
	ChunkIDs         []uint32
}

// Encode serializes the superblock, prefixed with a DataHeader so recovery
// can validate magic/version before trusting NumMembers/NumChunks as
// trailer lengths.
func (sb PGInfoSuperblock) Encode() []byte {
	buf := NewDataHeader(RecordTypePGInfo).Encode(nil)

	var fixed [2 + 4 + 4 + 16 + 8 + 16 + 8 + 8 + 8 + 8 + 8]byte
	off := 0
	binary.LittleEndian.PutUint16(fixed[off:], sb.ID)
	off += 2
	binary.LittleEndian.PutUint32(fixed[off:], uint32(len(sb.Members)))
	off += 4
	binary.LittleEndian.PutUint32(fixed[off:], uint32(len(sb.ChunkIDs)))
	off += 4
	copy(fixed[off:off+16], sb.ReplicaSetUUID[:])
	off += 16
	binary.LittleEndian.PutUint64(fixed[off:], sb.PGSizeBytes)
	off += 8
	copy(fixed[off:off+16], sb.IndexTableUUID[:])
	off += 16
	binary.LittleEndian.PutUint64(fixed[off:], sb.BlobSequenceNum)
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], sb.ShardSequenceNum)
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], sb.ActiveBlobCount)
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], sb.TombstoneCount)
	off += 8
	binary.LittleEndian.PutUint64(fixed[off:], sb.OccupiedBlocks)
	buf = append(buf, fixed[:]...)

	for _, m := range sb.Members {
		buf = encodeMember(buf, m)
	}
	for _, c := range sb.ChunkIDs {
		var cb [4]byte
		binary.LittleEndian.PutUint32(cb[:], c)
		buf = append(buf, cb[:]...)
	}
	return buf
}

// DecodePGInfoSuperblock is the inverse of Encode.
func DecodePGInfoSuperblock(buf []byte) (PGInfoSuperblock, error) {
	if _, err := DecodeDataHeader(buf); err != nil {
		return PGInfoSuperblock{}, err
	}
	buf = buf[HeaderSize:]

	const fixedLen = 2 + 4 + 4 + 16 + 8 + 16 + 8 + 8 + 8 + 8 + 8
	if len(buf) < fixedLen {
		return PGInfoSuperblock{}, errors.New("codec: short buffer for PGInfoSuperblock")
	}

	var sb PGInfoSuperblock
	off := 0
	sb.ID = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	numMembers := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	numChunks := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	copy(sb.ReplicaSetUUID[:], buf[off:off+16])
	off += 16
	sb.PGSizeBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(sb.IndexTableUUID[:], buf[off:off+16])
	off += 16
	sb.BlobSequenceNum = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	sb.ShardSequenceNum = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	sb.ActiveBlobCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	sb.TombstoneCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	sb.OccupiedBlocks = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	need := numMembers*memberSize + numChunks*4
	if len(buf)-off < need {
		return PGInfoSuperblock{}, errors.New("codec: truncated PGInfoSuperblock trailer")
	}

	sb.Members = make([]Member, numMembers)
	for i := 0; i < numMembers; i++ {
		sb.Members[i] = decodeMember(buf[off : off+memberSize])
		off += memberSize
	}
	sb.ChunkIDs = make([]uint32, numChunks)
	for i := 0; i < numChunks; i++ {
		sb.ChunkIDs[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	return sb, nil
}
