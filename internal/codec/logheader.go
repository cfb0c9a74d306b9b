package codec

import (
	"encoding/binary"
	"errors"
)

// MsgType tags a replicated log entry so the Replication State Machine
// (package rsm) knows which manager's commit handler to invoke.
type MsgType uint8

const (
	CreatePGMsg    MsgType = 1
	CreateShardMsg MsgType = 2
	SealShardMsg   MsgType = 3
	PutBlobMsg     MsgType = 4
	DelBlobMsg     MsgType = 5
)

// LogHeaderSize is the encoded length of a LogHeader.
const LogHeaderSize = 1 + 4 + 4 + 4

// LogHeader is the fixed header carried by every replicated log entry,
// ahead of the message-specific payload (JSON for CREATE_PG, packed
// structs for the rest).
type LogHeader struct {
	MsgType    MsgType
	PayloadSize uint32
	PayloadCRC  uint32
	Seal        uint32
}

// NewLogHeader builds a header over payload, computing payload_crc and the
// seal in one step.
func NewLogHeader(t MsgType, payload []byte) LogHeader {
	h := LogHeader{
		MsgType:     t,
		PayloadSize: uint32(len(payload)),
		PayloadCRC:  CRC32(payload),
	}
	h.Seal = h.computeSeal()
	return h
}

// computeSeal hashes the preceding fields (msg_type, payload_size,
// payload_crc) so a corrupted header — as opposed to a corrupted payload —
// is detectable even if payload_crc still happens to match truncated data.
func (h LogHeader) computeSeal() uint32 {
	var buf [9]byte
	buf[0] = byte(h.MsgType)
	binary.LittleEndian.PutUint32(buf[1:5], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[5:9], h.PayloadCRC)
	return CRC32(buf[:])
}

// Valid reports whether the header's own seal matches and, if payload is
// non-nil, whether the payload's CRC matches too.
func (h LogHeader) Valid(payload []byte) bool {
	if h.Seal != h.computeSeal() {
		return false
	}
	if payload != nil && CRC32(payload) != h.PayloadCRC {
		return false
	}
	return true
}

// Encode appends the header's wire bytes to buf.
func (h LogHeader) Encode(buf []byte) []byte {
	var tmp [LogHeaderSize]byte
	tmp[0] = byte(h.MsgType)
	binary.LittleEndian.PutUint32(tmp[1:5], h.PayloadSize)
	binary.LittleEndian.PutUint32(tmp[5:9], h.PayloadCRC)
	binary.LittleEndian.PutUint32(tmp[9:13], h.Seal)
	return append(buf, tmp[:]...)
}

// DecodeLogHeader parses a LogHeader from the front of buf.
func DecodeLogHeader(buf []byte) (LogHeader, error) {
	if len(buf) < LogHeaderSize {
		return LogHeader{}, errShortLogHeader
	}
	return LogHeader{
		MsgType:     MsgType(buf[0]),
		PayloadSize: binary.LittleEndian.Uint32(buf[1:5]),
		PayloadCRC:  binary.LittleEndian.Uint32(buf[5:9]),
		Seal:        binary.LittleEndian.Uint32(buf[9:13]),
	}, nil
}

var errShortLogHeader = errors.New("codec: short buffer for LogHeader")
