// Package base holds value types shared by the codec, index, and manager
// packages: sequence numbers and the route key used to address a blob
// inside a PG's index table.
package base

import "sync/atomic"

// SeqNum is a monotonically increasing counter. No other package uses it
// or AtomicSeqNum: blob_id, the per-PG shard sequence and the PG's durable
// counters are plain uint64 fields on pg.Entry.
type SeqNum uint64

const SeqNumMax = SeqNum(^uint64(0) >> 8)

type AtomicSeqNum struct {
	value atomic.Uint64
}

// Load atomically loads and returns the stored SeqNum.
func (asn *AtomicSeqNum) Load() SeqNum {
	return SeqNum(asn.value.Load())
}

// Store atomically stores s.
func (asn *AtomicSeqNum) Store(s SeqNum) {
	asn.value.Store(uint64(s))
}

// Add atomically adds delta to asn and returns the new value.
func (asn *AtomicSeqNum) Add(delta SeqNum) SeqNum {
	return SeqNum(asn.value.Add(uint64(delta)))
}

// CompareAndSwap executes the compare-and-swap operation.
func (asn *AtomicSeqNum) CompareAndSwap(old, new SeqNum) bool {
	return asn.value.CompareAndSwap(uint64(old), uint64(new))
}
