// Package chunkselector implements the Chunk Selector: a process-wide,
// uniformly-sized chunk pool per device, with per-PG chunk assignment and
// a per-PG busy/free tracker used by the shard lifecycle.
package chunkselector

import (
	"sync"
)

// DeviceID identifies one storage device's chunk pool.
type DeviceID uint32

// Selector tracks, per device, which physical chunks are unassigned, and
// per PG, which of its assigned chunks are currently consumed by an OPEN
// shard. All state is guarded by a single mutex: allocation and release
// are rare relative to blob I/O, so a single lock keeps the bookkeeping
// simple without becoming a hot-path bottleneck.
type Selector struct {
	chunkSize uint64

	mu      sync.Mutex
	devices map[DeviceID]*deviceState
	pgs     map[uint16]*pgChunks
}

type deviceState struct {
	total uint32
	free  *freeHeap
}

type pgChunks struct {
	device DeviceID
	// chunks[i] is the physical chunk id backing virtual chunk i.
	chunks []uint32
	busy   map[uint32]bool // keyed by virtual chunk id
}

// New creates a Selector for the given device pools, each with
// totalChunks chunks of chunkSize bytes, all initially free.
func New(chunkSize uint64, deviceTotals map[DeviceID]uint32) *Selector {
	s := &Selector{
		chunkSize: chunkSize,
		devices:   make(map[DeviceID]*deviceState, len(deviceTotals)),
		pgs:       make(map[uint16]*pgChunks),
	}
	for dev, total := range deviceTotals {
		ids := make([]uint32, total)
		for i := range ids {
			// Chunk id 0 is reserved as "unassigned", mirroring the
			// arena's offset-0-is-nil convention.
			ids[i] = uint32(i) + 1
		}
		s.devices[dev] = &deviceState{total: total, free: newFreeHeap(ids)}
	}
	return s
}

// GetChunkSize returns the uniform chunk size in bytes.
func (s *Selector) GetChunkSize() uint64 { return s.chunkSize }

// MostAvailNumChunks returns the maximum number of free chunks on any
// single device.
func (s *Selector) MostAvailNumChunks() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint32
	for _, d := range s.devices {
		if n := uint32(d.free.Len()); n > max {
			max = n
		}
	}
	return max
}

// SelectChunksForPG atomically reserves floor(sizeBytes/chunkSize) chunks
// for pgID from whichever device has enough free capacity, preferring the
// device with the most free chunks. It returns the number of chunks
// reserved, or ok=false if no device has enough.
func (s *Selector) SelectChunksForPG(pgID uint16, sizeBytes uint64) (numChunks uint32, ok bool) {
	want := uint32(sizeBytes / s.chunkSize)
	if want == 0 {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.pgs[pgID]; found {
		// Idempotent by pg_id: a PG already holding chunks is a no-op,
		// matching PG Manager's create_pg idempotence.
		return uint32(len(existing.chunks)), true
	}

	var bestDev DeviceID
	var bestFree uint32 = 0
	found := false
	for dev, d := range s.devices {
		if f := uint32(d.free.Len()); f >= want && (!found || f > bestFree) {
			bestDev, bestFree, found = dev, f, true
		}
	}
	if !found {
		return 0, false
	}

	chunks, ok := s.devices[bestDev].free.popN(int(want))
	if !ok {
		return 0, false
	}
	s.pgs[pgID] = &pgChunks{device: bestDev, chunks: chunks, busy: make(map[uint32]bool)}
	return want, true
}

// RecoverPGChunks restores a PG's chunk assignment at replay, without
// touching the device free heaps (those are rebuilt afterward by
// RecoverPerDeviceHeap once every PG has been recovered).
func (s *Selector) RecoverPGChunks(pgID uint16, device DeviceID, chunks []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]uint32, len(chunks))
	copy(cp, chunks)
	s.pgs[pgID] = &pgChunks{device: device, chunks: cp, busy: make(map[uint32]bool)}
}

// RecoverPerDeviceHeap rebuilds each device's free-chunk heap from the
// complement of every recovered PG's chunk assignment. It must be called
// once, after every PG has been recovered via RecoverPGChunks.
func (s *Selector) RecoverPerDeviceHeap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned := make(map[DeviceID]map[uint32]bool)
	for _, pg := range s.pgs {
		m := assigned[pg.device]
		if m == nil {
			m = make(map[uint32]bool)
			assigned[pg.device] = m
		}
		for _, c := range pg.chunks {
			m[c] = true
		}
	}
	for dev, d := range s.devices {
		taken := assigned[dev]
		free := make([]uint32, 0, d.total)
		for i := uint32(1); i <= d.total; i++ {
			if !taken[i] {
				free = append(free, i)
			}
		}
		d.free = newFreeHeap(free)
	}
}

// AvailNumChunks returns the number of pgID's assigned chunks not
// currently consumed by an OPEN shard.
func (s *Selector) AvailNumChunks(pgID uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pgs[pgID]
	if !ok {
		return 0
	}
	return uint32(len(pg.chunks) - len(pg.busy))
}

// AvailBlks returns AvailNumChunks expressed in blocks, given blockSize.
func (s *Selector) AvailBlks(pgID uint16, blockSize uint64) uint64 {
	return uint64(s.AvailNumChunks(pgID)) * s.chunkSize / blockSize
}

// NumChunks returns the total number of chunks assigned to pgID.
func (s *Selector) NumChunks(pgID uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pgs[pgID]
	if !ok {
		return 0
	}
	return uint32(len(pg.chunks))
}

// ChunkIDs returns a copy of pgID's ordered physical chunk list; index i
// is virtual chunk i.
func (s *Selector) ChunkIDs(pgID uint16) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pgs[pgID]
	if !ok {
		return nil
	}
	out := make([]uint32, len(pg.chunks))
	copy(out, pg.chunks)
	return out
}

// ConsumeChunk marks virtual chunk vChunkID of pgID as busy (owned by an
// OPEN shard) and returns its physical chunk id. It fails if the virtual
// chunk is out of range or already busy — the Shard Manager's pre-commit
// hook uses that failure to veto a racing CREATE_SHARD.
func (s *Selector) ConsumeChunk(pgID uint16, vChunkID uint16) (pChunkID uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, found := s.pgs[pgID]
	if !found || int(vChunkID) >= len(pg.chunks) {
		return 0, false
	}
	if pg.busy[uint32(vChunkID)] {
		return 0, false
	}
	pg.busy[uint32(vChunkID)] = true
	return pg.chunks[vChunkID], true
}

// ReleaseChunk returns virtual chunk vChunkID of pgID to the free pool.
// It is idempotent so that rollback of a CREATE_SHARD can call it safely
// even if pre-commit never actually marked the chunk busy.
func (s *Selector) ReleaseChunk(pgID uint16, vChunkID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pgs[pgID]
	if !ok {
		return
	}
	delete(pg.busy, uint32(vChunkID))
}

// NextFreeVChunk returns the smallest virtual chunk id for pgID that is
// not currently busy, used by Shard Manager's create_shard to pick a
// chunk for a new shard.
func (s *Selector) NextFreeVChunk(pgID uint16) (vChunkID uint16, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, found := s.pgs[pgID]
	if !found {
		return 0, false
	}
	for i := 0; i < len(pg.chunks); i++ {
		if !pg.busy[uint32(i)] {
			return uint16(i), true
		}
	}
	return 0, false
}
