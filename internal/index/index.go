// Package index implements the Index Adapter: the per-PG mapping from
// BlobRouteKey (shard_id, blob_id) to the MultiBlkId holding its data,
// backed by the lock-free concurrent skiplist.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"shardstore/internal/base"
	"shardstore/internal/compare"
	"shardstore/internal/skiplist"
)

// DefaultTableSize is the arena size handed to a new per-PG index table
// when the caller does not need to size it explicitly.
const DefaultTableSize = 64 << 20

var (
	// ErrNotFound is returned by MoveToTombstone when the key has no
	// entry; Get and Lookup report a missing key through their bool
	// result instead.
	ErrNotFound = errors.New("index: key not found")
	// ErrAlreadyExists is returned by Insert when the key already has an
	// entry, matching the skiplist's insert-once semantics.
	ErrAlreadyExists = skiplist.ErrRecordExists
)

// Table is one PG's route-key index: an append-only map from
// BlobRouteKey to MultiBlkId, with deletion represented as an in-place
// tombstone write rather than node removal, since the underlying
// skiplist never frees or unlinks nodes.
type Table struct {
	skl *skiplist.Skiplist
}

// New creates an empty table sized to hold approximately size bytes of
// route-key/extent pairs before running out of arena space.
func New(size uint) *Table {
	return &Table{skl: skiplist.New(size, compare.Bytes)}
}

// Open wraps an existing skiplist as a table. Nothing in the module
// calls it; every table in use is created by New.
func Open(skl *skiplist.Skiplist) *Table {
	return &Table{skl: skl}
}

// Skiplist exposes the backing skiplist. Nothing in the module calls it;
// PGBlobIterator streams entries through Ascend.
func (t *Table) Skiplist() *skiplist.Skiplist { return t.skl }

// Insert records key -> loc. It fails with ErrAlreadyExists if key
// already has an entry, including a tombstoned one: MoveToTombstone
// overwrites the value in place and leaves the node, so a key can be
// inserted at most once per table. blob_id is assigned once per PG, so a
// repeated key is a logic error.
func (t *Table) Insert(key base.BlobRouteKey, loc base.MultiBlkId) error {
	err := t.skl.Add(base.MakeInternalKey(key.Encode()), loc.Encode())
	if errors.Is(err, skiplist.ErrRecordExists) {
		return fmt.Errorf("index: %w: %+v", ErrAlreadyExists, key)
	}
	return err
}

// Get returns the extent stored for key. found is false both when the
// key was never inserted and when IsTombstone reports true on the stored
// value — callers that need to distinguish "never existed" from
// "deleted" should inspect Lookup instead.
func (t *Table) Get(key base.BlobRouteKey) (base.MultiBlkId, bool) {
	loc, ok := t.Lookup(key)
	if !ok || loc.IsTombstone() {
		return nil, false
	}
	return loc, true
}

// Lookup returns the raw decoded value for key regardless of whether it
// is a tombstone, or ok=false if key was never inserted.
func (t *Table) Lookup(key base.BlobRouteKey) (base.MultiBlkId, bool) {
	raw, ok := t.skl.Get(base.MakeInternalKey(key.Encode()))
	if !ok {
		return nil, false
	}
	return base.DecodeMultiBlkId(raw), true
}

// MoveToTombstone overwrites key's stored extent with the tombstone
// sentinel in place. It returns ErrNotFound if key has no entry.
func (t *Table) MoveToTombstone(key base.BlobRouteKey) error {
	ik := base.MakeInternalKey(key.Encode())
	raw, ok := t.skl.Get(ik)
	if !ok {
		return fmt.Errorf("index: %w: %+v", ErrNotFound, key)
	}
	// The skiplist's value slot is fixed at whatever size Insert
	// allocated, so a multi-extent entry's slot can't shrink to the
	// tombstone's natural encoding. Instead overwrite the count prefix
	// to 1 and zero the first extent; DecodeMultiBlkId only reads as
	// many extents as the count says, so the unused tail of the slot is
	// simply ignored on every subsequent read.
	binary.LittleEndian.PutUint16(raw[0:2], 1)
	for i := 2; i < 2+base.BlkExtentSize && i < len(raw); i++ {
		raw[i] = 0
	}
	return nil
}

// Ascend calls fn for every (key, value) pair in ascending key order,
// i.e. ascending (shard_id, blob_id) order, stopping early if fn returns
// false. It backs the snapshot streamer's per-PG iteration.
func (t *Table) Ascend(fn func(key base.BlobRouteKey, loc base.MultiBlkId) bool) {
	t.skl.Ascend(func(ik base.InternalKey, raw []byte) bool {
		key := base.DecodeBlobRouteKey(ik.LogicalKey)
		loc := base.DecodeMultiBlkId(raw)
		return fn(key, loc)
	})
}
