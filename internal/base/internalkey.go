package base

// InternalKeyKind distinguishes how an index entry should be treated
// during iteration. The route index only ever stores one entry per
// BlobRouteKey (enforced by the skiplist's "no overwrite" contract), so
// the only kind in use is KindRoute; tombstoning is a value-level change
// (see MultiBlkId.IsTombstone), not a different kind.
type InternalKeyKind uint8

const KindRoute InternalKeyKind = 0

// InternalKeyTrailer packs a kind byte after the 56-bit reserved field.
// The route index never has two entries with the same logical key, so the
// trailer exists only so the skiplist's generic splice/compare logic
// keeps working unmodified against a key layout it wasn't written
// specifically for.
type InternalKeyTrailer uint64

func MakeTrailer(kind InternalKeyKind) InternalKeyTrailer {
	return InternalKeyTrailer(kind)
}

func (t InternalKeyTrailer) Kind() InternalKeyKind { return InternalKeyKind(t & 0xff) }

// InternalKey is the key type stored in the skiplist: the encoded
// BlobRouteKey bytes plus a trailer.
type InternalKey struct {
	LogicalKey []byte
	Trailer    InternalKeyTrailer
}

func MakeInternalKey(logicalKey []byte) InternalKey {
	return InternalKey{LogicalKey: logicalKey, Trailer: MakeTrailer(KindRoute)}
}

// InternalKV is a key paired with its encoded MultiBlkId value.
type InternalKV struct {
	K InternalKey
	V []byte
}
