package compare

import "bytes"

type Compare func(a, b []byte) int

// Bytes is the default comparator for the route index: BlobRouteKey.Encode
// produces big-endian (shard_id, blob_id) pairs, so byte-lexicographic
// order already matches numeric (shard_id, blob_id) order.
func Bytes(a, b []byte) int {
	return bytes.Compare(a, b)
}
