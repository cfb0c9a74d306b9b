package chunkselector

import "container/heap"

// freeHeap is a min-heap of free physical chunk ids within one device.
// Picking the smallest free id keeps allocation deterministic for a given
// starting state without requiring replicas to agree on which physical
// chunks back a PG. Grounded on cockroachdb-pebble's own use of
// container/heap for priority structures (blob_rewrite.go,
// internal/manifest/virtual_backings.go) — no third-party heap/priority-
// queue library appears anywhere in the retrieval pack, so container/heap
// is the idiomatic choice here too.
type freeHeap []uint32

func (h freeHeap) Len() int            { return len(h) }
func (h freeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *freeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func newFreeHeap(ids []uint32) *freeHeap {
	h := freeHeap(append([]uint32{}, ids...))
	heap.Init(&h)
	return &h
}

func (h *freeHeap) popN(n int) ([]uint32, bool) {
	if h.Len() < n {
		return nil, false
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = heap.Pop(h).(uint32)
	}
	return out, true
}

func (h *freeHeap) push(id uint32) {
	heap.Push(h, id)
}
