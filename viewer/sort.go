package viewer

import "github.com/gogpu/gsplat/internal/gpu"

// SortByDepth depth-sorts the visible list back-to-front (painter's
// order, required for correct alpha blending under `drawIndexedIndirect`),
// dispatching C1's bitonic sort primitive on a padded-to-power-of-two
// key/payload pair (spec.md §4.9's Sort step).
func SortByDepth(visible []VisibleSplat) []VisibleSplat {
	n := len(visible)
	if n == 0 {
		return visible
	}
	keys := make([]uint32, n)
	payload := make([]uint32, n)
	for i, v := range visible {
		// Float32SortKey's monotone bit trick only holds for non-negative
		// depths, so this sorts front-to-back ascending and reverses
		// below for the back-to-front painter's order blending needs.
		keys[i] = gpu.Float32SortKey(v.Depth)
		payload[i] = uint32(i)
	}
	gpu.BitonicSortU32(keys, payload)

	out := make([]VisibleSplat, n)
	for i, p := range payload {
		out[n-1-i] = visible[p]
	}
	return out
}
