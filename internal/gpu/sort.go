//go:build !nogpu

package gpu

import "math"

// radixBits is the width of one radix-sort digit; 8 bits gives 4 passes
// over a 32-bit key, matching the pass count the LSD radix sort compute
// kernel dispatches (one pass = one count + one scatter dispatch, spec.md
// §4.1's depth sort and the per-tile intersection sort both reuse this).
const radixBits = 8
const radixBuckets = 1 << radixBits
const radixMask = radixBuckets - 1

// RadixSortU32 stably sorts keys ascending by treating each uint32 as an
// unsigned integer key, carrying payload along (payload[i] moves with
// keys[i]). Both slices are sorted in place. This is the CPU reference
// for C1's GPU radix-sort kernel: same four 8-bit digit passes, same
// stable count-then-scatter structure, operating on a host slice instead
// of a GPU storage buffer.
//
// keys and payload must be the same length, or RadixSortU32 panics.
func RadixSortU32(keys, payload []uint32) {
	if len(keys) != len(payload) {
		panic("gpu: RadixSortU32: keys and payload length mismatch")
	}
	n := len(keys)
	if n < 2 {
		return
	}

	keysTmp := make([]uint32, n)
	payloadTmp := make([]uint32, n)
	src, srcPayload := keys, payload
	dst, dstPayload := keysTmp, payloadTmp

	for shift := 0; shift < 32; shift += radixBits {
		var counts [radixBuckets + 1]int
		for _, k := range src {
			digit := (k >> shift) & radixMask
			counts[digit+1]++
		}
		for i := 0; i < radixBuckets; i++ {
			counts[i+1] += counts[i]
		}
		offsets := counts // prefix-summed bucket start offsets

		for i, k := range src {
			digit := (k >> shift) & radixMask
			pos := offsets[digit]
			offsets[digit]++
			dst[pos] = k
			dstPayload[pos] = srcPayload[i]
		}

		src, dst = dst, src
		srcPayload, dstPayload = dstPayload, srcPayload
	}

	// 32/radixBits = 4 passes, an even count, so src already aliases the
	// caller's original keys/payload slices; copy only if that parity
	// assumption is ever violated by a future radixBits change.
	if &src[0] != &keys[0] {
		copy(keys, src)
		copy(payload, srcPayload)
	}
}

// ArgSortU32 returns the permutation that stably sorts keys ascending,
// without mutating keys: result[i] is the index into the original keys
// slice that belongs at sorted position i. Sorting an already-sorted
// array is a fixed point (result = 0..n-1), and applying the inverse
// permutation to the sorted output recovers the original order (spec.md
// §8 property 8).
func ArgSortU32(keys []uint32) []int {
	n := len(keys)
	keysCopy := make([]uint32, n)
	copy(keysCopy, keys)
	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	RadixSortU32(keysCopy, indices)
	out := make([]int, n)
	for i, idx := range indices {
		out[i] = int(idx)
	}
	return out
}

// InvertPermutation returns inv such that inv[perm[i]] == i, the inverse
// of a permutation produced by ArgSortU32.
func InvertPermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Float32SortKey converts a strictly positive float32 depth into a
// uint32 whose unsigned ordering matches the float's numeric ordering,
// the property spec.md §4.1's depth sort relies on ("depths are strictly
// positive, so their bit pattern is monotone as unsigned integers"). Only
// valid for non-negative, non-NaN inputs; the rasterizer never produces
// negative depths (splats behind the near plane are culled before this
// point).
func Float32SortKey(depth float32) uint32 {
	return math.Float32bits(depth)
}

// SortByDepth stably sorts compactGID in place by ascending depth
// (front-to-back); depth itself is left unchanged. This is C1's depth-sort primitive
// specialized for the forward rasterizer's "Depth sort" pass (spec.md
// §4.1), built on RadixSortU32 via Float32SortKey.
func SortByDepth(compactGID []uint32, depth []float32) {
	keys := make([]uint32, len(depth))
	for i, d := range depth {
		keys[i] = Float32SortKey(d)
	}
	RadixSortU32(keys, compactGID)
}
