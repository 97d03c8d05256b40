//go:build !nogpu

package gpu

import (
	"math/rand"
	"sort"
	"testing"
)

// TestRadixSortU32_S1 is spec.md §8 scenario S1: a small key set with
// duplicates and a payload derived from the key (key*2+5), verified
// against the stdlib's stable argsort.
func TestRadixSortU32_S1(t *testing.T) {
	keys := []uint32{5, 1, 6, 123, 74657, 123, 999, 16777339, 6, 7, 8, 0, 0, 17, 0}
	payload := make([]uint32, len(keys))
	for i, k := range keys {
		payload[i] = k*2 + 5
	}

	want := append([]uint32(nil), keys...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	RadixSortU32(keys, payload)

	for i := range keys {
		if keys[i] != want[i] {
			t.Fatalf("sorted key[%d] = %d, want %d", i, keys[i], want[i])
		}
		if payload[i] != keys[i]*2+5 {
			t.Fatalf("payload[%d] = %d did not travel with its key %d", i, payload[i], keys[i])
		}
	}
}

func TestArgSortU32_FixedPoint(t *testing.T) {
	sorted := []uint32{0, 1, 2, 3, 4, 5, 6, 7}
	perm := ArgSortU32(sorted)
	for i, p := range perm {
		if p != i {
			t.Fatalf("sorting a sorted array should be a fixed point, got perm[%d] = %d", i, p)
		}
	}
}

func TestArgSortU32_InversePermutationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	keys := make([]uint32, 200)
	for i := range keys {
		keys[i] = uint32(rng.Intn(1000))
	}

	perm := ArgSortU32(keys)
	inv := InvertPermutation(perm)

	// Applying perm then inv recovers the original order (spec.md §8
	// property 8).
	sortedKeys := make([]uint32, len(keys))
	for i, p := range perm {
		sortedKeys[i] = keys[p]
	}
	for i := 1; i < len(sortedKeys); i++ {
		if sortedKeys[i] < sortedKeys[i-1] {
			t.Fatalf("sortedKeys not ascending at %d: %d < %d", i, sortedKeys[i], sortedKeys[i-1])
		}
	}
	for i, k := range keys {
		if sortedKeys[inv[i]] != k {
			t.Fatalf("inverse permutation did not recover original order at %d", i)
		}
	}
}

func TestSortByDepth(t *testing.T) {
	depth := []float32{3.5, 1.0, 2.25, 0.1}
	gid := []uint32{0, 1, 2, 3}
	SortByDepth(gid, depth)
	want := []uint32{3, 1, 2, 0} // depths 0.1, 1.0, 2.25, 3.5
	for i := range gid {
		if gid[i] != want[i] {
			t.Fatalf("gid[%d] = %d, want %d", i, gid[i], want[i])
		}
	}
}
