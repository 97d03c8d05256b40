//go:build !nogpu

package gpu

import (
	"math/rand"
	"sort"
	"testing"
)

func TestBitonicSortU32_MatchesStdlibSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := make([]uint32, 37) // deliberately not a power of two
	payload := make([]uint32, len(keys))
	for i := range keys {
		keys[i] = uint32(rng.Intn(1000))
		payload[i] = uint32(i)
	}

	wantOrder := append([]uint32(nil), payload...)
	sort.SliceStable(wantOrder, func(i, j int) bool { return keys[wantOrder[i]] < keys[wantOrder[j]] })
	orig := append([]uint32(nil), keys...)

	BitonicSortU32(keys, payload)

	for i := range keys {
		if keys[i] != orig[wantOrder[i]] {
			t.Fatalf("keys[%d] = %d, stdlib sort gives %d", i, keys[i], orig[wantOrder[i]])
		}
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
		t.Fatalf("keys not sorted: %v", keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("out of order at %d: %v", i, keys)
		}
	}
}

func TestBitonicSortU32_SingleElement(t *testing.T) {
	keys := []uint32{42}
	payload := []uint32{0}
	BitonicSortU32(keys, payload)
	if keys[0] != 42 || payload[0] != 0 {
		t.Fatalf("single-element sort mutated input: %v %v", keys, payload)
	}
}

func TestBitonicSortU32_PowerOfTwoLength(t *testing.T) {
	keys := []uint32{8, 1, 6, 123, 74657, 123, 999, 0}
	payload := make([]uint32, len(keys))
	for i := range payload {
		payload[i] = uint32(i) * 2
	}
	BitonicSortU32(keys, payload)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("not sorted: %v", keys)
		}
	}
}
