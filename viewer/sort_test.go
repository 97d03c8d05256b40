package viewer

import "testing"

func TestSortByDepth_BackToFrontOrder(t *testing.T) {
	visible := []VisibleSplat{
		{Index: 0, Depth: 3.5},
		{Index: 1, Depth: 1.0},
		{Index: 2, Depth: 2.25},
	}
	sorted := SortByDepth(visible)
	if len(sorted) != 3 {
		t.Fatalf("len(sorted) = %d, want 3", len(sorted))
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Depth < sorted[i-1].Depth {
			t.Fatalf("sorted[%d].Depth = %v < sorted[%d].Depth = %v, want back-to-front (descending)", i, sorted[i].Depth, i-1, sorted[i-1].Depth)
		}
	}
	if sorted[0].Index != 0 {
		t.Fatalf("farthest splat index = %d, want 0 (depth 3.5)", sorted[0].Index)
	}
	if sorted[len(sorted)-1].Index != 1 {
		t.Fatalf("nearest splat index = %d, want 1 (depth 1.0)", sorted[len(sorted)-1].Index)
	}
}

func TestSortByDepth_EmptyInput(t *testing.T) {
	if got := SortByDepth(nil); len(got) != 0 {
		t.Fatalf("SortByDepth(nil) = %v, want empty", got)
	}
}

func TestSortByDepth_SingleElement(t *testing.T) {
	got := SortByDepth([]VisibleSplat{{Index: 5, Depth: 1}})
	if len(got) != 1 || got[0].Index != 5 {
		t.Fatalf("SortByDepth(single) = %v, want unchanged single element", got)
	}
}
