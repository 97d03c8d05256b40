package optim

import (
	"math"
	"testing"
)

func TestLRSchedule_NoDecayHoldsInitial(t *testing.T) {
	s := LRSchedule{Initial: 1e-3}
	for _, step := range []int{0, 1, 1000} {
		if got := s.At(step); got != 1e-3 {
			t.Fatalf("At(%d) = %v, want 1e-3", step, got)
		}
	}
}

func TestLRSchedule_DecaysFromInitialToFinal(t *testing.T) {
	s := LRSchedule{Initial: 1e-2, Final: 1e-4, DecaySteps: 100}
	if got := s.At(0); math.Abs(got-1e-2) > 1e-12 {
		t.Fatalf("At(0) = %v, want 1e-2", got)
	}
	if got := s.At(100); math.Abs(got-1e-4) > 1e-12 {
		t.Fatalf("At(100) = %v, want 1e-4", got)
	}
	if got := s.At(200); got != s.At(100) {
		t.Fatalf("At(200) = %v, want At(100) = %v (holds at Final past DecaySteps)", got, s.At(100))
	}
	mid := s.At(50)
	if mid >= 1e-2 || mid <= 1e-4 {
		t.Fatalf("At(50) = %v, want strictly between Final and Initial", mid)
	}
}

// TestUpdateScaled_NilEquivalentToAllOnes checks spec.md §8 invariant 5:
// Adam with a nil/all-ones scaling is numerically identical to standard
// Update.
func TestUpdateScaled_NilEquivalentToAllOnes(t *testing.T) {
	cfg := DefaultConfig()
	a1 := New(cfg)
	a2 := New(cfg)

	params1 := []float32{1, 2, 3}
	params2 := []float32{1, 2, 3}
	grad := []float32{0.1, -0.2, 0.05}
	ones := []float32{1, 1, 1}

	a1.Update(ParamMeans, params1, grad)
	a2.UpdateScaled(ParamMeans, params2, grad, ones)

	for i := range params1 {
		if params1[i] != params2[i] {
			t.Fatalf("param[%d]: Update=%v, UpdateScaled(ones)=%v, want equal", i, params1[i], params2[i])
		}
	}
}

func TestUpdateScaled_ZeroGradLeavesParamsUnchanged(t *testing.T) {
	a := New(DefaultConfig())
	params := []float32{1, 2, 3}
	grad := []float32{0, 0, 0}
	a.Update(ParamMeans, params, grad)
	for i, p := range params {
		if p != []float32{1, 2, 3}[i] {
			t.Fatalf("param[%d] = %v after zero-grad update, want unchanged", i, p)
		}
	}
}

func TestResize_GrowZeroFillsNewEntries(t *testing.T) {
	a := New(DefaultConfig())
	a.Resize(ParamMeans, 2, nil)
	params := []float32{1, 1}
	a.Update(ParamMeans, params, []float32{1, 1})

	a.Resize(ParamMeans, 4, nil)
	mom := a.mom[ParamMeans]
	if len(mom.m) != 4 || len(mom.v) != 4 {
		t.Fatalf("Resize grow: len(m)=%d len(v)=%d, want 4", len(mom.m), len(mom.v))
	}
	if mom.m[2] != 0 || mom.m[3] != 0 {
		t.Fatalf("Resize grow: new moment entries = %v, %v, want zero", mom.m[2], mom.m[3])
	}
}

func TestResize_KeepSubsetsMoments(t *testing.T) {
	a := New(DefaultConfig())
	a.Resize(ParamMeans, 3, nil)
	params := []float32{1, 1, 1}
	a.Update(ParamMeans, params, []float32{1, 2, 3})

	a.Resize(ParamMeans, 2, []int{2, 0})
	mom := a.mom[ParamMeans]
	if len(mom.m) != 2 {
		t.Fatalf("len(m) after Keep-resize = %d, want 2", len(mom.m))
	}
}

func TestFastForward(t *testing.T) {
	a := New(DefaultConfig())
	a.FastForward(500)
	if a.Step() != 500 {
		t.Fatalf("Step() after FastForward(500) = %d, want 500", a.Step())
	}
}

func TestSHScaling_DCBandUnscaled(t *testing.T) {
	out := SHScaling(2, 4, 20)
	// splat 0, coeff 0 (DC), all 3 channels should be 1.
	for c := 0; c < 3; c++ {
		if out[c] != 1 {
			t.Fatalf("DC band scaling[%d] = %v, want 1", c, out[c])
		}
	}
	// splat 0, coeff 1 (first higher-order band) should be 1/20.
	base := 1 * 3
	want := float32(1.0 / 20)
	if out[base] != want {
		t.Fatalf("higher-order band scaling = %v, want %v", out[base], want)
	}
}

func TestSHScaling_ZeroShScaleTreatedAsOne(t *testing.T) {
	out := SHScaling(1, 2, 0)
	for _, v := range out {
		if v != 1 {
			t.Fatalf("scaling with shScale=0 = %v, want all ones", v)
		}
	}
}

func TestEndStep(t *testing.T) {
	a := New(DefaultConfig())
	a.EndStep()
	a.EndStep()
	if a.Step() != 2 {
		t.Fatalf("Step() after two EndStep calls = %d, want 2", a.Step())
	}
}
