package mathx

import "testing"

func TestNumSHCoeffs(t *testing.T) {
	cases := map[int]int{0: 1, 1: 4, 2: 9, 3: 16}
	for degree, want := range cases {
		if got := NumSHCoeffs(degree); got != want {
			t.Fatalf("NumSHCoeffs(%d) = %d, want %d", degree, got, want)
		}
	}
}

func TestSHBasisWeights_DegreeZeroIsConstant(t *testing.T) {
	w := SHBasisWeights(0, Vec3{1, 0, 0})
	if len(w) != 1 {
		t.Fatalf("len(weights) = %d, want 1", len(w))
	}
	if w[0] != shC0 {
		t.Fatalf("w[0] = %v, want shC0 %v", w[0], shC0)
	}
	// The DC term must not depend on view direction.
	w2 := SHBasisWeights(0, Vec3{0, 1, 0})
	if w2[0] != w[0] {
		t.Fatalf("DC weight changed with direction: %v vs %v", w[0], w2[0])
	}
}

func TestSHBasisWeights_LengthGrowsWithDegree(t *testing.T) {
	dir := Vec3{0, 0, 1}
	for degree := 0; degree <= MaxSHDegree; degree++ {
		w := SHBasisWeights(degree, dir)
		if len(w) != NumSHCoeffs(degree) {
			t.Fatalf("degree %d: len(weights) = %d, want %d", degree, len(w), NumSHCoeffs(degree))
		}
	}
}

func TestSHBasisWeights_HigherDegreesExtendLowerPrefix(t *testing.T) {
	dir := Vec3{0.2, -0.5, 0.8}.Normalize()
	w1 := SHBasisWeights(1, dir)
	w3 := SHBasisWeights(3, dir)
	for i := range w1 {
		if w1[i] != w3[i] {
			t.Fatalf("coefficient %d differs between degree 1 and degree 3 evaluation: %v vs %v", i, w1[i], w3[i])
		}
	}
}

func TestEvalSH_DegreeZeroReturnsScaledDCCoefficient(t *testing.T) {
	dc := Vec3{0.4, -0.2, 0.1}
	coeffs := []Vec3{dc}
	got := EvalSH(0, coeffs, Vec3{0, 0, 1})
	want := dc.Scale(shC0)
	for i := range got {
		if !approxEq(got[i], want[i], 1e-5) {
			t.Fatalf("EvalSH(degree 0)[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEvalSH_ZeroCoefficientsGiveZeroColor(t *testing.T) {
	coeffs := make([]Vec3, NumSHCoeffs(3))
	got := EvalSH(3, coeffs, Vec3{0.3, 0.3, 0.9}.Normalize())
	if got != (Vec3{0, 0, 0}) {
		t.Fatalf("EvalSH with all-zero coefficients = %v, want zero", got)
	}
}

func TestEvalSH_MatchesWeightedSumOfBasisWeights(t *testing.T) {
	dir := Vec3{0.1, 0.6, 0.3}.Normalize()
	degree := 2
	coeffs := make([]Vec3, NumSHCoeffs(degree))
	for i := range coeffs {
		coeffs[i] = Vec3{float32(i) * 0.1, float32(i) * -0.05, float32(i) * 0.02}
	}
	got := EvalSH(degree, coeffs, dir)

	weights := SHBasisWeights(degree, dir)
	var want Vec3
	for k, w := range weights {
		want = want.Add(coeffs[k].Scale(w))
	}
	for i := range got {
		if !approxEq(got[i], want[i], 1e-5) {
			t.Fatalf("EvalSH()[%d] = %v, want %v (manual weighted sum)", i, got[i], want[i])
		}
	}
}
