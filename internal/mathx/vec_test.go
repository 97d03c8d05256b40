package mathx

import (
	"math"
	"testing"
)

func approxEq(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestVec3_AddSubScaleDot(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 5, 6}
	if got := a.Add(b); got != (Vec3{5, 7, 9}) {
		t.Fatalf("Add = %v, want {5,7,9}", got)
	}
	if got := b.Sub(a); got != (Vec3{3, 3, 3}) {
		t.Fatalf("Sub = %v, want {3,3,3}", got)
	}
	if got := a.Scale(2); got != (Vec3{2, 4, 6}) {
		t.Fatalf("Scale = %v, want {2,4,6}", got)
	}
	if got := a.Dot(b); got != 32 { // 1*4+2*5+3*6
		t.Fatalf("Dot = %v, want 32", got)
	}
}

func TestVec3_Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	if got := x.Cross(y); got != (Vec3{0, 0, 1}) {
		t.Fatalf("Cross(x,y) = %v, want z-axis", got)
	}
}

func TestVec3_LenAndNormalize(t *testing.T) {
	v := Vec3{3, 4, 0}
	if got := v.Len(); !approxEq(got, 5, 1e-5) {
		t.Fatalf("Len = %v, want 5", got)
	}
	n := v.Normalize()
	if !approxEq(n.Len(), 1, 1e-5) {
		t.Fatalf("Normalize().Len() = %v, want 1", n.Len())
	}
}

func TestVec3_NormalizeZeroVectorUnchanged(t *testing.T) {
	var z Vec3
	if got := z.Normalize(); got != z {
		t.Fatalf("Normalize(zero) = %v, want unchanged zero", got)
	}
}

func TestVec3_Exp(t *testing.T) {
	v := Vec3{0, 1, 2}
	got := v.Exp()
	want := Vec3{1, float32(math.Exp(1)), float32(math.Exp(2))}
	for i := range got {
		if !approxEq(got[i], want[i], 1e-4) {
			t.Fatalf("Exp()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestQuat_IdentityAndNormalize(t *testing.T) {
	id := IdentityQuat()
	if id != (Quat{1, 0, 0, 0}) {
		t.Fatalf("IdentityQuat = %v, want {1,0,0,0}", id)
	}
	q := Quat{2, 0, 0, 0}
	if got := q.Normalize(); got != (Quat{1, 0, 0, 0}) {
		t.Fatalf("Normalize({2,0,0,0}) = %v, want identity", got)
	}
}

func TestQuat_NormalizeZeroReturnsIdentity(t *testing.T) {
	var z Quat
	if got := z.Normalize(); got != IdentityQuat() {
		t.Fatalf("Normalize(zero quat) = %v, want identity", got)
	}
}

func TestRotationMatrix_IdentityQuatIsIdentityMatrix(t *testing.T) {
	m := RotationMatrix(IdentityQuat())
	want := Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if m != want {
		t.Fatalf("RotationMatrix(identity) = %v, want identity matrix", m)
	}
}

func TestRotationMatrix_PreservesVectorLength(t *testing.T) {
	// A quarter-turn about the z axis: (w,x,y,z) = (cos(pi/4), 0, 0, sin(pi/4)).
	half := float32(math.Pi / 4)
	q := Quat{float32(math.Cos(float64(half))), 0, 0, float32(math.Sin(float64(half)))}.Normalize()
	m := RotationMatrix(q)
	v := Vec3{1, 0, 0}
	rotated := m.MulVec3(v)
	if !approxEq(rotated.Len(), 1, 1e-4) {
		t.Fatalf("rotated.Len() = %v, want 1 (rotation preserves length)", rotated.Len())
	}
	// A 90-degree rotation about z should send +x to +y.
	if !approxEq(rotated[0], 0, 1e-4) || !approxEq(rotated[1], 1, 1e-4) {
		t.Fatalf("rotated x-axis by 90deg about z = %v, want ~(0,1,0)", rotated)
	}
}

func TestMat3_TransposeAndMul(t *testing.T) {
	id := Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if got := id.Transpose(); got != id {
		t.Fatalf("Transpose(identity) = %v, want identity", got)
	}
	m := Mat3{{1, 2, 0}, {0, 1, 0}, {0, 0, 1}}
	if got := m.MulMat3(id); got != m {
		t.Fatalf("m * identity = %v, want m", got)
	}
}

func TestQuatFromMat3_RoundTripsRotationMatrix(t *testing.T) {
	half := float32(math.Pi / 6)
	q := Quat{float32(math.Cos(float64(half))), 0, float32(math.Sin(float64(half))), 0}.Normalize()
	m := RotationMatrix(q)
	recovered := QuatFromMat3(m)

	// q and -q represent the same rotation; compare via the resulting
	// matrices rather than raw components.
	m2 := RotationMatrix(recovered)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !approxEq(m[i][j], m2[i][j], 1e-4) {
				t.Fatalf("QuatFromMat3 round trip mismatch at [%d][%d]: %v vs %v", i, j, m[i][j], m2[i][j])
			}
		}
	}
}

func TestCov3_IdentityRotationGivesDiagonalSquaredScale(t *testing.T) {
	cov := Cov3(IdentityQuat(), Vec3{2, 3, 4})
	want := Mat3{{4, 0, 0}, {0, 9, 0}, {0, 0, 16}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !approxEq(cov[i][j], want[i][j], 1e-4) {
				t.Fatalf("Cov3(identity, {2,3,4})[%d][%d] = %v, want %v", i, j, cov[i][j], want[i][j])
			}
		}
	}
}

func TestCov3_IsSymmetric(t *testing.T) {
	q := Quat{0.9, 0.1, 0.2, 0.3}.Normalize()
	cov := Cov3(q, Vec3{1, 2, 0.5})
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !approxEq(cov[i][j], cov[j][i], 1e-4) {
				t.Fatalf("Cov3 not symmetric at [%d][%d]=%v vs [%d][%d]=%v", i, j, cov[i][j], j, i, cov[j][i])
			}
		}
	}
}
