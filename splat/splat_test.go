package splat

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gogpu/gsplat/internal/mathx"
)

func TestFromRandom_EmptyCloudRejected(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := FromRandom(0, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng); err != ErrEmptyCloud {
		t.Fatalf("FromRandom(0, ...) error = %v, want ErrEmptyCloud", err)
	}
}

func TestFromRandom_PointsWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	lo, hi := mathx.Vec3{-1, -2, -3}, mathx.Vec3{1, 2, 3}
	s, err := FromRandom(64, lo, hi, 3, rng)
	if err != nil {
		t.Fatalf("FromRandom: %v", err)
	}
	if s.Len() != 64 {
		t.Fatalf("Len() = %d, want 64", s.Len())
	}
	for i, m := range s.Means {
		for a := 0; a < 3; a++ {
			if m[a] < lo[a] || m[a] > hi[a] {
				t.Fatalf("mean[%d][%d] = %v outside [%v, %v]", i, a, m[a], lo[a], hi[a])
			}
		}
	}
}

func TestFromSfM_EmptyCloudRejected(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := FromSfM(nil, 3, rng); err != ErrEmptyCloud {
		t.Fatalf("FromSfM(nil) error = %v, want ErrEmptyCloud", err)
	}
}

func TestFromSfM_MeansMatchInputPositions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points := []SfMPoint{
		{Position: mathx.Vec3{0, 0, 0}, Color: mathx.Vec3{0.5, 0.5, 0.5}},
		{Position: mathx.Vec3{1, 2, 3}, Color: mathx.Vec3{1, 0, 0}},
	}
	s, err := FromSfM(points, 3, rng)
	if err != nil {
		t.Fatalf("FromSfM: %v", err)
	}
	for i, p := range points {
		if s.Means[i] != p.Position {
			t.Fatalf("mean[%d] = %v, want %v", i, s.Means[i], p.Position)
		}
	}
	// A mid-gray point should decode back to a near-zero DC coefficient.
	if dc := s.SH[0][0]; dc.Len() > 1e-3 {
		t.Fatalf("gray point's DC coefficient = %v, want near zero", dc)
	}
}

// TestWithSHDegree_Idempotent checks spec.md §8 property 6: setting the
// same degree twice in a row is a no-op on the active degree.
func TestWithSHDegree_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s, err := FromRandom(4, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng)
	if err != nil {
		t.Fatalf("FromRandom: %v", err)
	}
	if err := s.WithSHDegree(2); err != nil {
		t.Fatalf("WithSHDegree(2): %v", err)
	}
	if err := s.WithSHDegree(2); err != nil {
		t.Fatalf("WithSHDegree(2) again: %v", err)
	}
	if s.SHDegree() != 2 {
		t.Fatalf("SHDegree() = %d, want 2", s.SHDegree())
	}
}

func TestWithSHDegree_OutOfRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s, err := FromRandom(4, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng)
	if err != nil {
		t.Fatalf("FromRandom: %v", err)
	}
	if err := s.WithSHDegree(-1); !errors.Is(err, ErrDegreeOutOfRange) {
		t.Fatalf("WithSHDegree(-1) error = %v, want ErrDegreeOutOfRange", err)
	}
	if err := s.WithSHDegree(4); !errors.Is(err, ErrDegreeOutOfRange) {
		t.Fatalf("WithSHDegree(4) error = %v, want ErrDegreeOutOfRange", err)
	}
}

func TestOpacityAndScaleActivations(t *testing.T) {
	s := &Splats{
		LogitOpacities: []float32{0},
		LogScales:      []mathx.Vec3{{0, 0, 0}},
	}
	if got := s.Opacity(0); got < 0.49 || got > 0.51 {
		t.Fatalf("Opacity(logit=0) = %v, want ~0.5", got)
	}
	if got := s.Scale(0); got != (mathx.Vec3{1, 1, 1}) {
		t.Fatalf("Scale(logscale=0) = %v, want (1,1,1)", got)
	}
}

func TestAppend(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a, _ := FromRandom(2, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng)
	b, _ := FromRandom(3, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng)
	a.Append(b)
	if a.Len() != 5 {
		t.Fatalf("Len() after Append = %d, want 5", a.Len())
	}
	for i := 0; i < 3; i++ {
		if a.Means[2+i] != b.Means[i] {
			t.Fatalf("appended mean[%d] = %v, want %v", i, a.Means[2+i], b.Means[i])
		}
	}
}

func TestKeep(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s, _ := FromRandom(5, mathx.Vec3{}, mathx.Vec3{1, 1, 1}, 3, rng)
	m1, m3 := s.Means[1], s.Means[3]
	s.Keep([]int{1, 3})
	if s.Len() != 2 {
		t.Fatalf("Len() after Keep = %d, want 2", s.Len())
	}
	if s.Means[0] != m1 || s.Means[1] != m3 {
		t.Fatalf("Keep did not preserve selected order: got %v, %v", s.Means[0], s.Means[1])
	}
}

func TestEstimateBounds(t *testing.T) {
	s := &Splats{Means: []mathx.Vec3{{1, -1, 0}, {-2, 3, 5}, {0, 0, 2}}}
	lo, hi := s.EstimateBounds()
	if lo != (mathx.Vec3{-2, -1, 0}) {
		t.Fatalf("lo = %v, want (-2,-1,0)", lo)
	}
	if hi != (mathx.Vec3{1, 3, 5}) {
		t.Fatalf("hi = %v, want (1,3,5)", hi)
	}
}

func TestEstimateBounds_Empty(t *testing.T) {
	s := &Splats{}
	lo, hi := s.EstimateBounds()
	if lo != (mathx.Vec3{}) || hi != (mathx.Vec3{}) {
		t.Fatalf("EstimateBounds on empty cloud = %v, %v, want zero vectors", lo, hi)
	}
}
