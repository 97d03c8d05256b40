// Package splat implements the Gaussian splat cloud: storage, SH-degree
// growth, random/SfM initialization, and the CPU-orchestrated render
// entrypoint that drives the raster package's differentiable rasterizer
// (spec.md C4).
package splat

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/slices"

	"github.com/gogpu/gsplat/internal/mathx"
)

// ErrEmptyCloud is returned by constructors given zero points.
var ErrEmptyCloud = errors.New("splat: point cloud is empty")

// ErrDegreeOutOfRange is returned by WithSHDegree for degrees outside [0, mathx.MaxSHDegree].
var ErrDegreeOutOfRange = errors.New("splat: sh degree out of range")

// Splats is the trainable parameter set for a Gaussian splat scene: one
// entry per Gaussian across parallel slices, matching the struct-of-arrays
// layout the rasterizer and optimizer both bind as GPU storage buffers.
type Splats struct {
	Means      []mathx.Vec3 // world-space positions
	LogScales  []mathx.Vec3 // log(scale) per axis, exp'd before use
	Rotations  []mathx.Quat // unit quaternion orientation
	LogitOpacities []float32 // logit(opacity), sigmoid'd before use
	SH         [][]mathx.Vec3 // per-splat SH coefficients, NumSHCoeffs(degree) long

	shDegree    int
	maxSHDegree int
}

// Len returns the number of splats.
func (s *Splats) Len() int { return len(s.Means) }

// SHDegree returns the currently active SH degree.
func (s *Splats) SHDegree() int { return s.shDegree }

// MaxSHDegree returns the configured ceiling for SH growth.
func (s *Splats) MaxSHDegree() int { return s.maxSHDegree }

// WithSHDegree sets the active SH degree, used by the training loop's
// SHDegreeInterval growth schedule (SPEC_FULL §C.5). Coefficients beyond
// the active degree remain allocated (so growth never needs a resize) but
// are not evaluated.
func (s *Splats) WithSHDegree(degree int) error {
	if degree < 0 || degree > s.maxSHDegree {
		return fmt.Errorf("%w: %d (max %d)", ErrDegreeOutOfRange, degree, s.maxSHDegree)
	}
	s.shDegree = degree
	return nil
}

// Opacity returns the sigmoid-activated opacity of splat i.
func (s *Splats) Opacity(i int) float32 {
	return sigmoid(s.LogitOpacities[i])
}

// Scale returns the exp-activated per-axis scale of splat i.
func (s *Splats) Scale(i int) mathx.Vec3 {
	return s.LogScales[i].Exp()
}

func sigmoid(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }

func logit(p float32) float32 {
	p64 := float64(p)
	return float32(math.Log(p64 / (1 - p64)))
}

// FromRandom builds an initial splat cloud by sampling n points uniformly
// within the given axis-aligned bounds, matching the random-init fallback
// original_source uses when no SfM point cloud is supplied.
func FromRandom(n int, lo, hi mathx.Vec3, maxSHDegree int, rng *rand.Rand) (*Splats, error) {
	if n <= 0 {
		return nil, ErrEmptyCloud
	}
	s := newEmpty(n, maxSHDegree)
	extent := hi.Sub(lo)
	initScale := float32(0)
	for i := 0; i < 3; i++ {
		if extent[i] > initScale {
			initScale = extent[i]
		}
	}
	initScale = initScale / float32(math.Cbrt(float64(n))) * 0.5
	if initScale <= 0 {
		initScale = 0.01
	}
	logScale := float32(math.Log(float64(initScale)))

	for i := 0; i < n; i++ {
		s.Means[i] = mathx.Vec3{
			lo[0] + rng.Float32()*extent[0],
			lo[1] + rng.Float32()*extent[1],
			lo[2] + rng.Float32()*extent[2],
		}
		s.LogScales[i] = mathx.Vec3{logScale, logScale, logScale}
		s.Rotations[i] = mathx.IdentityQuat()
		s.LogitOpacities[i] = logit(0.1)
		s.SH[i][0] = mathx.Vec3{0.5, 0.5, 0.5}
	}
	return s, nil
}

// SfMPoint is the minimal per-point data FromSfM needs: position and an
// sRGB color in [0, 1], typically sourced from a colmap.Point3D.
type SfMPoint struct {
	Position mathx.Vec3
	Color    mathx.Vec3
}

// FromSfM seeds a splat cloud directly from a sparse structure-from-motion
// point cloud: one Gaussian per point, colored by the point's observed
// color converted to its SH0 DC term, scaled by the point's distance to
// its nearest neighbors (approximated here by a uniform fraction of the
// scene extent, matching original_source's fallback when k-NN distances
// aren't available from the loader).
func FromSfM(points []SfMPoint, maxSHDegree int, rng *rand.Rand) (*Splats, error) {
	if len(points) == 0 {
		return nil, ErrEmptyCloud
	}
	s := newEmpty(len(points), maxSHDegree)

	lo, hi := points[0].Position, points[0].Position
	for _, p := range points {
		for i := 0; i < 3; i++ {
			if p.Position[i] < lo[i] {
				lo[i] = p.Position[i]
			}
			if p.Position[i] > hi[i] {
				hi[i] = p.Position[i]
			}
		}
	}
	extent := hi.Sub(lo)
	diag := extent.Len()
	initScale := diag / float32(math.Cbrt(float64(len(points)))) * 0.5
	if initScale <= 0 {
		initScale = 0.01
	}
	logScale := float32(math.Log(float64(initScale)))

	const shDC = 0.28209479177387814 // matches mathx.shC0; inverted here to go from color -> DC coeff
	for i, p := range points {
		s.Means[i] = p.Position
		// Small random jitter on scale keeps initial Gaussians from being
		// perfectly isotropic, easing the optimizer off a saddle point.
		jitter := 1 + (rng.Float32()-0.5)*0.2
		s.LogScales[i] = mathx.Vec3{logScale, logScale, logScale}.Scale(jitter)
		s.Rotations[i] = mathx.IdentityQuat()
		s.LogitOpacities[i] = logit(0.1)
		s.SH[i][0] = p.Color.Sub(mathx.Vec3{0.5, 0.5, 0.5}).Scale(1 / float32(shDC))
	}
	return s, nil
}

func newEmpty(n, maxSHDegree int) *Splats {
	s := &Splats{
		Means:          make([]mathx.Vec3, n),
		LogScales:      make([]mathx.Vec3, n),
		Rotations:      make([]mathx.Quat, n),
		LogitOpacities: make([]float32, n),
		SH:             make([][]mathx.Vec3, n),
		shDegree:       0,
		maxSHDegree:    maxSHDegree,
	}
	nCoeffs := mathx.NumSHCoeffs(maxSHDegree)
	for i := range s.SH {
		s.SH[i] = make([]mathx.Vec3, nCoeffs)
	}
	return s
}

// EstimateBounds returns the axis-aligned bounding box of the current
// means, used to size a random-init fallback and to frame the viewer's
// default camera.
func (s *Splats) EstimateBounds() (lo, hi mathx.Vec3) {
	if len(s.Means) == 0 {
		return mathx.Vec3{}, mathx.Vec3{}
	}
	lo, hi = s.Means[0], s.Means[0]
	for _, m := range s.Means[1:] {
		for i := 0; i < 3; i++ {
			if m[i] < lo[i] {
				lo[i] = m[i]
			}
			if m[i] > hi[i] {
				hi[i] = m[i]
			}
		}
	}
	return lo, hi
}

// Append adds new splats (grown by refine.Step) to the end of every
// slice, keeping all parallel arrays in lockstep.
func (s *Splats) Append(other *Splats) {
	s.Means = append(s.Means, other.Means...)
	s.LogScales = append(s.LogScales, other.LogScales...)
	s.Rotations = append(s.Rotations, other.Rotations...)
	s.LogitOpacities = append(s.LogitOpacities, other.LogitOpacities...)
	s.SH = append(s.SH, other.SH...)
}

// Keep retains only the splats at the given ascending indices, used by
// refine.Step to drop low-opacity Gaussians. It compacts all
// five parallel arrays in place with slices.DeleteFunc, driven by a
// shared membership mask built from indices, rather than rebuilding the
// arrays by hand.
func (s *Splats) Keep(indices []int) {
	n := s.Len()
	keep := make([]bool, n)
	for _, i := range indices {
		keep[i] = true
	}

	pos := 0
	s.Means = slices.DeleteFunc(s.Means, func(mathx.Vec3) (drop bool) {
		drop = !keep[pos]
		pos++
		return drop
	})
	pos = 0
	s.LogScales = slices.DeleteFunc(s.LogScales, func(mathx.Vec3) (drop bool) {
		drop = !keep[pos]
		pos++
		return drop
	})
	pos = 0
	s.Rotations = slices.DeleteFunc(s.Rotations, func(mathx.Quat) (drop bool) {
		drop = !keep[pos]
		pos++
		return drop
	})
	pos = 0
	s.LogitOpacities = slices.DeleteFunc(s.LogitOpacities, func(float32) (drop bool) {
		drop = !keep[pos]
		pos++
		return drop
	})
	pos = 0
	s.SH = slices.DeleteFunc(s.SH, func([]mathx.Vec3) (drop bool) {
		drop = !keep[pos]
		pos++
		return drop
	})
}
