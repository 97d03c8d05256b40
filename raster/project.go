package raster

import (
	"math"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/splat"
)

// lowPassFilter is added to the projected 2D covariance's diagonal, the
// antialiasing dilation every public 3D Gaussian Splatting rasterizer
// applies so sub-pixel splats never vanish between samples.
const lowPassFilter = 0.3

// projected is one splat's screen-space footprint, computed once per frame
// by project and reused by both tile binning and the per-pixel evaluator.
type projected struct {
	index      int
	mean2D     [2]float32
	conic      [3]float32 // inverse 2D covariance (a, b, c): [[a,b],[b,c]]
	radius     float32    // 3-sigma screen-space radius, for tile binning
	depth      float32    // view-space z, for sort order
	opacity    float32
	color      mathx.Vec3
	viewRot    mathx.Mat3 // world-to-camera rotation, cached for the backward pass
	viewMean   mathx.Vec3 // view-space mean, cached for the backward pass
	cov3D      mathx.Mat3 // world-space covariance, cached for the backward pass
	viewDir    mathx.Vec3 // unit splat-to-camera direction used for SH eval
	jacobian   mathx.Mat3 // J*W, the EWA affine approximation's combined Jacobian, cached for Backward
	jFxOverVz  float32    // fx/vz at projection time, reused to chain dL/dmean2D back to view space
	jFyOverVz  float32    // fy/vz at projection time
}

// project computes the screen-space Gaussian for splat i under cam, or
// ok=false if the splat is behind the camera or degenerate (near-zero
// projected area).
func project(s *splat.Splats, i int, cam *Camera) (projected, bool) {
	mean := s.Means[i]
	view := cam.ViewSpace(mean)
	if view[2] <= 1e-6 {
		return projected{}, false
	}

	px, py, ok := cam.ProjectMean(view)
	if !ok {
		return projected{}, false
	}

	cov3D := mathx.Cov3(s.Rotations[i], s.Scale(i))
	viewRot := cam.ViewRotation()

	// EWA splatting's affine approximation of the perspective projection:
	// Cov2D = J * W * Cov3D * W^T * J^T, J the projection Jacobian at the
	// splat's view-space position. The Jacobian's own dependence on the
	// splat's position is dropped for the backward pass (a standard
	// simplification every public CPU/CUDA implementation of this step
	// makes); only its value at the forward-pass mean is used.
	j := mathx.Mat3{
		{cam.FocalX / view[2], 0, -cam.FocalX * view[0] / (view[2] * view[2])},
		{0, cam.FocalY / view[2], -cam.FocalY * view[1] / (view[2] * view[2])},
		{0, 0, 0},
	}
	t := j.MulMat3(viewRot)
	cov2D3 := t.MulMat3(cov3D).MulMat3(t.Transpose())
	a := cov2D3[0][0] + lowPassFilter
	b := cov2D3[0][1]
	c := cov2D3[1][1] + lowPassFilter

	det := a*c - b*b
	if det <= 0 {
		return projected{}, false
	}
	invDet := 1 / det
	conic := [3]float32{c * invDet, -b * invDet, a * invDet}

	// 3-sigma extent along the major axis, from the covariance's largest
	// eigenvalue (closed form for a 2x2 symmetric matrix).
	mid := 0.5 * (a + c)
	lambda := mid + float32(math.Sqrt(math.Max(0.1, float64(mid*mid-det))))
	radius := 3 * float32(math.Sqrt(float64(lambda)))

	camPos := cameraWorldPosition(cam)
	viewDir := mean.Sub(camPos).Normalize()
	// SH convention evaluates using the direction FROM the camera TO the
	// splat in most references, but original_source's render crate (like
	// the reference CUDA kernel) evaluates splat-to-camera; negate to
	// match.
	viewDir = viewDir.Scale(-1)

	color := mathx.EvalSH(s.SHDegree(), s.SH[i], viewDir).Add(mathx.Vec3{0.5, 0.5, 0.5})
	color = clampNonNegative(color)

	return projected{
		index:     i,
		mean2D:    [2]float32{px, py},
		conic:     conic,
		radius:    radius,
		depth:     view[2],
		opacity:   s.Opacity(i),
		color:     color,
		viewRot:   viewRot,
		viewMean:  view,
		cov3D:     cov3D,
		viewDir:   viewDir,
		jacobian:  t,
		jFxOverVz: cam.FocalX / view[2],
		jFyOverVz: cam.FocalY / view[2],
	}, true
}

// clampNonNegative clamps each channel of an SH-evaluated color to
// [0, infinity), matching spec.md §4.1 step 4's "clamp result to [0, inf)
// before the alpha blend".
func clampNonNegative(c mathx.Vec3) mathx.Vec3 {
	for i := range c {
		if c[i] < 0 {
			c[i] = 0
		}
	}
	return c
}

// cameraWorldPosition recovers the camera's world-space origin from its
// world-to-camera pose: world = -R^T * t.
func cameraWorldPosition(cam *Camera) mathx.Vec3 {
	r := cam.ViewRotation()
	return r.Transpose().MulVec3(cam.Translation).Scale(-1)
}

// gaussianWeight evaluates exp(-0.5 d^T conic d) for screen-space offset d
// from a splat's projected mean.
func gaussianWeight(conic [3]float32, dx, dy float32) float32 {
	power := -0.5*(conic[0]*dx*dx+conic[2]*dy*dy) - conic[1]*dx*dy
	if power > 0 {
		return 0
	}
	return float32(math.Exp(float64(power)))
}
