package pipeline

import (
	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/optim"
	"github.com/gogpu/gsplat/raster"
	"github.com/gogpu/gsplat/splat"
)

// flattenVec3 lays out a []mathx.Vec3 as interleaved (x,y,z) float32s, the
// shape Adam's flat parameter/gradient arrays need.
func flattenVec3(v []mathx.Vec3) []float32 {
	out := make([]float32, len(v)*3)
	for i, e := range v {
		out[i*3], out[i*3+1], out[i*3+2] = e[0], e[1], e[2]
	}
	return out
}

func unflattenVec3(flat []float32, out []mathx.Vec3) {
	for i := range out {
		out[i] = mathx.Vec3{flat[i*3], flat[i*3+1], flat[i*3+2]}
	}
}

func flattenQuat(v []mathx.Quat) []float32 {
	out := make([]float32, len(v)*4)
	for i, e := range v {
		out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = e[0], e[1], e[2], e[3]
	}
	return out
}

func unflattenQuat(flat []float32, out []mathx.Quat) {
	for i := range out {
		out[i] = mathx.Quat{flat[i*4], flat[i*4+1], flat[i*4+2], flat[i*4+3]}.Normalize()
	}
}

func flattenSH(v [][]mathx.Vec3) []float32 {
	if len(v) == 0 {
		return nil
	}
	k := len(v[0])
	out := make([]float32, len(v)*k*3)
	for i, coeffs := range v {
		base := i * k * 3
		for j, c := range coeffs {
			out[base+j*3], out[base+j*3+1], out[base+j*3+2] = c[0], c[1], c[2]
		}
	}
	return out
}

func unflattenSH(flat []float32, out [][]mathx.Vec3) {
	if len(out) == 0 {
		return
	}
	k := len(out[0])
	for i := range out {
		base := i * k * 3
		for j := range out[i] {
			out[i][j] = mathx.Vec3{flat[base + j*3], flat[base + j*3+1], flat[base + j*3+2]}
		}
	}
}

// applyOptimizerStep runs one Adam update per parameter group, in the
// fixed order spec.md §5 requires ("all optimizer updates for one
// parameter happen before any update for the next"): means, rotations,
// log-scales, SH, then opacities.
func applyOptimizerStep(s *splat.Splats, grad *raster.Grad, adam *optim.Adam, cfg TrainConfig) {
	means := flattenVec3(s.Means)
	adam.Update(optim.ParamMeans, means, flattenVec3(grad.Means))
	unflattenVec3(means, s.Means)

	rots := flattenQuat(s.Rotations)
	adam.Update(optim.ParamRotations, rots, flattenQuat(grad.Rotations))
	unflattenQuat(rots, s.Rotations)

	scales := flattenVec3(s.LogScales)
	adam.Update(optim.ParamLogScales, scales, flattenVec3(grad.LogScales))
	unflattenVec3(scales, s.LogScales)

	sh := flattenSH(s.SH)
	shGrad := flattenSH(grad.SH)
	scaling := optim.SHScaling(s.Len(), mathx.NumSHCoeffs(s.MaxSHDegree()), cfg.LRCoeffsSHScale)
	adam.UpdateScaled(optim.ParamSH, sh, shGrad, scaling)
	unflattenSH(sh, s.SH)

	adam.Update(optim.ParamLogitOpacities, s.LogitOpacities, grad.LogitOpacities)

	adam.EndStep()
}

// resizeOptimizer keeps Adam's per-parameter moment buffers in lockstep
// with a splat population change from refine.Step, following the same
// keep-indices-then-grow shape splat.Splats.Keep/Append use.
func resizeOptimizer(adam *optim.Adam, s *splat.Splats, keep []int) {
	n3 := func(base int) []int {
		if keep == nil {
			return nil
		}
		out := make([]int, len(keep)*base)
		for dst, src := range keep {
			for c := 0; c < base; c++ {
				out[dst*base+c] = src*base + c
			}
		}
		return out
	}
	adam.Resize(optim.ParamMeans, s.Len()*3, n3(3))
	adam.Resize(optim.ParamRotations, s.Len()*4, n3(4))
	adam.Resize(optim.ParamLogScales, s.Len()*3, n3(3))
	adam.Resize(optim.ParamLogitOpacities, s.Len(), keep)
	coeffs := mathx.NumSHCoeffs(s.MaxSHDegree())
	adam.Resize(optim.ParamSH, s.Len()*coeffs*3, n3(coeffs*3))
}
