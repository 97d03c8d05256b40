package raster

import (
	"math"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/losses"
	"github.com/gogpu/gsplat/splat"
)

// Grad holds per-splat parameter gradients, parallel to splat.Splats'
// slices, accumulated by Backward over every pixel a splat contributed to.
type Grad struct {
	Means          []mathx.Vec3
	LogScales      []mathx.Vec3
	Rotations      []mathx.Quat
	LogitOpacities []float32
	SH             [][]mathx.Vec3
}

// newGrad allocates a zeroed Grad matching s's current shape.
func newGrad(s *splat.Splats) *Grad {
	g := &Grad{
		Means:          make([]mathx.Vec3, s.Len()),
		LogScales:      make([]mathx.Vec3, s.Len()),
		Rotations:      make([]mathx.Quat, s.Len()),
		LogitOpacities: make([]float32, s.Len()),
		SH:             make([][]mathx.Vec3, s.Len()),
	}
	for i := range g.SH {
		g.SH[i] = make([]mathx.Vec3, len(s.SH[i]))
	}
	return g
}

// localGrad accumulates the screen-space quantities Backward's per-pixel
// pass produces for one projected splat, before they're chained back
// through projection into world-space parameter gradients.
type localGrad struct {
	mean2D      [2]float32
	conic       [3]float32
	opacity     float32
	color       mathx.Vec3
}

// rotationEps is the finite-difference step Backward uses for the
// quaternion-to-covariance Jacobian: an analytic derivative is
// straightforward for mean/scale/color but the quaternion chain is not,
// and a central difference on Cov3 (three 3x3 matrix multiplies) is cheap
// enough to run per visible splat on every Backward call.
const rotationEps = 1e-3

// RefineInfo reports the per-splat screen-space refinement weight C3
// threads through the backward pass (spec.md §4.2's final paragraph): the
// rendered screen-space gradient magnitude of each splat that was visible
// this frame, not a true loss gradient but used identically by the
// refiner to decide which splats to split.
type RefineInfo struct {
	Visible []int32   // original splat indices visible this frame
	Weight  []float32 // |dL/dmean2D| scaled by (W/2, H/2), parallel to Visible
}

// Backward differentiates the image Render produced (captured in aux)
// with respect to every trainable splat parameter, given dLoss, the
// gradient of the training loss with respect to each rendered pixel
// (e.g. from losses.L1Grad or an SSIM gradient), combined beforehand by
// the caller into one per-pixel gradient image. It also returns the
// per-splat screen-space refinement weight (spec.md §4.2) the refiner
// accumulates between refine passes.
func Backward(aux *Aux, dLoss *losses.Image, s *splat.Splats) (*Grad, *RefineInfo, error) {
	if dLoss.Width != aux.width || dLoss.Height != aux.height {
		return nil, nil, ErrAuxMismatch
	}

	locals := make([]localGrad, len(aux.splats))
	grad := newGrad(s)

	for pixIdx, trace := range aux.steps {
		if len(trace) == 0 {
			continue
		}
		px := float32(pixIdx%aux.width) + 0.5
		py := float32(pixIdx/aux.width) + 0.5
		base := pixIdx * 3
		gradC := mathx.Vec3{dLoss.Pixels[base], dLoss.Pixels[base+1], dLoss.Pixels[base+2]}
		gradT := gradC.Dot(Background)

		for i := len(trace) - 1; i >= 0; i-- {
			st := trace[i]
			p := &aux.splats[st.proj]

			dAlpha := st.tBefore * (gradC.Dot(p.color) - gradT)
			gradT = st.alpha*gradC.Dot(p.color) + gradT*(1-st.alpha)

			locals[st.proj].color = locals[st.proj].color.Add(gradC.Scale(st.alpha * st.tBefore))

			dx := px - p.mean2D[0]
			dy := py - p.mean2D[1]
			g := gaussianWeight(p.conic, dx, dy)

			locals[st.proj].opacity += dAlpha * g
			dG := dAlpha * p.opacity
			dPower := dG * g // d(exp(power))/dpower = exp(power) = g

			locals[st.proj].conic[0] += dPower * (-0.5 * dx * dx)
			locals[st.proj].conic[1] += dPower * (-dx * dy)
			locals[st.proj].conic[2] += dPower * (-0.5 * dy * dy)

			dDx := dPower * -(p.conic[0]*dx + p.conic[1]*dy)
			dDy := dPower * -(p.conic[1]*dx + p.conic[2]*dy)
			locals[st.proj].mean2D[0] += -dDx
			locals[st.proj].mean2D[1] += -dDy
		}
	}

	refine := &RefineInfo{
		Visible: make([]int32, len(aux.splats)),
		Weight:  make([]float32, len(aux.splats)),
	}
	halfW, halfH := float32(aux.width)/2, float32(aux.height)/2

	for mi := range aux.splats {
		p := &aux.splats[mi]
		lg := &locals[mi]
		i := p.index

		grad.LogitOpacities[i] += lg.opacity * dsigmoid(s.LogitOpacities[i])

		dColorBasis(s.SHDegree(), s.SH[i], p.viewDir, lg.color, grad.SH[i])

		dMean3D := backpropMean(p, lg.mean2D)
		grad.Means[i] = grad.Means[i].Add(dMean3D)

		dCov2D := conicToCov2DGrad(p.conic, lg.conic)
		dCov3D := cov2DGradToCov3D(p, dCov2D)

		dScale, dRot := covGradToParams(p, s, i, dCov3D)
		grad.LogScales[i] = grad.LogScales[i].Add(dScale)
		grad.Rotations[i] = addQuat(grad.Rotations[i], dRot)

		dx := absF32(lg.mean2D[0]) * halfW
		dy := absF32(lg.mean2D[1]) * halfH
		refine.Visible[mi] = int32(i)
		refine.Weight[mi] = float32(math.Hypot(float64(dx), float64(dy)))
	}

	return grad, refine, nil
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func dsigmoid(logit float32) float32 {
	sig := float32(1 / (1 + math.Exp(-float64(logit))))
	return sig * (1 - sig)
}

// dColorBasis accumulates dL/dSH[k] = basisWeight(k, dir) * dLdColor for
// each active coefficient, the chain rule through EvalSH's linear basis
// expansion.
func dColorBasis(degree int, coeffs []mathx.Vec3, dir mathx.Vec3, dLdColor mathx.Vec3, out []mathx.Vec3) {
	weights := mathx.SHBasisWeights(degree, dir)
	for k, w := range weights {
		out[k] = out[k].Add(dLdColor.Scale(w))
	}
}

// backpropMean chains the screen-space mean gradient back through the
// pinhole projection and the camera's rotation to a world-space gradient.
func backpropMean(p *projected, dMean2D [2]float32) mathx.Vec3 {
	vz := p.viewMean[2]
	// project() cached fx/vz and fy/vz on p, so the camera intrinsics are
	// not needed here. See projectedCameraDeriv.
	dView := projectedCameraDeriv(p, dMean2D, vz)
	return p.viewRot.Transpose().MulVec3(dView)
}

// projectedCameraDeriv computes dL/dview from dL/dmean2D using the cached
// focal-adjusted Jacobian stored alongside the projected splat.
func projectedCameraDeriv(p *projected, dMean2D [2]float32, vz float32) mathx.Vec3 {
	// Screen-space derivative identities: dpx/dvx = fx/vz,
	// dpx/dvz = -fx*vx/vz^2 (and similarly for y). project() stored fx/vz
	// and fy/vz on p as jFxOverVz/jFyOverVz.
	fxOverVz := p.jFxOverVz
	fyOverVz := p.jFyOverVz
	dvx := dMean2D[0] * fxOverVz
	dvy := dMean2D[1] * fyOverVz
	dvz := -dMean2D[0]*fxOverVz*p.viewMean[0]/vz - dMean2D[1]*fyOverVz*p.viewMean[1]/vz
	return mathx.Vec3{dvx, dvy, dvz}
}

// conicToCov2DGrad uses the symmetric 2x2 matrix-inverse derivative
// d(M^-1) = -M^-1 dL M^-1 to turn a gradient on the conic (Cov2D's
// inverse) back into a gradient on Cov2D itself.
func conicToCov2DGrad(conic [3]float32, dConic [3]float32) [3]float32 {
	c := mathx.Mat3{
		{conic[0], conic[1], 0},
		{conic[1], conic[2], 0},
		{0, 0, 0},
	}
	dl := mathx.Mat3{
		{dConic[0], dConic[1], 0},
		{dConic[1], dConic[2], 0},
		{0, 0, 0},
	}
	result := c.MulMat3(dl).MulMat3(c)
	return [3]float32{-result[0][0], -result[0][1], -result[1][1]}
}

// cov2DGradToCov3D chains Cov2D = T*Cov3D*T^T (T = J*W, cached per splat)
// back to dL/dCov3D via dL/dX = T^T * dL/dY * T.
func cov2DGradToCov3D(p *projected, dCov2D [3]float32) mathx.Mat3 {
	dY := mathx.Mat3{
		{dCov2D[0], dCov2D[1], 0},
		{dCov2D[1], dCov2D[2], 0},
		{0, 0, 0},
	}
	t := p.jacobian
	return t.Transpose().MulMat3(dY).MulMat3(t)
}

// covGradToParams converts dL/dCov3D into dL/dLogScale (analytic) and
// dL/dRotation (central finite difference on mathx.Cov3, see rotationEps).
func covGradToParams(p *projected, s *splat.Splats, i int, dCov3D mathx.Mat3) (mathx.Vec3, mathx.Quat) {
	scale := s.Scale(i)
	rot := s.Rotations[i]
	r := mathx.RotationMatrix(rot)

	var dScale mathx.Vec3
	for m := 0; m < 3; m++ {
		col := mathx.Vec3{r[0][m], r[1][m], r[2][m]}
		v := dCov3D.MulVec3(col)
		dScale[m] = 2 * scale[m] * col.Dot(v)
	}
	dLogScale := mathx.Vec3{dScale[0] * scale[0], dScale[1] * scale[1], dScale[2] * scale[2]}

	var dRot mathx.Quat
	for k := 0; k < 4; k++ {
		plus := rot
		plus[k] += rotationEps
		minus := rot
		minus[k] -= rotationEps
		covPlus := mathx.Cov3(plus, scale)
		covMinus := mathx.Cov3(minus, scale)
		var sum float32
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				d := (covPlus[a][b] - covMinus[a][b]) / (2 * rotationEps)
				sum += dCov3D[a][b] * d
			}
		}
		dRot[k] = sum
	}

	return dLogScale, dRot
}

func addQuat(a, b mathx.Quat) mathx.Quat {
	return mathx.Quat{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}
