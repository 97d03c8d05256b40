package mathx

// SH basis constants for degrees 0-3, the same real spherical-harmonics
// coefficients used by every public Gaussian-splatting renderer (the
// convention original_source's render crate follows); MaxSHDegree bounds
// C4's SHDegreeInterval growth schedule.
const (
	MaxSHDegree = 3

	shC0 = 0.28209479177387814

	shC1 = 0.4886025119029199

	shC2_0 = 1.0925484305920792
	shC2_1 = -1.0925484305920792
	shC2_2 = 0.31539156525252005
	shC2_3 = -1.0925484305920792
	shC2_4 = 0.5462742152960396

	shC3_0 = -0.5900435899266435
	shC3_1 = 2.890611442640554
	shC3_2 = -0.4570457994644658
	shC3_3 = 0.3731763325901154
	shC3_4 = -0.4570457994644658
	shC3_5 = 1.445305721320277
	shC3_6 = -0.5900435899266435
)

// NumSHCoeffs returns the number of SH coefficients per color channel for
// an active degree (0 -> 1, 1 -> 4, 2 -> 9, 3 -> 16).
func NumSHCoeffs(degree int) int {
	d := degree + 1
	return d * d
}

// EvalSH evaluates the view-dependent color contribution of the spherical
// harmonics coefficients (one Vec3 per coefficient, degree-major, matching
// C4's per-splat SH coefficient layout) for a unit view direction `dir`
// pointing from the splat to the camera. Degree must be 0-3.
//
// The returned color is added to 0.5 (the DC bias baked into the SH0
// coefficient's conventional scale) by the caller; this function returns
// only the basis-weighted sum, matching original_source's render crate.
func EvalSH(degree int, coeffs []Vec3, dir Vec3) Vec3 {
	weights := SHBasisWeights(degree, dir)
	var result Vec3
	for k, w := range weights {
		result = result.Add(coeffs[k].Scale(w))
	}
	return result
}

// SHBasisWeights returns the per-coefficient scalar weight of EvalSH's
// linear expansion for a unit view direction, so the backward rasterizer
// can chain-rule dL/dcolor into dL/dSH[k] = weights[k] * dL/dcolor without
// duplicating the basis evaluation (spec.md §4.2's "SH evaluation chain
// ruled backward").
func SHBasisWeights(degree int, dir Vec3) []float32 {
	n := NumSHCoeffs(degree)
	w := make([]float32, n)
	w[0] = shC0
	if degree < 1 {
		return w
	}

	x, y, z := dir[0], dir[1], dir[2]
	w[1] = -shC1 * y
	w[2] = shC1 * z
	w[3] = -shC1 * x
	if degree < 2 {
		return w
	}

	xx, yy, zz := x*x, y*y, z*z
	xy, yz, xz := x*y, y*z, x*z

	w[4] = shC2_0 * xy
	w[5] = shC2_1 * yz
	w[6] = shC2_2 * (2*zz - xx - yy)
	w[7] = shC2_3 * xz
	w[8] = shC2_4 * (xx - yy)
	if degree < 3 {
		return w
	}

	w[9] = shC3_0 * y * (3*xx - yy)
	w[10] = shC3_1 * xy * z
	w[11] = shC3_2 * y * (4*zz - xx - yy)
	w[12] = shC3_3 * z * (2*zz - 3*xx - 3*yy)
	w[13] = shC3_4 * x * (4*zz - xx - yy)
	w[14] = shC3_5 * z * (xx - yy)
	w[15] = shC3_6 * x * (xx - 3*yy)
	return w
}
