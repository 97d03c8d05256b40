// Package mathx implements the small amount of 3D vector, quaternion, and
// spherical-harmonics math the splat rasterizer and optimizer need: vectors
// and quaternions in the style of gviegas-neo3/linear, plus the
// view-dependent color basis from C4's spherical-harmonics color model.
package mathx

import "math"

// Vec3 is a 3-component float32 vector: a splat mean, a log-scale, or an
// RGB color.
type Vec3 [3]float32

// Add returns l + r.
func (l Vec3) Add(r Vec3) Vec3 { return Vec3{l[0] + r[0], l[1] + r[1], l[2] + r[2]} }

// Sub returns l - r.
func (l Vec3) Sub(r Vec3) Vec3 { return Vec3{l[0] - r[0], l[1] - r[1], l[2] - r[2]} }

// Scale returns s*v.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{s * v[0], s * v[1], s * v[2]} }

// Dot returns the dot product of l and r.
func (l Vec3) Dot(r Vec3) float32 { return l[0]*r[0] + l[1]*r[1] + l[2]*r[2] }

// Cross returns l x r.
func (l Vec3) Cross(r Vec3) Vec3 {
	return Vec3{
		l[1]*r[2] - l[2]*r[1],
		l[2]*r[0] - l[0]*r[2],
		l[0]*r[1] - l[1]*r[0],
	}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float32 { return float32(math.Sqrt(float64(v.Dot(v)))) }

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Exp applies math.Exp component-wise, converting a log-scale to a scale.
func (v Vec3) Exp() Vec3 {
	return Vec3{
		float32(math.Exp(float64(v[0]))),
		float32(math.Exp(float64(v[1]))),
		float32(math.Exp(float64(v[2]))),
	}
}

// Quat is a unit quaternion storing a splat's orientation, stored as
// (w, x, y, z). The viewer's GPU and wire layouts use (x, y, z, w); the
// viewer package reorders when it packs splats.
type Quat [4]float32

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quat { return Quat{1, 0, 0, 0} }

// Normalize returns q scaled to unit length. The identity is returned if q
// is the zero quaternion (e.g. before initialization).
func (q Quat) Normalize() Quat {
	n := float32(math.Sqrt(float64(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])))
	if n == 0 {
		return IdentityQuat()
	}
	inv := 1 / n
	return Quat{q[0] * inv, q[1] * inv, q[2] * inv, q[3] * inv}
}

// Mat3 rotates/scales row-major: Mat3{row0, row1, row2}.
type Mat3 [3]Vec3

// RotationMatrix builds the 3x3 rotation matrix for a unit quaternion,
// used by the projection kernel to build the world-space covariance
// R * S * S^T * R^T from a splat's (rotation, scale) pair.
func RotationMatrix(q Quat) Mat3 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	return Mat3{
		{1 - (yy + zz), xy - wz, xz + wy},
		{xy + wz, 1 - (xx + zz), yz - wx},
		{xz - wy, yz + wx, 1 - (xx + yy)},
	}
}

// MulVec3 returns m*v.
func (m Mat3) MulVec3(v Vec3) Vec3 {
	return Vec3{
		m[0].Dot(v),
		m[1].Dot(v),
		m[2].Dot(v),
	}
}

// Transpose returns m^T.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// MulMat3 returns l*r.
func (l Mat3) MulMat3(r Mat3) Mat3 {
	rt := r.Transpose()
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = l[i].Dot(rt[j])
		}
	}
	return out
}

// QuatFromMat3 recovers the unit quaternion for a rotation matrix via
// Shepperd's method, picking the numerically stable branch based on the
// matrix trace. Used by the viewer's look-at camera construction, the one
// place this module builds a rotation from axes rather than storing a
// quaternion directly.
func QuatFromMat3(m Mat3) Quat {
	tr := m[0][0] + m[1][1] + m[2][2]
	var q Quat
	switch {
	case tr > 0:
		s := float32(math.Sqrt(float64(tr+1))) * 2
		q = Quat{0.25 * s, (m[2][1] - m[1][2]) / s, (m[0][2] - m[2][0]) / s, (m[1][0] - m[0][1]) / s}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := float32(math.Sqrt(float64(1+m[0][0]-m[1][1]-m[2][2]))) * 2
		q = Quat{(m[2][1] - m[1][2]) / s, 0.25 * s, (m[0][1] + m[1][0]) / s, (m[0][2] + m[2][0]) / s}
	case m[1][1] > m[2][2]:
		s := float32(math.Sqrt(float64(1+m[1][1]-m[0][0]-m[2][2]))) * 2
		q = Quat{(m[0][2] - m[2][0]) / s, (m[0][1] + m[1][0]) / s, 0.25 * s, (m[1][2] + m[2][1]) / s}
	default:
		s := float32(math.Sqrt(float64(1+m[2][2]-m[0][0]-m[1][1]))) * 2
		q = Quat{(m[1][0] - m[0][1]) / s, (m[0][2] + m[2][0]) / s, (m[1][2] + m[2][1]) / s, 0.25 * s}
	}
	return q.Normalize()
}

// Cov3 computes the world-space 3x3 covariance R*diag(scale^2)*R^T for a
// splat's orientation and axis-aligned scale, the first step of C2's
// forward projection (spec.md §4.1).
func Cov3(rot Quat, scale Vec3) Mat3 {
	r := RotationMatrix(rot)
	s := Mat3{
		{scale[0], 0, 0},
		{0, scale[1], 0},
		{0, 0, scale[2]},
	}
	rs := r.MulMat3(s)
	return rs.MulMat3(rs.Transpose())
}
