package raster

import "github.com/gogpu/gsplat/internal/mathx"

// Camera is a pinhole camera's pose and intrinsics, in the world-to-camera
// convention COLMAP (and dataset.SceneView) uses.
type Camera struct {
	Rotation    mathx.Quat // world-to-camera
	Translation mathx.Vec3
	FocalX, FocalY             float32
	PrincipalX, PrincipalY     float32
	Width, Height              int
}

// ViewSpace transforms a world-space point into camera space.
func (c *Camera) ViewSpace(world mathx.Vec3) mathx.Vec3 {
	r := mathx.RotationMatrix(c.Rotation)
	return r.MulVec3(world).Add(c.Translation)
}

// ViewRotation returns the world-to-camera rotation matrix, needed to
// transform a splat's world-space covariance into view space before
// projection.
func (c *Camera) ViewRotation() mathx.Mat3 {
	return mathx.RotationMatrix(c.Rotation)
}

// ProjectMean projects a view-space point to pixel coordinates. Returns
// ok=false if the point is behind the camera (degenerate projection).
func (c *Camera) ProjectMean(view mathx.Vec3) (px, py float32, ok bool) {
	if view[2] <= 1e-6 {
		return 0, 0, false
	}
	px = c.FocalX*view[0]/view[2] + c.PrincipalX
	py = c.FocalY*view[1]/view[2] + c.PrincipalY
	return px, py, true
}
