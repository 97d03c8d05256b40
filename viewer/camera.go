package viewer

import (
	"math"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/raster"
)

// pitchEps keeps the orbit camera's pitch strictly inside +/-(pi/2),
// avoiding the gimbal singularity at the poles (spec.md §4.9).
const pitchEps = 1e-3

// flyPitchLimit is spec.md §4.9's fly-camera pitch clamp, in radians.
const flyPitchLimit = 1.5

func worldToCameraTranslation(rot mathx.Quat, eye mathx.Vec3) mathx.Vec3 {
	return mathx.RotationMatrix(rot).MulVec3(eye).Scale(-1)
}

// lookAtRotation builds the world-to-camera rotation matrix for a camera
// at eye looking toward target, given a world-up hint.
func lookAtRotation(eye, target, worldUp mathx.Vec3) mathx.Mat3 {
	z := target.Sub(eye).Normalize()
	x := worldUp.Cross(z).Normalize()
	y := z.Cross(x)
	return mathx.Mat3{x, y, z}
}

func cameraFrom(eye, target mathx.Vec3, width, height int, fx, fy float32) *raster.Camera {
	rot := mathx.QuatFromMat3(lookAtRotation(eye, target, mathx.Vec3{0, 1, 0}))
	return &raster.Camera{
		Rotation:    rot,
		Translation: worldToCameraTranslation(rot, eye),
		FocalX:      fx,
		FocalY:      fy,
		PrincipalX:  float32(width) / 2,
		PrincipalY:  float32(height) / 2,
		Width:       width,
		Height:      height,
	}
}

// OrbitCamera maintains (focus, radius, yaw, pitch) and orbits a fixed
// focus point (spec.md §4.9's orbit mode).
type OrbitCamera struct {
	Focus      mathx.Vec3
	Radius     float32
	Yaw, Pitch float32
}

// NewOrbitCamera centers an orbit camera on bounds' midpoint at a radius
// covering its diagonal, a reasonable default framing for a freshly
// loaded splat cloud.
func NewOrbitCamera(lo, hi mathx.Vec3) *OrbitCamera {
	mid := lo.Add(hi).Scale(0.5)
	radius := hi.Sub(lo).Len()
	if radius <= 0 {
		radius = 1
	}
	return &OrbitCamera{Focus: mid, Radius: radius, Pitch: 0.3}
}

// Orbit adjusts yaw/pitch by the given deltas (radians), clamping pitch to
// +/-(pi/2 - pitchEps) per spec.md §4.9.
func (c *OrbitCamera) Orbit(dyaw, dpitch float32) {
	c.Yaw += dyaw
	c.Pitch += dpitch
	limit := float32(math.Pi/2) - pitchEps
	if c.Pitch > limit {
		c.Pitch = limit
	}
	if c.Pitch < -limit {
		c.Pitch = -limit
	}
}

// Zoom adjusts the orbit radius by a scroll delta (spec.md §4.9: "scroll
// adjusts radius (orbit)").
func (c *OrbitCamera) Zoom(delta float32) {
	c.Radius -= delta
	if c.Radius < 1e-3 {
		c.Radius = 1e-3
	}
}

// Eye returns the orbit camera's world-space eye position.
func (c *OrbitCamera) Eye() mathx.Vec3 {
	cp, sp := float32(math.Cos(float64(c.Pitch))), float32(math.Sin(float64(c.Pitch)))
	cy, sy := float32(math.Cos(float64(c.Yaw))), float32(math.Sin(float64(c.Yaw)))
	dir := mathx.Vec3{cp * sy, sp, cp * cy}
	return c.Focus.Add(dir.Scale(c.Radius))
}

// ToCamera builds a raster.Camera looking from Eye() toward Focus at the
// given resolution and focal lengths.
func (c *OrbitCamera) ToCamera(width, height int, fx, fy float32) *raster.Camera {
	return cameraFrom(c.Eye(), c.Focus, width, height, fx, fy)
}

// FlyCamera maintains (position, yaw, pitch) with a scroll-adjustable
// forward velocity (spec.md §4.9's fly mode).
type FlyCamera struct {
	Position   mathx.Vec3
	Yaw, Pitch float32
	Velocity   float32
}

// NewFlyCamera starts a fly camera at pos with a modest default velocity.
func NewFlyCamera(pos mathx.Vec3) *FlyCamera {
	return &FlyCamera{Position: pos, Velocity: 1}
}

// Look adjusts yaw/pitch, clamping pitch to spec.md §4.9's [-1.5, 1.5] rad.
func (c *FlyCamera) Look(dyaw, dpitch float32) {
	c.Yaw += dyaw
	c.Pitch += dpitch
	if c.Pitch > flyPitchLimit {
		c.Pitch = flyPitchLimit
	}
	if c.Pitch < -flyPitchLimit {
		c.Pitch = -flyPitchLimit
	}
}

// Scroll adjusts the forward velocity (spec.md §4.9: "scroll adjusts ...
// forward velocity (fly)").
func (c *FlyCamera) Scroll(delta float32) {
	c.Velocity += delta
}

func (c *FlyCamera) forward() mathx.Vec3 {
	cp, sp := float32(math.Cos(float64(c.Pitch))), float32(math.Sin(float64(c.Pitch)))
	cy, sy := float32(math.Cos(float64(c.Yaw))), float32(math.Sin(float64(c.Yaw)))
	return mathx.Vec3{cp * sy, sp, cp * cy}
}

// Advance moves the camera forward by Velocity*dt along its look
// direction, the per-frame integration step a fly-mode input handler
// calls once per tick.
func (c *FlyCamera) Advance(dt float32) {
	c.Position = c.Position.Add(c.forward().Scale(c.Velocity * dt))
}

// ToCamera builds a raster.Camera at Position looking along the current
// yaw/pitch direction.
func (c *FlyCamera) ToCamera(width, height int, fx, fy float32) *raster.Camera {
	target := c.Position.Add(c.forward())
	return cameraFrom(c.Position, target, width, height, fx, fy)
}
