package viewer

import (
	"math"
	"testing"

	"github.com/gogpu/gsplat/internal/mathx"
)

func TestNewOrbitCamera_FramesBounds(t *testing.T) {
	c := NewOrbitCamera(mathx.Vec3{-1, -1, -1}, mathx.Vec3{1, 1, 1})
	if c.Focus != (mathx.Vec3{0, 0, 0}) {
		t.Fatalf("Focus = %v, want origin", c.Focus)
	}
	if c.Radius <= 0 {
		t.Fatalf("Radius = %v, want positive", c.Radius)
	}
}

func TestNewOrbitCamera_DegenerateBoundsGetsFallbackRadius(t *testing.T) {
	c := NewOrbitCamera(mathx.Vec3{0, 0, 0}, mathx.Vec3{0, 0, 0})
	if c.Radius != 1 {
		t.Fatalf("Radius for zero-size bounds = %v, want 1", c.Radius)
	}
}

func TestOrbitCamera_PitchClampsBeforePoles(t *testing.T) {
	c := NewOrbitCamera(mathx.Vec3{-1, -1, -1}, mathx.Vec3{1, 1, 1})
	c.Orbit(0, 100) // huge positive delta
	limit := float32(math.Pi/2) - pitchEps
	if c.Pitch > limit {
		t.Fatalf("Pitch = %v, want clamped to <= %v", c.Pitch, limit)
	}
	c.Orbit(0, -200)
	if c.Pitch < -limit {
		t.Fatalf("Pitch = %v, want clamped to >= %v", c.Pitch, -limit)
	}
}

func TestOrbitCamera_ZoomClampsToPositiveRadius(t *testing.T) {
	c := NewOrbitCamera(mathx.Vec3{-1, -1, -1}, mathx.Vec3{1, 1, 1})
	c.Zoom(1e6)
	if c.Radius < 1e-3 {
		t.Fatalf("Radius after huge zoom-in = %v, want floored at 1e-3", c.Radius)
	}
}

func TestOrbitCamera_ToCameraLooksAtFocus(t *testing.T) {
	c := NewOrbitCamera(mathx.Vec3{-1, -1, -1}, mathx.Vec3{1, 1, 1})
	cam := c.ToCamera(64, 64, 100, 100)
	if cam.Width != 64 || cam.Height != 64 {
		t.Fatalf("ToCamera dims = (%d, %d), want (64, 64)", cam.Width, cam.Height)
	}
	// Focus point should lie in front of the camera.
	view := cam.ViewSpace(c.Focus)
	if view[2] <= 0 {
		t.Fatalf("focus point is behind the orbit camera, view-space z = %v", view[2])
	}
}

func TestFlyCamera_LookClampsPitch(t *testing.T) {
	c := NewFlyCamera(mathx.Vec3{0, 0, 0})
	c.Look(0, 100)
	if c.Pitch != flyPitchLimit {
		t.Fatalf("Pitch = %v, want clamped to %v", c.Pitch, flyPitchLimit)
	}
	c.Look(0, -200)
	if c.Pitch != -flyPitchLimit {
		t.Fatalf("Pitch = %v, want clamped to %v", c.Pitch, -flyPitchLimit)
	}
}

func TestFlyCamera_AdvanceMovesAlongLookDirection(t *testing.T) {
	c := NewFlyCamera(mathx.Vec3{0, 0, 0})
	c.Yaw, c.Pitch = 0, 0
	start := c.Position
	c.Advance(1.0)
	if c.Position == start {
		t.Fatalf("Advance(1.0) did not move the camera")
	}
}

func TestFlyCamera_ScrollAdjustsVelocity(t *testing.T) {
	c := NewFlyCamera(mathx.Vec3{0, 0, 0})
	c.Scroll(2)
	if c.Velocity != 3 { // default velocity 1 + 2
		t.Fatalf("Velocity after Scroll(2) = %v, want 3", c.Velocity)
	}
}
