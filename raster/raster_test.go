package raster

import (
	"math"
	"testing"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/splat"
)

func newTestCamera(width, height int) *Camera {
	return &Camera{
		Rotation:   mathx.IdentityQuat(),
		FocalX:     100,
		FocalY:     100,
		PrincipalX: float32(width) / 2,
		PrincipalY: float32(height) / 2,
		Width:      width,
		Height:     height,
	}
}

func logitOf(p float32) float32 {
	p64 := float64(p)
	return float32(math.Log(p64 / (1 - p64)))
}

func shDCFromColor(c mathx.Vec3) mathx.Vec3 {
	const shC0 = 0.28209479177387814
	return c.Sub(mathx.Vec3{0.5, 0.5, 0.5}).Scale(1 / shC0)
}

func splatAt(depth float32, color mathx.Vec3, opacity float32) *splat.Splats {
	s := &splat.Splats{
		Means:          []mathx.Vec3{{0, 0, depth}},
		LogScales:      []mathx.Vec3{{float32(math.Log(0.05)), float32(math.Log(0.05)), float32(math.Log(0.05))}},
		Rotations:      []mathx.Quat{mathx.IdentityQuat()},
		LogitOpacities: []float32{logitOf(opacity)},
		SH:             [][]mathx.Vec3{{shDCFromColor(color)}},
	}
	return s
}

func TestRender_RejectsEmptyImage(t *testing.T) {
	cam := newTestCamera(64, 64)
	s := splatAt(5, mathx.Vec3{1, 0, 0}, 0.99)
	if _, _, err := Render(s, cam, 0, 64); err != ErrEmptyImage {
		t.Fatalf("Render(width=0) error = %v, want ErrEmptyImage", err)
	}
}

// TestRender_SingleSplat is spec.md §8 scenario S3: a single opaque splat
// centered in frame should color the center pixel near its own color and
// leave distant pixels at the background color.
func TestRender_SingleSplat(t *testing.T) {
	cam := newTestCamera(64, 64)
	s := splatAt(5, mathx.Vec3{1, 0, 0}, 0.999)

	img, aux, err := Render(s, cam, 64, 64)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	centerBase := (32*64 + 32) * 3
	if img.Pixels[centerBase] < 0.9 {
		t.Fatalf("center pixel red channel = %v, want near 1 (splat color)", img.Pixels[centerBase])
	}
	if img.Pixels[centerBase+2] > 0.1 {
		t.Fatalf("center pixel blue channel = %v, want near 0", img.Pixels[centerBase+2])
	}

	cornerBase := (0*64 + 0) * 3
	if img.Pixels[cornerBase] != 0 || img.Pixels[cornerBase+1] != 0 || img.Pixels[cornerBase+2] != 0 {
		t.Fatalf("corner pixel = (%v,%v,%v), want background (0,0,0)", img.Pixels[cornerBase], img.Pixels[cornerBase+1], img.Pixels[cornerBase+2])
	}

	vis := aux.VisibleIndices()
	if len(vis) != 1 || vis[0] != 0 {
		t.Fatalf("VisibleIndices() = %v, want [0]", vis)
	}
}

// TestRender_TwoSplatsCompositeFrontToBack is spec.md §8 scenario S4: two
// overlapping splats at different depths must composite with the nearer
// one dominating the final color.
func TestRender_TwoSplatsCompositeFrontToBack(t *testing.T) {
	cam := newTestCamera(64, 64)

	near := splatAt(5, mathx.Vec3{1, 0, 0}, 0.999)
	far := splatAt(10, mathx.Vec3{0, 0, 1}, 0.999)
	near.Append(far)

	img, _, err := Render(near, cam, 64, 64)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	centerBase := (32*64 + 32) * 3
	r, g, b := img.Pixels[centerBase], img.Pixels[centerBase+1], img.Pixels[centerBase+2]
	if r < 0.9 {
		t.Fatalf("center red channel = %v, want near 1 (near splat dominates)", r)
	}
	if b >= r {
		t.Fatalf("center blue channel (%v) >= red channel (%v), want far splat's contribution much smaller", b, r)
	}
	_ = g
}

func TestCamera_ViewSpaceAndProjectMean(t *testing.T) {
	cam := newTestCamera(64, 64)
	view := cam.ViewSpace(mathx.Vec3{0, 0, 5})
	if view != (mathx.Vec3{0, 0, 5}) {
		t.Fatalf("ViewSpace(identity cam) = %v, want (0,0,5)", view)
	}
	px, py, ok := cam.ProjectMean(view)
	if !ok {
		t.Fatalf("ProjectMean returned ok=false for in-front point")
	}
	if px != 32 || py != 32 {
		t.Fatalf("ProjectMean = (%v, %v), want (32, 32)", px, py)
	}

	if _, _, ok := cam.ProjectMean(mathx.Vec3{0, 0, -1}); ok {
		t.Fatalf("ProjectMean behind camera returned ok=true, want false")
	}
}
