// Package viewer implements C10: converting a training snapshot into the
// packed per-instance data a real-time rasterizer draws, culling and
// depth-sorting the visible set, orbit/fly camera controls, and the
// WiredPipelineMessage JSON wire protocol a browser or desktop frontend
// consumes over a websocket (spec.md §4.9, §6.2).
package viewer

import (
	"math"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/splat"
)

// GpuSplat is the packed per-instance record the draw pass binds as a
// storage buffer, one quad instance per splat (spec.md §4.9's Upload
// step): raw means/rotation/log-scales/SH-DC/raw-opacity are activated
// (sigmoid, exp) once at upload time rather than per-fragment.
type GpuSplat struct {
	Position [3]float32
	Scale    [3]float32
	Rotation [4]float32 // x, y, z, w
	Color    [3]float32 // SH DC term through sigmoid
	Opacity  float32    // sigmoid(raw_opacity)
}

func sigmoid32(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }

// PackSplats converts a raw splat.Splats snapshot into its packed GPU
// layout, ready for upload to the draw pass's instance buffer.
func PackSplats(s *splat.Splats) []GpuSplat {
	out := make([]GpuSplat, s.Len())
	for i := range out {
		scale := s.Scale(i)
		q := s.Rotations[i]
		var dc mathx.Vec3
		if len(s.SH[i]) > 0 {
			dc = s.SH[i][0]
		}
		out[i] = GpuSplat{
			Position: [3]float32(s.Means[i]),
			Scale:    [3]float32(scale),
			Rotation: [4]float32{q[1], q[2], q[3], q[0]},
			Color:    [3]float32{sigmoid32(dc[0]), sigmoid32(dc[1]), sigmoid32(dc[2])},
			Opacity:  s.Opacity(i),
		}
	}
	return out
}
