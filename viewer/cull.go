package viewer

import (
	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/raster"
)

// VisibleSplat is one surviving splat after the cull pass: its clip-space
// position, source index, and camera-space depth, the record spec.md
// §4.9's Cull step emits into the sentinel-initialized visible list
// (production code increments the indirect-draw-args buffer's count
// atomically as a compute pass; this CPU path returns the same shape as a
// plain slice instead, the reference culling order the GPU kernel must
// agree with).
type VisibleSplat struct {
	ClipPos [4]float32
	Index   uint32
	Depth   float32
}

// Cull projects every packed splat under cam and keeps the ones in front
// of the camera and within the viewport.
func Cull(splats []GpuSplat, cam *raster.Camera) []VisibleSplat {
	out := make([]VisibleSplat, 0, len(splats))
	for i, gs := range splats {
		view := cam.ViewSpace(mathx.Vec3(gs.Position))
		if view[2] <= 1e-6 {
			continue
		}
		px, py, ok := cam.ProjectMean(view)
		if !ok {
			continue
		}
		if px < 0 || py < 0 || px >= float32(cam.Width) || py >= float32(cam.Height) {
			continue
		}
		out = append(out, VisibleSplat{
			ClipPos: [4]float32{px, py, view[2], 1},
			Index:   uint32(i),
			Depth:   view[2],
		})
	}
	return out
}
