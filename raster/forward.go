// Package raster implements the differentiable tile rasterizer (C2
// forward, C3 backward): it projects each splat's 3D covariance to a
// screen-space conic, bins splats into tiles, alpha-composites them
// front-to-back per pixel, and can replay that composite in reverse to
// produce analytic gradients for every trainable splat parameter.
//
// The CPU implementation here is the only render path: training and the
// unit tests both run it, with depth and tile sorting done by internal/gpu's
// CPU radix sort (see internal/gpu/doc.go).
package raster

import (
	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/losses"
	"github.com/gogpu/gsplat/splat"
)

// Background is the color composited behind all splats (spec.md §4.3
// names this the scene's background color, black by default).
var Background = mathx.Vec3{0, 0, 0}

// Render projects and alpha-composites s under cam into a width x height
// image, returning the Aux trace Backward needs to differentiate the
// result.
func Render(s *splat.Splats, cam *Camera, width, height int) (*losses.Image, *Aux, error) {
	if width <= 0 || height <= 0 {
		return nil, nil, ErrEmptyImage
	}

	projs := make([]projected, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		p, ok := project(s, i, cam)
		if !ok {
			continue
		}
		projs = append(projs, p)
	}

	tilesX, _, bins := binTiles(projs, width, height)

	img := &losses.Image{Width: width, Height: height, Pixels: make([]float32, width*height*3)}
	steps := make([][]step, width*height)

	for ty := 0; ty < (height+TileSize-1)/TileSize; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			members := bins[ty*tilesX+tx]
			if len(members) == 0 {
				continue
			}
			x0, y0 := tx*TileSize, ty*TileSize
			x1, y1 := x0+TileSize, y0+TileSize
			if x1 > width {
				x1 = width
			}
			if y1 > height {
				y1 = height
			}
			for py := y0; py < y1; py++ {
				for px := x0; px < x1; px++ {
					renderPixel(projs, members, px, py, img, steps)
				}
			}
		}
	}

	return img, &Aux{width: width, height: height, splats: projs, steps: steps}, nil
}

// renderPixel composites one pixel's front-to-back splat list, recording
// each step for the backward pass and writing the final color (with the
// background showing through the remaining transmittance).
func renderPixel(projs []projected, members []int, px, py int, img *losses.Image, steps [][]step) {
	pixIdx := py*img.Width + px
	var accum mathx.Vec3
	transmittance := float32(1)
	var trace []step

	for _, mi := range members {
		p := &projs[mi]
		dx := float32(px) + 0.5 - p.mean2D[0]
		dy := float32(py) + 0.5 - p.mean2D[1]
		g := gaussianWeight(p.conic, dx, dy)
		if g <= 0 {
			continue
		}
		alpha := p.opacity * g
		if alpha < 1.0/255.0 {
			continue
		}
		if alpha > 0.99 {
			alpha = 0.99
		}

		trace = append(trace, step{proj: mi, alpha: alpha, tBefore: transmittance})
		accum = accum.Add(p.color.Scale(alpha * transmittance))
		transmittance *= 1 - alpha

		if transmittance < 1e-4 {
			break
		}
	}

	out := accum.Add(Background.Scale(transmittance))
	base := pixIdx * 3
	img.Pixels[base] = out[0]
	img.Pixels[base+1] = out[1]
	img.Pixels[base+2] = out[2]
	steps[pixIdx] = trace
}
