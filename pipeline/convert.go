package pipeline

import (
	"image"

	"github.com/gogpu/gsplat/dataset"
	"github.com/gogpu/gsplat/losses"
	"github.com/gogpu/gsplat/raster"
)

// toCamera builds a raster.Camera from a dataset.SceneView's pose and
// intrinsics, the glue C9 needs between C8's loader output and C2's
// rasterizer input.
func toCamera(v dataset.SceneView) *raster.Camera {
	return &raster.Camera{
		Rotation:    v.Rotation,
		Translation: v.Translation,
		FocalX:      float32(v.Camera.FocalX),
		FocalY:      float32(v.Camera.FocalY),
		PrincipalX:  float32(v.Camera.PrincipalX),
		PrincipalY:  float32(v.Camera.PrincipalY),
		Width:       v.Camera.Width,
		Height:      v.Camera.Height,
	}
}

// toImage converts a decoded NRGBA target into losses.Image's planar
// float32 layout in [0, 1], dropping alpha (callers that need the alpha
// channel for alpha-matting read img.Pix directly; see alphaChannel).
func toImage(img *image.NRGBA) *losses.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &losses.Image{Width: w, Height: h, Pixels: make([]float32, w*h*3)}
	for y := 0; y < h; y++ {
		row := img.Pix[(y)*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			o := (y*w + x) * 3
			out.Pixels[o] = float32(px[0]) / 255
			out.Pixels[o+1] = float32(px[1]) / 255
			out.Pixels[o+2] = float32(px[2]) / 255
		}
	}
	return out
}

// alphaChannel extracts the normalized alpha plane from a decoded NRGBA
// mask/target, used for mask-gated loss and alpha-matting (spec.md §3.3).
func alphaChannel(img *image.NRGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = float32(row[x*4+3]) / 255
		}
	}
	return out
}
