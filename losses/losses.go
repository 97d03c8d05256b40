// Package losses implements the photometric and regularization terms C6
// combines into the training objective: an L1 + D-SSIM composite image
// loss, an opacity sparsity regularizer, and an alpha-matting term for
// views that carry a foreground mask.
package losses

import "math"

// Image is a planar RGB float32 image, row-major, values in [0, 1].
type Image struct {
	Width, Height int
	Pixels        []float32 // len == Width*Height*3
}

// at returns the 3 channel values at (x, y).
func (im *Image) at(x, y int) (r, g, b float32) {
	i := (y*im.Width + x) * 3
	return im.Pixels[i], im.Pixels[i+1], im.Pixels[i+2]
}

// PSNR returns the peak signal-to-noise ratio in dB between a and b,
// assuming pixel values in [0, 1] (spec.md §4.8's eval-view metric,
// exercised by scenario S6's "PSNR on training views increases by >= 3
// dB" convergence check).
func PSNR(a, b *Image) float32 {
	var sum float64
	for i := range a.Pixels {
		d := float64(a.Pixels[i] - b.Pixels[i])
		sum += d * d
	}
	mse := sum / float64(len(a.Pixels))
	if mse <= 0 {
		return float32(math.Inf(1))
	}
	return float32(10 * math.Log10(1/mse))
}

// L1 returns the mean absolute per-pixel error between a and b.
func L1(a, b *Image) float32 {
	var sum float64
	for i := range a.Pixels {
		d := float64(a.Pixels[i] - b.Pixels[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float32(sum / float64(len(a.Pixels)))
}

// L1Grad writes d(L1)/d(a) into grad, which must be the same length as
// a.Pixels.
func L1Grad(a, b *Image, grad []float32) {
	n := float32(len(a.Pixels))
	for i := range a.Pixels {
		d := a.Pixels[i] - b.Pixels[i]
		switch {
		case d > 0:
			grad[i] = 1 / n
		case d < 0:
			grad[i] = -1 / n
		default:
			grad[i] = 0
		}
	}
}

// ssimWindow is the full width of the separable Gaussian window used by
// SSIM, matching the common 11x11 window (sigma 1.5) used by every public
// Gaussian-splatting trainer.
const (
	ssimWindow = 11
	ssimSigma  = 1.5
	ssimC1     = (0.01 * 0.01)
	ssimC2     = (0.03 * 0.03)
)

func gaussianKernel1D(size int, sigma float64) []float32 {
	k := make([]float32, size)
	half := float64(size-1) / 2
	var sum float64
	for i := range k {
		x := float64(i) - half
		v := math.Exp(-(x * x) / (2 * sigma * sigma))
		k[i] = float32(v)
		sum += v
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}

// blurChannel applies a separable Gaussian blur to one channel plane,
// clamping at the borders (valid-ish approximation used by the 3DGS
// reference implementations, which favor speed over exact SSIM border
// handling).
func blurChannel(plane []float32, w, h int, kernel []float32) []float32 {
	half := len(kernel) / 2
	tmp := make([]float32, w*h)
	out := make([]float32, w*h)

	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, wgt := range kernel {
				sx := clamp(x+k-half, 0, w-1)
				acc += wgt * plane[y*w+sx]
			}
			tmp[y*w+x] = acc
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, wgt := range kernel {
				sy := clamp(y+k-half, 0, h-1)
				acc += wgt * tmp[sy*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func splitChannels(im *Image) (r, g, b []float32) {
	n := im.Width * im.Height
	r, g, b = make([]float32, n), make([]float32, n), make([]float32, n)
	for i := 0; i < n; i++ {
		r[i] = im.Pixels[i*3]
		g[i] = im.Pixels[i*3+1]
		b[i] = im.Pixels[i*3+2]
	}
	return
}

// SSIM returns the mean structural similarity between a and b over [0, 1],
// computed per-channel with a separable Gaussian window and averaged
// across channels.
func SSIM(a, b *Image) float32 {
	kernel := gaussianKernel1D(ssimWindow, ssimSigma)
	w, h := a.Width, a.Height

	ar, ag, ab := splitChannels(a)
	br, bg, bb := splitChannels(b)

	total := float32(0)
	for _, pair := range [][2][]float32{{ar, br}, {ag, bg}, {ab, bb}} {
		total += ssimChannel(pair[0], pair[1], w, h, kernel)
	}
	return total / 3
}

func ssimChannel(x, y []float32, w, h int, kernel []float32) float32 {
	muX := blurChannel(x, w, h, kernel)
	muY := blurChannel(y, w, h, kernel)

	n := w * h
	xx := make([]float32, n)
	yy := make([]float32, n)
	xy := make([]float32, n)
	for i := 0; i < n; i++ {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}
	sigX := blurChannel(xx, w, h, kernel)
	sigY := blurChannel(yy, w, h, kernel)
	sigXY := blurChannel(xy, w, h, kernel)

	var sum float64
	for i := 0; i < n; i++ {
		mx, my := muX[i], muY[i]
		varX := sigX[i] - mx*mx
		varY := sigY[i] - my*my
		covXY := sigXY[i] - mx*my

		num := (2*mx*my + ssimC1) * (2*covXY + ssimC2)
		den := (mx*mx + my*my + ssimC1) * (varX + varY + ssimC2)
		sum += float64(num / den)
	}
	return float32(sum / float64(n))
}

// Composite combines L1 and D-SSIM (1 - SSIM) into the total photometric
// loss, weighted by lambda (spec.md §6.3's ssim_weight), matching
// original_source's `(1-lambda)*l1 + lambda*dssim`.
func Composite(rendered, target *Image, lambda float32) float32 {
	l1 := L1(rendered, target)
	dssim := 1 - SSIM(rendered, target)
	return (1-lambda)*l1 + lambda*dssim
}

// OpacityRegularizer penalizes non-sparse opacities, encouraging the
// refine loop's pruning step to have low-opacity splats to remove
// (spec.md §4.6's opacity regularization term).
func OpacityRegularizer(opacities []float32, weight float32) float32 {
	if weight == 0 || len(opacities) == 0 {
		return 0
	}
	var sum float64
	for _, o := range opacities {
		sum += float64(o)
	}
	return weight * float32(sum/float64(len(opacities)))
}

// OpacityRegularizerGrad writes d(loss)/d(opacity) into grad.
func OpacityRegularizerGrad(opacities []float32, weight float32, grad []float32) {
	if weight == 0 || len(opacities) == 0 {
		return
	}
	g := weight / float32(len(opacities))
	for i := range grad {
		grad[i] = g
	}
}

// AlphaMatch penalizes the rendered alpha channel's disagreement with a
// foreground mask, for views that supply one (spec.md §6.1's optional
// per-view mask).
func AlphaMatch(renderedAlpha, mask []float32) float32 {
	if len(mask) == 0 {
		return 0
	}
	var sum float64
	for i := range mask {
		d := float64(renderedAlpha[i] - mask[i])
		sum += d * d
	}
	return float32(sum / float64(len(mask)))
}
