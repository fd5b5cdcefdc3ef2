package redact

import (
	"image"
	"math"
	"sync"

	"github.com/andresmejia3/redactor/internal/types"
)

const (
	// KernelSize is the footprint of the Gaussian in both axes.
	KernelSize = 41
	// Sigma is the standard deviation in both axes. Large enough that the
	// region is unrecognizable, not merely softened.
	Sigma = 30.0
)

var kernel = gaussianKernel(KernelSize, Sigma)

// scratchPool recycles the intermediate buffer of the horizontal pass.
var scratchPool = sync.Pool{
	New: func() interface{} { return make([]float32, 0, 256*1024) },
}

func gaussianKernel(size int, sigma float64) []float32 {
	k := make([]float32, size)
	half := size / 2
	var sum float64
	weights := make([]float64, size)
	for i := range weights {
		d := float64(i - half)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i, w := range weights {
		k[i] = float32(w / sum)
	}
	return k
}

// Redact blurs each region in order. Later regions see the output of earlier
// ones where they overlap.
func Redact(img *image.RGBA, regions []types.PixelRegion) {
	for _, r := range regions {
		BlurRegion(img, r)
	}
}

// BlurRegion applies a separable Gaussian blur to the region in place. The
// region is clipped to the image and treated as an isolated image, so pixels
// outside it never bleed in. Alpha is left untouched.
func BlurRegion(img *image.RGBA, region types.PixelRegion) {
	rect := image.Rect(region.X1, region.Y1, region.X2, region.Y2).Intersect(img.Bounds())
	if rect.Empty() {
		return
	}

	w, h := rect.Dx(), rect.Dy()
	half := KernelSize / 2
	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y

	needed := w * h * 3
	bufPtr := scratchPool.Get().([]float32)
	if cap(bufPtr) < needed {
		bufPtr = make([]float32, needed)
	}
	buf := bufPtr[:needed]
	defer scratchPool.Put(bufPtr)

	// 1. Horizontal pass: image -> buffer
	for y := 0; y < h; y++ {
		rowStart := (rect.Min.Y+y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < w; x++ {
			var r, g, b float32
			for k, weight := range kernel {
				off := rowStart + reflect101(x+k-half, w)*4
				r += weight * float32(pix[off])
				g += weight * float32(pix[off+1])
				b += weight * float32(pix[off+2])
			}
			bo := (y*w + x) * 3
			buf[bo], buf[bo+1], buf[bo+2] = r, g, b
		}
	}

	// 2. Vertical pass: buffer -> image, row by row for cache locality
	for y := 0; y < h; y++ {
		dstRow := (rect.Min.Y+y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < w; x++ {
			var r, g, b float32
			for k, weight := range kernel {
				bo := (reflect101(y+k-half, h)*w + x) * 3
				r += weight * buf[bo]
				g += weight * buf[bo+1]
				b += weight * buf[bo+2]
			}
			off := dstRow + x*4
			pix[off] = toByte(r)
			pix[off+1] = toByte(g)
			pix[off+2] = toByte(b)
		}
	}
}

// reflect101 maps an out-of-range index back into [0,n) mirroring around the
// edge pixel without repeating it (dcb|abcd|cba).
func reflect101(p, n int) int {
	if n == 1 {
		return 0
	}
	for p < 0 || p >= n {
		if p < 0 {
			p = -p
		}
		if p >= n {
			p = 2*n - 2 - p
		}
	}
	return p
}

func toByte(v float32) uint8 {
	v += 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
