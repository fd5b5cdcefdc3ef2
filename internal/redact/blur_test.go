package redact

import (
	"bytes"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/andresmejia3/redactor/internal/types"
)

func noisyImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func regionStdDev(img *image.RGBA, r types.PixelRegion) float64 {
	var sum, sumSq, n float64
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			v := float64(img.Pix[img.PixOffset(x, y)])
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / n
	return math.Sqrt(sumSq/n - mean*mean)
}

func meanAbsDiff(a, b *image.RGBA, r types.PixelRegion) float64 {
	var total, n float64
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			off := a.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				total += math.Abs(float64(a.Pix[off+c]) - float64(b.Pix[off+c]))
				n++
			}
		}
	}
	return total / n
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

func TestBlurRegion_DestroysDetail(t *testing.T) {
	img := noisyImage(160, 120, 1)
	region := types.PixelRegion{X1: 40, Y1: 30, X2: 120, Y2: 90}

	before := regionStdDev(img, region)
	BlurRegion(img, region)
	after := regionStdDev(img, region)

	if after > before*0.1 {
		t.Errorf("Expected blur to flatten the region: stddev before %.2f, after %.2f", before, after)
	}
}

func TestBlurRegion_LeavesOutsideUntouched(t *testing.T) {
	img := noisyImage(100, 100, 2)
	orig := cloneRGBA(img)
	region := types.PixelRegion{X1: 20, Y1: 20, X2: 60, Y2: 60}

	BlurRegion(img, region)

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x >= region.X1 && x < region.X2 && y >= region.Y1 && y < region.Y2 {
				continue
			}
			off := img.PixOffset(x, y)
			if !bytes.Equal(img.Pix[off:off+4], orig.Pix[off:off+4]) {
				t.Fatalf("Pixel (%d,%d) outside the region changed", x, y)
			}
		}
	}
}

func TestBlurRegion_Idempotent(t *testing.T) {
	img := noisyImage(120, 120, 3)
	region := types.PixelRegion{X1: 10, Y1: 10, X2: 90, Y2: 70}

	BlurRegion(img, region)
	once := cloneRGBA(img)
	BlurRegion(img, region)

	if d := meanAbsDiff(once, img, region); d > 4 {
		t.Errorf("Second blur changed the region too much: mean abs diff %.2f", d)
	}
}

func TestBlurRegion_KeepsAlpha(t *testing.T) {
	img := noisyImage(50, 50, 4)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 128
	}
	BlurRegion(img, types.PixelRegion{X1: 0, Y1: 0, X2: 50, Y2: 50})
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 128 {
			t.Fatalf("Alpha changed at offset %d: %d", i, img.Pix[i])
		}
	}
}

func TestBlurRegion_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		region types.PixelRegion
	}{
		{"Empty region", types.PixelRegion{X1: 10, Y1: 10, X2: 10, Y2: 10}},
		{"Single column", types.PixelRegion{X1: 5, Y1: 0, X2: 6, Y2: 40}},
		{"Single pixel", types.PixelRegion{X1: 5, Y1: 5, X2: 6, Y2: 6}},
		{"Two pixels wide", types.PixelRegion{X1: 5, Y1: 5, X2: 7, Y2: 30}},
		{"Outside the image", types.PixelRegion{X1: 500, Y1: 500, X2: 600, Y2: 600}},
		{"Overhanging the image", types.PixelRegion{X1: -10, Y1: -10, X2: 1000, Y2: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := noisyImage(40, 40, 5)
			BlurRegion(img, tt.region) // must not panic
		})
	}
}

func TestRedact_AppliesEveryRegion(t *testing.T) {
	img := noisyImage(200, 100, 6)
	left := types.PixelRegion{X1: 0, Y1: 0, X2: 80, Y2: 100}
	right := types.PixelRegion{X1: 120, Y1: 0, X2: 200, Y2: 100}
	beforeL, beforeR := regionStdDev(img, left), regionStdDev(img, right)

	Redact(img, []types.PixelRegion{left, right})

	if regionStdDev(img, left) > beforeL*0.1 || regionStdDev(img, right) > beforeR*0.1 {
		t.Error("Expected both regions to be blurred")
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ p, n, want int }{
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{2, 5, 2},
		{-20, 1, 0},
		{20, 2, 0},
	}
	for _, tt := range tests {
		if got := reflect101(tt.p, tt.n); got != tt.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.p, tt.n, got, tt.want)
		}
	}
}
