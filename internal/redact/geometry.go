package redact

import (
	"fmt"
	"math"

	"github.com/andresmejia3/redactor/internal/types"
)

// MapRegion converts a normalized bounding box into a pixel region of a
// width x height frame, grown by the padding factor and clamped to the frame.
// A box that falls entirely outside the frame yields an empty region.
func MapRegion(box types.BoundingBox, width, height int, padding float64, mode types.PaddingMode) (types.PixelRegion, error) {
	if math.IsNaN(padding) || padding <= 0 {
		return types.PixelRegion{}, fmt.Errorf("%w: padding must be positive, got %v", types.ErrGeometry, padding)
	}
	if width <= 0 || height <= 0 {
		return types.PixelRegion{}, fmt.Errorf("%w: frame size %dx%d", types.ErrGeometry, width, height)
	}

	w, h := float64(width), float64(height)
	padW := int(math.Floor(box.Width * w * padding))
	padH := int(math.Floor(box.Height * h * padding))

	var x1, y1 int
	switch mode {
	case types.PaddingOrigin:
		x1 = int(math.Floor(box.Left * w * padding))
		y1 = int(math.Floor(box.Top * h * padding))
	case types.PaddingCentered, "":
		cx := (box.Left + box.Width/2) * w
		cy := (box.Top + box.Height/2) * h
		x1 = int(math.Floor(cx - float64(padW)/2))
		y1 = int(math.Floor(cy - float64(padH)/2))
	default:
		return types.PixelRegion{}, fmt.Errorf("%w: unknown padding mode %q", types.ErrGeometry, mode)
	}

	r := types.PixelRegion{
		X1: clamp(x1, width),
		Y1: clamp(y1, height),
		X2: clamp(x1+padW, width),
		Y2: clamp(y1+padH, height),
	}
	if r.Empty() {
		return types.PixelRegion{X1: r.X1, Y1: r.Y1, X2: r.X1, Y2: r.Y1}, nil
	}
	return r, nil
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
