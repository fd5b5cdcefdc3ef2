package redact

import (
	"errors"
	"testing"

	"github.com/andresmejia3/redactor/internal/types"
)

func TestMapRegion(t *testing.T) {
	box := types.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.2}

	tests := []struct {
		name    string
		box     types.BoundingBox
		padding float64
		mode    types.PaddingMode
		want    types.PixelRegion
	}{
		{
			name:    "Origin mode without padding",
			box:     box,
			padding: 1.0,
			mode:    types.PaddingOrigin,
			want:    types.PixelRegion{X1: 64, Y1: 48, X2: 192, Y2: 144},
		},
		{
			name:    "Origin mode scales the origin too",
			box:     box,
			padding: 1.1,
			mode:    types.PaddingOrigin,
			want:    types.PixelRegion{X1: 70, Y1: 52, X2: 210, Y2: 157},
		},
		{
			name:    "Centered mode without padding matches the box",
			box:     box,
			padding: 1.0,
			mode:    types.PaddingCentered,
			want:    types.PixelRegion{X1: 64, Y1: 48, X2: 192, Y2: 144},
		},
		{
			name:    "Centered mode grows around the centre",
			box:     box,
			padding: 1.5,
			mode:    types.PaddingCentered,
			want:    types.PixelRegion{X1: 32, Y1: 24, X2: 224, Y2: 168},
		},
		{
			name:    "Negative origin is clamped",
			box:     types.BoundingBox{Left: -0.05, Top: -0.05, Width: 0.25, Height: 0.25},
			padding: 1.0,
			mode:    types.PaddingOrigin,
			want:    types.PixelRegion{X1: 0, Y1: 0, X2: 128, Y2: 96},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapRegion(tt.box, 640, 480, tt.padding, tt.mode)
			if err != nil {
				t.Fatalf("MapRegion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("MapRegion() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapRegion_ClampsToFrame(t *testing.T) {
	got, err := MapRegion(types.BoundingBox{Left: 0.9, Top: 0.9, Width: 0.3, Height: 0.3}, 640, 480, 1.2, types.PaddingCentered)
	if err != nil {
		t.Fatal(err)
	}
	if got.X2 != 640 || got.Y2 != 480 {
		t.Errorf("Expected region clamped to 640x480, got %+v", got)
	}
	if got.Empty() {
		t.Error("Expected a non-empty region")
	}
}

func TestMapRegion_OutsideFrameIsEmpty(t *testing.T) {
	got, err := MapRegion(types.BoundingBox{Left: 1.2, Top: 1.2, Width: 0.1, Height: 0.1}, 640, 480, 1.0, types.PaddingOrigin)
	if err != nil {
		t.Fatalf("Out-of-frame box should not be an error, got %v", err)
	}
	if !got.Empty() {
		t.Errorf("Expected empty region, got %+v", got)
	}
}

func TestMapRegion_InvalidPadding(t *testing.T) {
	for _, p := range []float64{0, -1} {
		_, err := MapRegion(types.BoundingBox{Width: 0.1, Height: 0.1}, 640, 480, p, types.PaddingCentered)
		if !errors.Is(err, types.ErrGeometry) {
			t.Errorf("padding %v: expected ErrGeometry, got %v", p, err)
		}
		if !errors.Is(err, types.ErrInput) {
			t.Errorf("padding %v: geometry errors must also be input errors", p)
		}
	}
}

// TestMapRegion_AlwaysInBounds sweeps boxes inside the unit square.
func TestMapRegion_AlwaysInBounds(t *testing.T) {
	const width, height = 640, 480
	steps := []float64{0, 0.05, 0.25, 0.5, 0.75, 0.95, 1}
	paddings := []float64{0.5, 1.0, 1.1, 2.0, 3.5}
	modes := []types.PaddingMode{types.PaddingOrigin, types.PaddingCentered}

	for _, mode := range modes {
		for _, p := range paddings {
			for _, l := range steps {
				for _, tp := range steps {
					for _, w := range steps {
						for _, h := range steps {
							box := types.BoundingBox{Left: l, Top: tp, Width: w, Height: h}
							r, err := MapRegion(box, width, height, p, mode)
							if err != nil {
								t.Fatalf("MapRegion(%+v, %v, %s) error = %v", box, p, mode, err)
							}
							if r.X1 < 0 || r.X1 > r.X2 || r.X2 > width || r.Y1 < 0 || r.Y1 > r.Y2 || r.Y2 > height {
								t.Fatalf("MapRegion(%+v, %v, %s) = %+v is out of bounds", box, p, mode, r)
							}
						}
					}
				}
			}
		}
	}
}
