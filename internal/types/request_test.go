package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRedactionRequest_PaddingDefault(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		padding float64
		wantErr error
	}{
		{"Absent", `{"detection_type": "Face", "mode": "all"}`, DefaultPadding, nil},
		{"Explicit", `{"detection_type": "Face", "mode": "all", "padding": 1.25}`, 1.25, nil},
		{"ExplicitZero", `{"detection_type": "Face", "mode": "all", "padding": 0}`, 0, ErrGeometry},
		{"Negative", `{"detection_type": "Face", "mode": "all", "padding": -0.5}`, -0.5, ErrGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req RedactionRequest
			if err := json.Unmarshal([]byte(tt.doc), &req); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			req = req.WithDefaults()
			if req.Padding != tt.padding {
				t.Errorf("Padding = %v, want %v", req.Padding, tt.padding)
			}
			err := req.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedactionRequest_WithDefaultsKeepsZeroPadding(t *testing.T) {
	req := RedactionRequest{DetectionType: "Face", Mode: ModeAll}.WithDefaults()
	if req.PaddingMode != PaddingCentered {
		t.Errorf("PaddingMode = %q, want %q", req.PaddingMode, PaddingCentered)
	}
	if err := req.Validate(); !errors.Is(err, ErrGeometry) {
		t.Errorf("zero padding should be a geometry error, got %v", err)
	}
}
