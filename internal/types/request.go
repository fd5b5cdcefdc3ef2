package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// Mode selects which detections of the configured type qualify.
type Mode string

const (
	// ModeTargeted redacts only detections whose label is in TargetLabels.
	ModeTargeted Mode = "targeted"
	// ModeAll redacts every detection of the configured type.
	ModeAll Mode = "all"
)

// PaddingMode selects how the padding factor is applied to a bounding box.
type PaddingMode string

const (
	// PaddingCentered grows the box symmetrically around its centre.
	PaddingCentered PaddingMode = "centered"
	// PaddingOrigin scales the origin as well as the extent. Matches frames
	// redacted by older pipelines.
	PaddingOrigin PaddingMode = "origin"
)

// RedactionRequest configures one redaction run. It is not modified once the
// run starts.
type RedactionRequest struct {
	DetectionType string      `json:"detection_type"`
	TargetLabels  []string    `json:"target_label_values"`
	LabelField    string      `json:"label_field,omitempty"`
	Padding       float64     `json:"padding"`
	MinConfidence float64     `json:"min_confidence"`
	Mode          Mode        `json:"mode,omitempty"`
	PaddingMode   PaddingMode `json:"padding_mode,omitempty"`
}

// WithDefaults fills optional fields.
func (r RedactionRequest) WithDefaults() RedactionRequest {
	if r.Mode == "" {
		r.Mode = ModeTargeted
	}
	if r.PaddingMode == "" {
		r.PaddingMode = PaddingCentered
	}
	return r
}

// DefaultPadding applies when a request document omits padding.
const DefaultPadding = 1.0

// UnmarshalJSON defaults padding only when the field is absent, so an
// explicit zero still fails validation.
func (r *RedactionRequest) UnmarshalJSON(b []byte) error {
	type plain RedactionRequest
	req := plain{Padding: DefaultPadding}
	if err := json.Unmarshal(b, &req); err != nil {
		return err
	}
	*r = RedactionRequest(req)
	return nil
}

// Validate checks the request before any frame is touched.
func (r RedactionRequest) Validate() error {
	if r.DetectionType == "" {
		return fmt.Errorf("%w: detection type is required", ErrInput)
	}
	if math.IsNaN(r.Padding) || r.Padding <= 0 {
		return fmt.Errorf("%w: padding must be positive, got %v", ErrGeometry, r.Padding)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 100 {
		return fmt.Errorf("%w: min confidence must be between 0 and 100, got %v", ErrInput, r.MinConfidence)
	}
	switch r.Mode {
	case ModeTargeted:
		if len(r.TargetLabels) == 0 {
			return fmt.Errorf("%w: targeted mode requires at least one target label", ErrInput)
		}
	case ModeAll:
	default:
		return fmt.Errorf("%w: invalid mode %q", ErrInput, r.Mode)
	}
	switch r.PaddingMode {
	case PaddingCentered, PaddingOrigin:
	default:
		return fmt.Errorf("%w: invalid padding mode %q", ErrInput, r.PaddingMode)
	}
	return nil
}
