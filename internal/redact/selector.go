package redact

import (
	"sort"

	"github.com/andresmejia3/redactor/internal/types"
)

// SelectDetections returns the detections of a frame that qualify for
// redaction under req, highest confidence first. Every record is examined.
func SelectDetections(records []types.DetectionRecord, req types.RedactionRequest) []types.DetectionRecord {
	if len(records) == 0 {
		return nil
	}

	targets := make(map[string]bool, len(req.TargetLabels))
	for _, l := range req.TargetLabels {
		targets[l] = true
	}

	var selected []types.DetectionRecord
	for _, rec := range records {
		if rec.Type != req.DetectionType {
			continue
		}
		if req.Mode != types.ModeAll && !targets[rec.Label] {
			continue
		}
		if rec.Confidence < req.MinConfidence {
			continue
		}
		// Degenerate boxes cannot be mapped to a region
		if rec.Box.Width <= 0 || rec.Box.Height <= 0 {
			continue
		}
		selected = append(selected, rec)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Confidence > selected[j].Confidence
	})
	return selected
}
