package redact

import (
	"testing"

	"github.com/andresmejia3/redactor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func face(label string, conf float64) types.DetectionRecord {
	return types.DetectionRecord{
		Type:       "Face",
		Label:      label,
		Box:        types.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.2},
		Confidence: conf,
	}
}

func faceRequest(labels ...string) types.RedactionRequest {
	return types.RedactionRequest{
		DetectionType: "Face",
		TargetLabels:  labels,
		Padding:       1.1,
		MinConfidence: 40,
	}.WithDefaults()
}

func TestSelectDetections_ConfidenceBoundary(t *testing.T) {
	req := faceRequest("alice")

	assert.Empty(t, SelectDetections([]types.DetectionRecord{face("alice", 39)}, req))
	assert.Len(t, SelectDetections([]types.DetectionRecord{face("alice", 40.0)}, req), 1)
}

func TestSelectDetections_Filters(t *testing.T) {
	records := []types.DetectionRecord{
		face("alice", 90),
		face("bob", 95),
		{Type: "Weapon", Label: "alice", Box: types.BoundingBox{Width: 0.1, Height: 0.1}, Confidence: 99},
		{Type: "Face", Label: "alice", Box: types.BoundingBox{Left: 0.5, Width: 0, Height: 0.2}, Confidence: 99},
	}

	got := SelectDetections(records, faceRequest("alice"))
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Label)
	assert.Equal(t, 90.0, got[0].Confidence)
}

func TestSelectDetections_NoDetections(t *testing.T) {
	assert.Empty(t, SelectDetections(nil, faceRequest("alice")))
}

// Every qualifying detection must be returned, not just the first one found
// for the frame.
func TestSelectDetections_ScansAllRecords(t *testing.T) {
	records := []types.DetectionRecord{
		face("carol", 99),
		face("alice", 60),
		face("bob", 70),
		face("alice", 80),
	}

	got := SelectDetections(records, faceRequest("alice", "bob"))
	require.Len(t, got, 3)
	assert.Equal(t, []float64{80, 70, 60}, []float64{got[0].Confidence, got[1].Confidence, got[2].Confidence})
}

func TestSelectDetections_TiesKeepInputOrder(t *testing.T) {
	a := face("alice", 75)
	a.Box.Left = 0.3
	b := face("alice", 75)
	b.Box.Left = 0.6

	got := SelectDetections([]types.DetectionRecord{a, b}, faceRequest("alice"))
	require.Len(t, got, 2)
	assert.Equal(t, 0.3, got[0].Box.Left)
	assert.Equal(t, 0.6, got[1].Box.Left)
}

func TestSelectDetections_ModeAll(t *testing.T) {
	req := faceRequest()
	req.Mode = types.ModeAll

	got := SelectDetections([]types.DetectionRecord{face("alice", 50), face("bob", 45), face("eve", 10)}, req)
	assert.Len(t, got, 2)
}
