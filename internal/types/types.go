package types

import "strings"

// BoundingBox is a detection box in normalized [0,1] image coordinates.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectionRecord is one detection reported for a frame by the detection service.
type DetectionRecord struct {
	FrameIndex int         `json:"frame_index"`
	Type       string      `json:"type"`
	Label      string      `json:"label"`
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"` // 0-100
}

// Frame is a single extracted still, identified by the index in its key name.
type Frame struct {
	Index     int     `json:"index"`
	Key       string  `json:"key"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Timestamp float64 `json:"timestamp"`
}

// PixelRegion is a half-open pixel rectangle [X1,X2)x[Y1,Y2).
type PixelRegion struct {
	X1, Y1, X2, Y2 int
}

// Empty reports whether the region covers no pixels.
func (r PixelRegion) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Metadata is shared by every chunk of an asset.
type Metadata struct {
	FrameWidth          int     `json:"frame_width"`
	FrameHeight         int     `json:"frame_height"`
	FPS                 float64 `json:"fps"`
	OriginalFrameWidth  int     `json:"original_frame_width"`
	OriginalFrameHeight int     `json:"original_frame_height"`
}

// ChunkDescriptor is the input of one chunk worker: the frames to process in
// order plus the detections that apply to them, keyed by frame index.
type ChunkDescriptor struct {
	Index      int                       `json:"chunk_index"`
	Metadata   Metadata                  `json:"metadata"`
	FrameKeys  []string                  `json:"frame_keys"`
	Detections map[int][]DetectionRecord `json:"detections"`
	Timestamps map[int]float64           `json:"timestamps"`
}

// ChunkResult is what a chunk worker produced.
type ChunkResult struct {
	ChunkIndex        int      `json:"chunk_index"`
	Metadata          Metadata `json:"metadata"`
	RedactedFrameKeys []string `json:"redacted_frame_keys"`
}

// RedactedFrameCatalog is the coalesced output of every chunk in a run.
type RedactedFrameCatalog struct {
	Metadata          Metadata `json:"metadata"`
	RedactedFrameKeys []string `json:"redacted_frame_keys"`
}

// VideoEntry maps one redaction type to the video produced for it.
type VideoEntry struct {
	RedactionType string `json:"redaction_type"`
	Key           string `json:"key"`
}

// RedactedVideoCatalog lists every redacted variant of an asset.
type RedactedVideoCatalog struct {
	RedactedVideoKeys []VideoEntry `json:"redacted_video_keys"`
}

// NormalizeRedactionType is the canonical form of a redaction type, used both
// in video object keys and as the video catalog entry key.
func NormalizeRedactionType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
