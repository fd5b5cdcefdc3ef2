package chunk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/andresmejia3/redactor/internal/redact"
	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/types"
)

// DefaultLabelField is the detection attribute compared against target labels
// when the request does not name one.
const DefaultLabelField = "Name"

// number accepts JSON numbers and numeric strings; frame extraction writes both.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	n.value, n.set = f, true
	return nil
}

type metadataDocument struct {
	FrameWidth          number `json:"frame_width"`
	FrameHeight         number `json:"frame_height"`
	FPS                 number `json:"fps"`
	OriginalFrameWidth  number `json:"original_frame_width"`
	OriginalFrameHeight number `json:"original_frame_height"`
}

func (m metadataDocument) toMetadata() (types.Metadata, error) {
	var missing []string
	if !m.FrameWidth.set {
		missing = append(missing, "frame_width")
	}
	if !m.FrameHeight.set {
		missing = append(missing, "frame_height")
	}
	if !m.FPS.set {
		missing = append(missing, "fps")
	}
	if len(missing) > 0 {
		return types.Metadata{}, fmt.Errorf("%w: metadata is missing %s", types.ErrInput, strings.Join(missing, ", "))
	}

	md := types.Metadata{
		FrameWidth:          int(m.FrameWidth.value),
		FrameHeight:         int(m.FrameHeight.value),
		FPS:                 m.FPS.value,
		OriginalFrameWidth:  int(m.OriginalFrameWidth.value),
		OriginalFrameHeight: int(m.OriginalFrameHeight.value),
	}
	if !m.OriginalFrameWidth.set {
		md.OriginalFrameWidth = md.FrameWidth
	}
	if !m.OriginalFrameHeight.set {
		md.OriginalFrameHeight = md.FrameHeight
	}
	return md, nil
}

// chunkDocument is written by frame extraction for every chunk.
type chunkDocument struct {
	ChunkIndex *int              `json:"chunk_index"`
	Metadata   *metadataDocument `json:"metadata"`
	FrameKeys  []string          `json:"s3_resized_frame_keys"`
	Timestamps map[string]number `json:"timestamps"`
}

// detectionDocument is the detection service's result for an asset.
type detectionDocument struct {
	FramesResult []map[string]json.RawMessage `json:"frames_result"`
}

type detectionBody struct {
	BoundingBox *struct {
		Left   float64 `json:"Left"`
		Top    float64 `json:"Top"`
		Width  float64 `json:"Width"`
		Height float64 `json:"Height"`
	} `json:"BoundingBox"`
	Confidence number `json:"Confidence"`
}

// LoadChunk reads a chunk document and the detection document from object
// storage and joins them into a ChunkDescriptor. index is used when the
// chunk document does not carry its own chunk_index.
func LoadChunk(ctx context.Context, objects storage.ObjectStore, chunkKey, detectionsKey string, index int, req types.RedactionRequest) (types.ChunkDescriptor, error) {
	var desc types.ChunkDescriptor

	raw, err := objects.Get(ctx, chunkKey)
	if err != nil {
		return desc, fmt.Errorf("%w: chunk document: %v", types.ErrStorage, err)
	}
	desc, err = ParseChunk(raw, index)
	if err != nil {
		return desc, err
	}

	if detectionsKey == "" {
		return desc, nil
	}
	raw, err = objects.Get(ctx, detectionsKey)
	if err != nil {
		return desc, fmt.Errorf("%w: detection document: %v", types.ErrDetectionService, err)
	}
	detections, timestamps, err := ParseDetections(raw, req.DetectionType, req.LabelField)
	if err != nil {
		return desc, err
	}

	// Keep only the detections of frames in this chunk.
	for _, key := range desc.FrameKeys {
		idx, err := redact.ParseFrameIndex(key)
		if err != nil {
			return desc, err
		}
		if recs, ok := detections[idx]; ok {
			desc.Detections[idx] = recs
		}
		if ts, ok := timestamps[idx]; ok {
			if _, have := desc.Timestamps[idx]; !have {
				desc.Timestamps[idx] = ts
			}
		}
	}
	return desc, nil
}

// ParseChunk decodes a chunk document.
func ParseChunk(raw []byte, index int) (types.ChunkDescriptor, error) {
	var doc chunkDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return types.ChunkDescriptor{}, fmt.Errorf("%w: malformed chunk document: %v", types.ErrInput, err)
	}
	if doc.Metadata == nil {
		return types.ChunkDescriptor{}, fmt.Errorf("%w: chunk document has no metadata", types.ErrInput)
	}
	if len(doc.FrameKeys) == 0 {
		return types.ChunkDescriptor{}, fmt.Errorf("%w: chunk document lists no frames", types.ErrInput)
	}
	md, err := doc.Metadata.toMetadata()
	if err != nil {
		return types.ChunkDescriptor{}, err
	}

	desc := types.ChunkDescriptor{
		Index:      index,
		Metadata:   md,
		FrameKeys:  doc.FrameKeys,
		Detections: make(map[int][]types.DetectionRecord),
		Timestamps: make(map[int]float64),
	}
	if doc.ChunkIndex != nil {
		desc.Index = *doc.ChunkIndex
	}
	// Timestamps are keyed by frame basename without extension.
	for name, ts := range doc.Timestamps {
		if !ts.set {
			continue
		}
		idx, err := redact.ParseFrameIndex(name)
		if err != nil {
			continue
		}
		desc.Timestamps[idx] = ts.value
	}
	return desc, nil
}

// ParseDetections extracts the records of detectionType from a detection
// document, grouped by frame index. Entries of other types are ignored.
func ParseDetections(raw []byte, detectionType, labelField string) (map[int][]types.DetectionRecord, map[int]float64, error) {
	if labelField == "" {
		labelField = DefaultLabelField
	}

	var doc detectionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed detection document: %v", types.ErrInput, err)
	}

	records := make(map[int][]types.DetectionRecord)
	timestamps := make(map[int]float64)
	for i, entry := range doc.FramesResult {
		idx, err := frameID(entry["frame_id"])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: frames_result[%d]: %v", types.ErrInput, i, err)
		}

		var ts number
		if rawTS, ok := entry["Timestamp"]; ok {
			if err := json.Unmarshal(rawTS, &ts); err == nil && ts.set {
				timestamps[idx] = ts.value
			}
		}

		rawBody, ok := entry[detectionType]
		if !ok {
			continue
		}
		var body detectionBody
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return nil, nil, fmt.Errorf("%w: frames_result[%d].%s: %v", types.ErrInput, i, detectionType, err)
		}
		if body.BoundingBox == nil {
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawBody, &fields); err != nil {
			return nil, nil, fmt.Errorf("%w: frames_result[%d].%s: %v", types.ErrInput, i, detectionType, err)
		}

		// Confidence may sit on the entry or inside the detection body.
		conf := body.Confidence
		if rawConf, ok := entry["Confidence"]; ok {
			var c number
			if err := json.Unmarshal(rawConf, &c); err == nil && c.set {
				conf = c
			}
		}
		confidence := 100.0
		if conf.set {
			confidence = conf.value
		}

		records[idx] = append(records[idx], types.DetectionRecord{
			FrameIndex: idx,
			Type:       detectionType,
			Label:      labelValue(fields[labelField]),
			Box: types.BoundingBox{
				Left:   body.BoundingBox.Left,
				Top:    body.BoundingBox.Top,
				Width:  body.BoundingBox.Width,
				Height: body.BoundingBox.Height,
			},
			Confidence: confidence,
		})
	}
	return records, timestamps, nil
}

// frameID accepts 12, "12" or "frame_12".
func frameID(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing frame_id")
	}
	var n number
	if err := json.Unmarshal(raw, &n); err == nil && n.set {
		return int(n.value), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid frame_id %s", raw)
	}
	return redact.ParseFrameIndex(path.Base(s))
}

// labelValue renders a label attribute as a string: strings verbatim, other
// JSON values by their literal text.
func labelValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
