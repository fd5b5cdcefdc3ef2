// Package chunk runs the redaction pipeline over one batch of frames.
package chunk

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/andresmejia3/redactor/internal/redact"
	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/sirupsen/logrus"
)

const stage = "blur"

// Format is the image encoding of redacted frames.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Processor redacts the frames of a chunk and stores the results. It holds no
// per-chunk state, so one Processor can serve every chunk a worker receives.
type Processor struct {
	objects storage.ObjectStore
	format  Format
	quality int
	log     logrus.FieldLogger
}

type Option func(*Processor)

// WithFormat selects the output encoding. JPEG is the default.
func WithFormat(f Format) Option {
	return func(p *Processor) { p.format = f }
}

// WithJPEGQuality sets the JPEG quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(p *Processor) {
		if q >= 1 && q <= 100 {
			p.quality = q
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Processor) { p.log = l }
}

func NewProcessor(objects storage.ObjectStore, opts ...Option) *Processor {
	p := &Processor{
		objects: objects,
		format:  FormatJPEG,
		quality: 95,
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process redacts every frame of desc in order. The first failing frame
// aborts the chunk; keys already written for it are not reported.
func (p *Processor) Process(ctx context.Context, assetID, workflowID string, desc types.ChunkDescriptor, req types.RedactionRequest) (types.ChunkResult, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return types.ChunkResult{}, types.NewStageError(stage, assetID, types.ErrInput, err)
	}
	if err := validateDescriptor(desc); err != nil {
		return types.ChunkResult{}, types.NewStageError(stage, assetID, types.ErrInput, err)
	}

	log := p.log.WithFields(logrus.Fields{
		"asset":    assetID,
		"workflow": workflowID,
		"chunk":    desc.Index,
	})

	result := types.ChunkResult{
		ChunkIndex:        desc.Index,
		Metadata:          desc.Metadata,
		RedactedFrameKeys: make([]string, 0, len(desc.FrameKeys)),
	}
	redactedFrames := 0
	for _, key := range desc.FrameKeys {
		if err := ctx.Err(); err != nil {
			return types.ChunkResult{}, types.NewStageError(stage, assetID, types.ErrStorage, err)
		}

		outKey, regions, err := p.processFrame(ctx, assetID, workflowID, key, desc, req)
		if err != nil {
			log.WithField("frame", key).WithError(err).Error("Frame failed, aborting chunk")
			return types.ChunkResult{}, types.NewStageError(stage, assetID, types.ErrStorage, fmt.Errorf("frame %s: %w", key, err))
		}
		if regions > 0 {
			redactedFrames++
		}
		result.RedactedFrameKeys = append(result.RedactedFrameKeys, outKey)
	}

	log.WithFields(logrus.Fields{
		"frames":   len(result.RedactedFrameKeys),
		"redacted": redactedFrames,
	}).Info("Chunk processed")
	return result, nil
}

// processFrame returns the stored key and the number of regions blurred.
func (p *Processor) processFrame(ctx context.Context, assetID, workflowID, key string, desc types.ChunkDescriptor, req types.RedactionRequest) (string, int, error) {
	index, err := redact.ParseFrameIndex(key)
	if err != nil {
		return "", 0, err
	}

	data, err := p.objects.Get(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("%w: decode: %v", types.ErrEncoding, err)
	}
	img := redact.ToRGBA(src)
	bounds := img.Bounds()
	frame := types.Frame{
		Index:     index,
		Key:       key,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: desc.Timestamps[index],
	}

	var regions []types.PixelRegion
	for _, rec := range redact.SelectDetections(desc.Detections[index], req) {
		region, err := redact.MapRegion(rec.Box, frame.Width, frame.Height, req.Padding, req.PaddingMode)
		if err != nil {
			return "", 0, err
		}
		if region.Empty() {
			continue
		}
		regions = append(regions, region)
	}

	p.log.WithFields(logrus.Fields{
		"frame":     frame.Index,
		"timestamp": frame.Timestamp,
		"regions":   len(regions),
	}).Debug("Frame selected")

	outKey := storage.RedactedFrameKey(assetID, workflowID, req.DetectionType, frame.Key, p.ext())

	// Untouched frames already in the output encoding are stored as-is.
	var out []byte
	if len(regions) == 0 && format == string(p.format) {
		out = data
	} else {
		redact.Redact(img, regions)
		if out, err = p.encode(img); err != nil {
			return "", 0, fmt.Errorf("%w: encode: %v", types.ErrEncoding, err)
		}
	}

	if err := p.objects.Put(ctx, outKey, bytes.NewReader(out)); err != nil {
		return "", 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return outKey, len(regions), nil
}

func (p *Processor) ext() string {
	if p.format == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

func (p *Processor) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if p.format == FormatPNG {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality})
	}
	return buf.Bytes(), err
}

func validateDescriptor(desc types.ChunkDescriptor) error {
	if len(desc.FrameKeys) == 0 {
		return fmt.Errorf("%w: chunk %d has no frames", types.ErrInput, desc.Index)
	}
	m := desc.Metadata
	if m.FrameWidth <= 0 || m.FrameHeight <= 0 {
		return fmt.Errorf("%w: chunk %d metadata is missing frame size", types.ErrInput, desc.Index)
	}
	if m.FPS <= 0 {
		return fmt.Errorf("%w: chunk %d metadata is missing fps", types.ErrInput, desc.Index)
	}
	return nil
}
