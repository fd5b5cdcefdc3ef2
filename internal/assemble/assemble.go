// Package assemble turns a catalog of redacted frames into a video.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/andresmejia3/redactor/internal/redact"
	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/sirupsen/logrus"
)

const stage = "stitch"

// Encoder consumes frames in presentation order.
type Encoder interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// EncoderFactory starts an encoder writing to outputPath.
type EncoderFactory func(ctx context.Context, outputPath string, fps float64, width, height int) (Encoder, error)

// FFmpeg is the default EncoderFactory.
func FFmpeg(ctx context.Context, outputPath string, fps float64, width, height int) (Encoder, error) {
	enc, err := utils.NewFFmpegEncoder(ctx, outputPath, fps, width, height)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// Verifier inspects the encoded file before it is uploaded.
type Verifier func(ctx context.Context, path string) (utils.VideoInfo, error)

// Assembler streams frames from object storage into an Encoder and uploads
// the finished file. Only one decoded frame is held at a time.
type Assembler struct {
	objects    storage.ObjectStore
	newEncoder EncoderFactory
	verify     Verifier
	tempDir    string
	progress   func(done, total int)
	log        logrus.FieldLogger
}

type Option func(*Assembler)

func WithEncoder(f EncoderFactory) Option {
	return func(a *Assembler) { a.newEncoder = f }
}

// WithVerifier checks the encoded frame count and size against the catalog.
func WithVerifier(v Verifier) Option {
	return func(a *Assembler) { a.verify = v }
}

// WithTempDir sets where the encoded file is staged before upload.
func WithTempDir(dir string) Option {
	return func(a *Assembler) { a.tempDir = dir }
}

// WithProgress is called after every frame written.
func WithProgress(fn func(done, total int)) Option {
	return func(a *Assembler) { a.progress = fn }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Assembler) { a.log = l }
}

func New(objects storage.ObjectStore, opts ...Option) *Assembler {
	a := &Assembler{
		objects:    objects,
		newEncoder: FFmpeg,
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble encodes cat's frames in natural key order at the catalog frame
// rate and stores the video under storage.RedactedVideoKey. Nothing is
// uploaded if any frame fails.
func (a *Assembler) Assemble(ctx context.Context, assetID, redactionType string, cat types.RedactedFrameCatalog) (string, error) {
	// Cancelling kills the encoder process on early return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateCatalog(redactionType, cat); err != nil {
		return "", types.NewStageError(stage, assetID, types.ErrInput, err)
	}
	meta := cat.Metadata
	keys := redact.SortFrameKeys(cat.RedactedFrameKeys)
	log := a.log.WithFields(logrus.Fields{
		"asset":  assetID,
		"type":   redactionType,
		"frames": len(keys),
	})

	tmp, err := os.CreateTemp(a.tempDir, "redacted-*.mp4")
	if err != nil {
		return "", types.NewStageError(stage, assetID, types.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	enc, err := a.newEncoder(ctx, tmpPath, meta.FPS, meta.FrameWidth, meta.FrameHeight)
	if err != nil {
		return "", types.NewStageError(stage, assetID, types.ErrEncoding, err)
	}

	for i, key := range keys {
		if err := a.writeFrame(ctx, enc, key, meta); err != nil {
			cancel()
			enc.Close()
			withStderr(log, err).WithError(err).WithField("key", key).Error("frame rejected, video discarded")
			return "", types.NewStageError(stage, assetID, types.ErrEncoding, err)
		}
		if a.progress != nil {
			a.progress(i+1, len(keys))
		}
	}
	if err := enc.Close(); err != nil {
		withStderr(log, err).WithError(err).Error("encoder failed, video discarded")
		return "", types.NewStageError(stage, assetID, types.ErrEncoding, err)
	}

	if a.verify != nil {
		info, err := a.verify(ctx, tmpPath)
		if err != nil {
			return "", types.NewStageError(stage, assetID, types.ErrEncoding, err)
		}
		if info.Frames != len(keys) || info.Width != meta.FrameWidth || info.Height != meta.FrameHeight {
			return "", types.NewStageError(stage, assetID, types.ErrEncoding,
				fmt.Errorf("encoded %d frames at %dx%d, expected %d at %dx%d",
					info.Frames, info.Width, info.Height, len(keys), meta.FrameWidth, meta.FrameHeight))
		}
	}

	videoKey := storage.RedactedVideoKey(assetID, redactionType)
	f, err := os.Open(tmpPath)
	if err != nil {
		return "", types.NewStageError(stage, assetID, types.ErrStorage, err)
	}
	defer f.Close()
	if err := a.objects.Put(ctx, videoKey, f); err != nil {
		return "", types.NewStageError(stage, assetID, types.ErrStorage, err)
	}

	log.WithField("key", videoKey).Info("video assembled")
	return videoKey, nil
}

func (a *Assembler) writeFrame(ctx context.Context, enc Encoder, key string, meta types.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := a.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", types.ErrStorage, key, err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	b := src.Bounds()
	if b.Dx() != meta.FrameWidth || b.Dy() != meta.FrameHeight {
		return fmt.Errorf("frame %s is %dx%d, video is %dx%d", key, b.Dx(), b.Dy(), meta.FrameWidth, meta.FrameHeight)
	}
	if err := enc.WriteFrame(redact.ToRGBA(src)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// withStderr attaches a failed subprocess's stderr to the log entry.
func withStderr(log logrus.FieldLogger, err error) logrus.FieldLogger {
	var procErr *utils.ProcessError
	if errors.As(err, &procErr) {
		return log.WithField("stderr", procErr.Stderr())
	}
	return log
}

func validateCatalog(redactionType string, cat types.RedactedFrameCatalog) error {
	if redactionType == "" {
		return fmt.Errorf("redaction type is required")
	}
	if len(cat.RedactedFrameKeys) == 0 {
		return fmt.Errorf("catalog has no frames")
	}
	m := cat.Metadata
	if m.FrameWidth <= 0 || m.FrameHeight <= 0 {
		return fmt.Errorf("catalog frame size %dx%d is invalid", m.FrameWidth, m.FrameHeight)
	}
	if !(m.FPS > 0) {
		return fmt.Errorf("catalog fps %v is invalid", m.FPS)
	}
	return nil
}
