package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/andresmejia3/redactor/internal/types"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore holds frame and video bytes.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// RedactedFrameKey is where a redacted frame is stored. The source basename is
// kept, with ext replacing its extension, so the frame index survives.
func RedactedFrameKey(assetID, workflowID, detectionType, sourceKey, ext string) string {
	base := path.Base(sourceKey)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return fmt.Sprintf("private/assets/%s/output/%s/blur/%s/%s%s", assetID, workflowID, detectionType, stem, ext)
}

// RedactedVideoKey is where the reassembled video for a redaction type is
// stored. The type is normalized, so "Face" and "face" share one video.
func RedactedVideoKey(assetID, redactionType string) string {
	return fmt.Sprintf("private/assets/%s/output/%s_%s.mp4", assetID, assetID, types.NormalizeRedactionType(redactionType))
}

// validKey rejects keys that could escape a storage root.
func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	clean := path.Clean(key)
	if strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
