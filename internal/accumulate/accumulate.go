// Package accumulate merges chunk and run outputs into an asset's catalogs.
package accumulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/redactor/internal/redact"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/sirupsen/logrus"
)

// Catalogs is the subset of the metadata store the accumulator needs.
type Catalogs interface {
	PutChunkResult(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error
	ListChunkResults(ctx context.Context, assetID, workflowID string) ([]types.ChunkResult, error)
	SetExpectedChunks(ctx context.Context, assetID, workflowID string, n int) error
	ExpectedChunks(ctx context.Context, assetID, workflowID string) (int, error)
	PutFrameCatalog(ctx context.Context, assetID, workflowID string, cat types.RedactedFrameCatalog) error
	GetVideoCatalog(ctx context.Context, assetID string) (types.RedactedVideoCatalog, int64, error)
	SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error
}

const (
	DefaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
)

// Accumulator writes results to the catalog store.
type Accumulator struct {
	catalogs    Catalogs
	maxAttempts int
	backoff     time.Duration
	log         logrus.FieldLogger
}

type Option func(*Accumulator)

// WithMaxAttempts bounds the read-modify-write retries of RecordVideo.
func WithMaxAttempts(n int) Option {
	return func(a *Accumulator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between retries. It grows linearly.
func WithBackoff(d time.Duration) Option {
	return func(a *Accumulator) { a.backoff = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Accumulator) { a.log = l }
}

func New(catalogs Catalogs, opts ...Option) *Accumulator {
	a := &Accumulator{
		catalogs:    catalogs,
		maxAttempts: DefaultMaxAttempts,
		backoff:     defaultBackoff,
		log:         logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RecordChunk stores a chunk's output. Re-recording the same chunk index
// replaces the earlier result.
func (a *Accumulator) RecordChunk(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error {
	if res.ChunkIndex < 0 {
		return types.NewStageError("record chunk", assetID, types.ErrInput, fmt.Errorf("chunk index must be >= 0, got %d", res.ChunkIndex))
	}
	if err := a.catalogs.PutChunkResult(ctx, assetID, workflowID, res); err != nil {
		return types.NewStageError("record chunk", assetID, types.ErrStorage, err)
	}
	a.log.WithFields(logrus.Fields{
		"asset":    assetID,
		"workflow": workflowID,
		"chunk":    res.ChunkIndex,
		"frames":   len(res.RedactedFrameKeys),
	}).Info("Chunk recorded")
	return nil
}

// ExpectChunks records the number of chunks a run fans out to. Coalesce
// refuses to run until that many chunks reported.
func (a *Accumulator) ExpectChunks(ctx context.Context, assetID, workflowID string, n int) error {
	if n < 1 {
		return types.NewStageError("expect chunks", assetID, types.ErrInput, fmt.Errorf("expected chunk count must be >= 1, got %d", n))
	}
	if err := a.catalogs.SetExpectedChunks(ctx, assetID, workflowID, n); err != nil {
		return types.NewStageError("expect chunks", assetID, types.ErrStorage, err)
	}
	return nil
}

// Coalesce builds the run's frame catalog from every reported chunk, in
// temporal order, and persists it.
func (a *Accumulator) Coalesce(ctx context.Context, assetID, workflowID string) (types.RedactedFrameCatalog, error) {
	const stage = "coalesce"
	var cat types.RedactedFrameCatalog

	expected, err := a.catalogs.ExpectedChunks(ctx, assetID, workflowID)
	if err != nil {
		return cat, types.NewStageError(stage, assetID, types.ErrStorage, err)
	}
	if expected < 1 {
		return cat, types.NewStageError(stage, assetID, types.ErrIncomplete, fmt.Errorf("workflow %s never registered its chunk count", workflowID))
	}

	chunks, err := a.catalogs.ListChunkResults(ctx, assetID, workflowID)
	if err != nil {
		return cat, types.NewStageError(stage, assetID, types.ErrStorage, err)
	}
	if err := checkChunkIndexes(chunks, expected); err != nil {
		return cat, types.NewStageError(stage, assetID, types.ErrIncomplete, err)
	}

	cat, err = CoalesceChunks(chunks)
	if err != nil {
		return cat, types.NewStageError(stage, assetID, types.ErrInput, err)
	}
	if err := a.catalogs.PutFrameCatalog(ctx, assetID, workflowID, cat); err != nil {
		return cat, types.NewStageError(stage, assetID, types.ErrStorage, err)
	}

	a.log.WithFields(logrus.Fields{
		"asset":    assetID,
		"workflow": workflowID,
		"chunks":   len(chunks),
		"frames":   len(cat.RedactedFrameKeys),
	}).Info("Frame catalog coalesced")
	return cat, nil
}

// checkChunkIndexes requires the reported indexes to be exactly 0..expected-1.
// Missing chunks are ErrIncomplete; indexes outside the range are ErrInput.
func checkChunkIndexes(chunks []types.ChunkResult, expected int) error {
	seen := make(map[int]bool, len(chunks))
	var stray []int
	for _, c := range chunks {
		if c.ChunkIndex < 0 || c.ChunkIndex >= expected {
			stray = append(stray, c.ChunkIndex)
			continue
		}
		seen[c.ChunkIndex] = true
	}
	var missing []int
	for i := 0; i < expected; i++ {
		if !seen[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d of %d chunks reported, missing %v", types.ErrIncomplete, len(seen), expected, missing)
	}
	if len(stray) > 0 {
		return fmt.Errorf("%w: chunk indexes %v outside 0..%d", types.ErrInput, stray, expected-1)
	}
	return nil
}

// CoalesceChunks unions the chunks' keys (duplicates dropped) in natural
// order. Every chunk must agree on frame size and fps.
func CoalesceChunks(chunks []types.ChunkResult) (types.RedactedFrameCatalog, error) {
	var cat types.RedactedFrameCatalog
	if len(chunks) == 0 {
		return cat, fmt.Errorf("%w: no chunks to coalesce", types.ErrInput)
	}

	cat.Metadata = chunks[0].Metadata
	lists := make([][]string, 0, len(chunks))
	for _, c := range chunks {
		m := c.Metadata
		if m.FrameWidth != cat.Metadata.FrameWidth || m.FrameHeight != cat.Metadata.FrameHeight || m.FPS != cat.Metadata.FPS {
			return cat, fmt.Errorf("%w: chunk %d metadata %dx%d@%v disagrees with %dx%d@%v", types.ErrInput,
				c.ChunkIndex, m.FrameWidth, m.FrameHeight, m.FPS,
				cat.Metadata.FrameWidth, cat.Metadata.FrameHeight, cat.Metadata.FPS)
		}
		lists = append(lists, c.RedactedFrameKeys)
	}
	cat.RedactedFrameKeys = redact.SortFrameKeys(UnionFrameKeys(lists...))
	return cat, nil
}

// UnionFrameKeys concatenates the lists, keeping the first occurrence of each key.
func UnionFrameKeys(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range lists {
		for _, k := range l {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// RecordVideo adds or replaces the catalog entry for redactionType. The
// catalog is updated with compare-and-set; a lost race re-reads and retries.
func (a *Accumulator) RecordVideo(ctx context.Context, assetID, redactionType, key string) (types.RedactedVideoCatalog, error) {
	const stage = "record video"
	redactionType = types.NormalizeRedactionType(redactionType)
	entry := types.VideoEntry{RedactionType: redactionType, Key: key}
	log := a.log.WithFields(logrus.Fields{"asset": assetID, "redaction_type": redactionType})

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		cat, version, err := a.catalogs.GetVideoCatalog(ctx, assetID)
		if err != nil {
			return cat, types.NewStageError(stage, assetID, types.ErrStorage, err)
		}

		merged := MergeVideoEntry(cat, entry)
		err = a.catalogs.SwapVideoCatalog(ctx, assetID, version, merged)
		if err == nil {
			log.WithField("key", key).Info("Video catalog updated")
			return merged, nil
		}
		if !errors.Is(err, types.ErrConcurrentUpdate) {
			return cat, types.NewStageError(stage, assetID, types.ErrStorage, err)
		}

		log.WithField("attempt", attempt).Warn("Video catalog changed underneath us, retrying")
		select {
		case <-ctx.Done():
			return cat, types.NewStageError(stage, assetID, types.ErrStorage, ctx.Err())
		case <-time.After(a.backoff * time.Duration(attempt)):
		}
	}

	err := fmt.Errorf("%w: gave up after %d attempts", types.ErrConcurrentUpdate, a.maxAttempts)
	return types.RedactedVideoCatalog{}, types.NewStageError(stage, assetID, types.ErrStorage, err)
}

// MergeVideoEntry returns a copy of cat with entry inserted, replacing any
// entry of the same redaction type in place. Types compare in normalized
// form. Other entries keep their order.
func MergeVideoEntry(cat types.RedactedVideoCatalog, entry types.VideoEntry) types.RedactedVideoCatalog {
	entry.RedactionType = types.NormalizeRedactionType(entry.RedactionType)
	out := types.RedactedVideoCatalog{RedactedVideoKeys: make([]types.VideoEntry, 0, len(cat.RedactedVideoKeys)+1)}
	replaced := false
	for _, e := range cat.RedactedVideoKeys {
		if types.NormalizeRedactionType(e.RedactionType) == entry.RedactionType {
			if replaced {
				continue
			}
			e = entry
			replaced = true
		}
		out.RedactedVideoKeys = append(out.RedactedVideoKeys, e)
	}
	if !replaced {
		out.RedactedVideoKeys = append(out.RedactedVideoKeys, entry)
	}
	return out
}
