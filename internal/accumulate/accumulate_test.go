package accumulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/store"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestMergeVideoEntry(t *testing.T) {
	cat := types.RedactedVideoCatalog{RedactedVideoKeys: []types.VideoEntry{{RedactionType: "face", Key: "k1"}}}

	cat = MergeVideoEntry(cat, types.VideoEntry{RedactionType: "weapon", Key: "k2"})
	assert.Equal(t, []types.VideoEntry{
		{RedactionType: "face", Key: "k1"},
		{RedactionType: "weapon", Key: "k2"},
	}, cat.RedactedVideoKeys)

	cat = MergeVideoEntry(cat, types.VideoEntry{RedactionType: "face", Key: "k3"})
	assert.Equal(t, []types.VideoEntry{
		{RedactionType: "face", Key: "k3"},
		{RedactionType: "weapon", Key: "k2"},
	}, cat.RedactedVideoKeys)
}

func TestMergeVideoEntry_CollapsesDuplicates(t *testing.T) {
	cat := types.RedactedVideoCatalog{RedactedVideoKeys: []types.VideoEntry{
		{RedactionType: "face", Key: "old1"},
		{RedactionType: "face", Key: "old2"},
	}}
	got := MergeVideoEntry(cat, types.VideoEntry{RedactionType: "face", Key: "new"})
	assert.Equal(t, []types.VideoEntry{{RedactionType: "face", Key: "new"}}, got.RedactedVideoKeys)
}

func TestMergeVideoEntry_DoesNotMutateInput(t *testing.T) {
	cat := types.RedactedVideoCatalog{RedactedVideoKeys: []types.VideoEntry{{RedactionType: "face", Key: "k1"}}}
	_ = MergeVideoEntry(cat, types.VideoEntry{RedactionType: "face", Key: "k2"})
	assert.Equal(t, "k1", cat.RedactedVideoKeys[0].Key)
}

func TestRecordVideo_RedactionTypeCaseFolds(t *testing.T) {
	ctx := context.Background()
	acc := New(store.NewMemory(), WithLogger(quietLogger()))

	first := storage.RedactedVideoKey("a1", "Face")
	second := storage.RedactedVideoKey("a1", "face")
	require.Equal(t, first, second, "both spellings write the same video object")

	_, err := acc.RecordVideo(ctx, "a1", "Face", first)
	require.NoError(t, err)
	cat, err := acc.RecordVideo(ctx, "a1", " face", second)
	require.NoError(t, err)
	assert.Equal(t, []types.VideoEntry{{RedactionType: "face", Key: second}}, cat.RedactedVideoKeys)
}

func TestMergeVideoEntry_ReplacesDifferentlyCasedEntry(t *testing.T) {
	cat := types.RedactedVideoCatalog{RedactedVideoKeys: []types.VideoEntry{{RedactionType: "Face", Key: "old"}}}
	got := MergeVideoEntry(cat, types.VideoEntry{RedactionType: "FACE", Key: "new"})
	assert.Equal(t, []types.VideoEntry{{RedactionType: "face", Key: "new"}}, got.RedactedVideoKeys)
}

func TestUnionFrameKeys(t *testing.T) {
	got := UnionFrameKeys([]string{"a", "b"}, []string{"b", "c"}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestCoalesce_DisjointChunksAnyArrivalOrder(t *testing.T) {
	meta := types.Metadata{FrameWidth: 640, FrameHeight: 480, FPS: 30}
	chunkA := types.ChunkResult{ChunkIndex: 0, Metadata: meta, RedactedFrameKeys: []string{"o/frame_1.jpg", "o/frame_2.jpg", "o/frame_10.jpg"}}
	chunkB := types.ChunkResult{ChunkIndex: 1, Metadata: meta, RedactedFrameKeys: []string{"o/frame_11.jpg", "o/frame_3.jpg"}}
	want := []string{"o/frame_1.jpg", "o/frame_2.jpg", "o/frame_3.jpg", "o/frame_10.jpg", "o/frame_11.jpg"}

	for _, order := range [][]types.ChunkResult{{chunkA, chunkB}, {chunkB, chunkA}} {
		ctx := context.Background()
		acc := New(store.NewMemory(), WithLogger(quietLogger()))
		require.NoError(t, acc.ExpectChunks(ctx, "a1", "wf1", 2))

		var wg sync.WaitGroup
		for _, c := range order {
			wg.Add(1)
			go func(c types.ChunkResult) {
				defer wg.Done()
				assert.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", c))
			}(c)
		}
		wg.Wait()

		cat, err := acc.Coalesce(ctx, "a1", "wf1")
		require.NoError(t, err)
		assert.Equal(t, want, cat.RedactedFrameKeys)
		assert.Equal(t, meta, cat.Metadata)
	}
}

func TestCoalesce_WaitsForAllChunks(t *testing.T) {
	ctx := context.Background()
	acc := New(store.NewMemory(), WithLogger(quietLogger()))

	_, err := acc.Coalesce(ctx, "a1", "wf1")
	assert.True(t, errors.Is(err, types.ErrIncomplete), "unregistered run must not coalesce")

	require.NoError(t, acc.ExpectChunks(ctx, "a1", "wf1", 2))
	require.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", types.ChunkResult{ChunkIndex: 0, RedactedFrameKeys: []string{"f_1.jpg"}}))

	_, err = acc.Coalesce(ctx, "a1", "wf1")
	assert.True(t, errors.Is(err, types.ErrIncomplete))

	// A retried chunk does not count twice
	require.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", types.ChunkResult{ChunkIndex: 0, RedactedFrameKeys: []string{"f_1.jpg"}}))
	_, err = acc.Coalesce(ctx, "a1", "wf1")
	assert.True(t, errors.Is(err, types.ErrIncomplete))
}

func TestCoalesce_RequiresEveryChunkIndex(t *testing.T) {
	ctx := context.Background()
	acc := New(store.NewMemory(), WithLogger(quietLogger()))
	meta := types.Metadata{FrameWidth: 640, FrameHeight: 480, FPS: 30}

	require.NoError(t, acc.ExpectChunks(ctx, "a1", "wf1", 2))
	require.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", types.ChunkResult{ChunkIndex: 0, Metadata: meta, RedactedFrameKeys: []string{"o/f_1.jpg"}}))
	require.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", types.ChunkResult{ChunkIndex: 7, Metadata: meta, RedactedFrameKeys: []string{"o/f_9.jpg"}}))

	// Two rows, but chunk 1 never reported
	_, err := acc.Coalesce(ctx, "a1", "wf1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIncomplete))
	assert.ErrorContains(t, err, "missing [1]")

	// Once every index is in, the stray chunk is still refused
	require.NoError(t, acc.RecordChunk(ctx, "a1", "wf1", types.ChunkResult{ChunkIndex: 1, Metadata: meta, RedactedFrameKeys: []string{"o/f_2.jpg"}}))
	_, err = acc.Coalesce(ctx, "a1", "wf1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInput))
	assert.False(t, errors.Is(err, types.ErrIncomplete))
}

func TestRecordChunk_NegativeIndex(t *testing.T) {
	acc := New(store.NewMemory(), WithLogger(quietLogger()))
	err := acc.RecordChunk(context.Background(), "a1", "wf1", types.ChunkResult{ChunkIndex: -1})
	assert.True(t, errors.Is(err, types.ErrInput))
}

func TestCoalesceChunks_MetadataMismatch(t *testing.T) {
	_, err := CoalesceChunks([]types.ChunkResult{
		{ChunkIndex: 0, Metadata: types.Metadata{FrameWidth: 640, FrameHeight: 480, FPS: 30}},
		{ChunkIndex: 1, Metadata: types.Metadata{FrameWidth: 320, FrameHeight: 240, FPS: 30}},
	})
	assert.True(t, errors.Is(err, types.ErrInput))
}

func TestRecordVideo_PreservesOtherTypes(t *testing.T) {
	ctx := context.Background()
	acc := New(store.NewMemory(), WithLogger(quietLogger()))

	_, err := acc.RecordVideo(ctx, "a1", "face", "k1")
	require.NoError(t, err)
	_, err = acc.RecordVideo(ctx, "a1", "weapon", "k2")
	require.NoError(t, err)
	cat, err := acc.RecordVideo(ctx, "a1", "face", "k3")
	require.NoError(t, err)

	assert.Equal(t, []types.VideoEntry{
		{RedactionType: "face", Key: "k3"},
		{RedactionType: "weapon", Key: "k2"},
	}, cat.RedactedVideoKeys)
}

func TestRecordVideo_ConcurrentRunsLoseNothing(t *testing.T) {
	ctx := context.Background()
	catalogs := store.NewMemory()
	acc := New(catalogs, WithLogger(quietLogger()), WithMaxAttempts(100), WithBackoff(time.Microsecond))

	const runs = 12
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := acc.RecordVideo(ctx, "a1", fmt.Sprintf("type-%d", i), fmt.Sprintf("key-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cat, _, err := catalogs.GetVideoCatalog(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, cat.RedactedVideoKeys, runs)
}

// conflictingCatalogs always loses the compare-and-set.
type conflictingCatalogs struct {
	*store.Memory
	swaps int
}

func (c *conflictingCatalogs) SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error {
	c.swaps++
	return types.ErrConcurrentUpdate
}

func TestRecordVideo_RetriesAreBounded(t *testing.T) {
	catalogs := &conflictingCatalogs{Memory: store.NewMemory()}
	acc := New(catalogs, WithLogger(quietLogger()), WithMaxAttempts(3), WithBackoff(time.Microsecond))

	_, err := acc.RecordVideo(context.Background(), "a1", "face", "k1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorage))
	assert.True(t, errors.Is(err, types.ErrConcurrentUpdate))
	assert.Equal(t, 3, catalogs.swaps)

	var stageErr *types.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "a1", stageErr.AssetID)
}
