package store

import (
	"context"
	"sort"
	"sync"

	"github.com/andresmejia3/redactor/internal/types"
)

type runKey struct {
	asset, workflow string
}

type versionedCatalog struct {
	cat     types.RedactedVideoCatalog
	version int64
}

// Memory is an in-process catalog backend. It follows the same
// compare-and-set contract as the database backends.
type Memory struct {
	mu       sync.Mutex
	chunks   map[runKey]map[int]types.ChunkResult
	expected map[runKey]int
	frames   map[runKey]types.RedactedFrameCatalog
	videos   map[string]versionedCatalog
}

func NewMemory() *Memory {
	return &Memory{
		chunks:   make(map[runKey]map[int]types.ChunkResult),
		expected: make(map[runKey]int),
		frames:   make(map[runKey]types.RedactedFrameCatalog),
		videos:   make(map[string]versionedCatalog),
	}
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) PutChunkResult(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := runKey{assetID, workflowID}
	if m.chunks[k] == nil {
		m.chunks[k] = make(map[int]types.ChunkResult)
	}
	res.RedactedFrameKeys = append([]string(nil), res.RedactedFrameKeys...)
	m.chunks[k][res.ChunkIndex] = res
	return nil
}

func (m *Memory) ListChunkResults(ctx context.Context, assetID, workflowID string) ([]types.ChunkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ChunkResult
	for _, r := range m.chunks[runKey{assetID, workflowID}] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *Memory) SetExpectedChunks(ctx context.Context, assetID, workflowID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected[runKey{assetID, workflowID}] = n
	return nil
}

func (m *Memory) ExpectedChunks(ctx context.Context, assetID, workflowID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expected[runKey{assetID, workflowID}], nil
}

func (m *Memory) PutFrameCatalog(ctx context.Context, assetID, workflowID string, cat types.RedactedFrameCatalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[runKey{assetID, workflowID}] = cat
	return nil
}

func (m *Memory) GetFrameCatalog(ctx context.Context, assetID, workflowID string) (types.RedactedFrameCatalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat, ok := m.frames[runKey{assetID, workflowID}]
	if !ok {
		return cat, ErrNotFound
	}
	return cat, nil
}

func (m *Memory) GetVideoCatalog(ctx context.Context, assetID string) (types.RedactedVideoCatalog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.videos[assetID]
	cat := types.RedactedVideoCatalog{RedactedVideoKeys: append([]types.VideoEntry(nil), v.cat.RedactedVideoKeys...)}
	return cat, v.version, nil
}

func (m *Memory) SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videos[assetID].version != version {
		return types.ErrConcurrentUpdate
	}
	m.videos[assetID] = versionedCatalog{
		cat:     types.RedactedVideoCatalog{RedactedVideoKeys: append([]types.VideoEntry(nil), cat.RedactedVideoKeys...)},
		version: version + 1,
	}
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = make(map[runKey]map[int]types.ChunkResult)
	m.expected = make(map[runKey]int)
	m.frames = make(map[runKey]types.RedactedFrameCatalog)
	m.videos = make(map[string]versionedCatalog)
	return nil
}
