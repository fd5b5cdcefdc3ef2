package store

import (
	"context"
	"fmt"

	"github.com/andresmejia3/redactor/internal/types"
)

// CatalogStore is the persistent metadata store for per-asset catalogs.
type CatalogStore interface {
	PutChunkResult(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error
	ListChunkResults(ctx context.Context, assetID, workflowID string) ([]types.ChunkResult, error)
	SetExpectedChunks(ctx context.Context, assetID, workflowID string, n int) error
	ExpectedChunks(ctx context.Context, assetID, workflowID string) (int, error)
	PutFrameCatalog(ctx context.Context, assetID, workflowID string, cat types.RedactedFrameCatalog) error
	GetFrameCatalog(ctx context.Context, assetID, workflowID string) (types.RedactedFrameCatalog, error)
	GetVideoCatalog(ctx context.Context, assetID string) (types.RedactedVideoCatalog, int64, error)
	SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Backend     string // postgres, sqlite or memory
	PostgresURL string
	SQLitePath  string
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (CatalogStore, error) {
	switch cfg.Backend {
	case "postgres", "":
		return New(ctx, cfg.PostgresURL)
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend: %s", cfg.Backend)
	}
}

var (
	_ CatalogStore = (*Postgres)(nil)
	_ CatalogStore = (*SQLite)(nil)
	_ CatalogStore = (*Memory)(nil)
)
