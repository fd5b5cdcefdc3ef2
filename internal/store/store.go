package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresmejia3/redactor/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a catalog has not been written yet.
var ErrNotFound = errors.New("catalog not found")

// Postgres keeps per-asset catalog documents in PostgreSQL. Chunk results are
// stored one row per chunk, so concurrent chunk workers never touch the same
// row. The video catalog carries a version column for compare-and-set.
type Postgres struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			asset_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			expected_chunks INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (asset_id, workflow_id)
		);
		CREATE TABLE IF NOT EXISTS chunk_results (
			asset_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			document JSONB NOT NULL,
			reported_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (asset_id, workflow_id, chunk_index)
		);
		CREATE TABLE IF NOT EXISTS frame_catalogs (
			asset_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			document JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (asset_id, workflow_id)
		);
		CREATE TABLE IF NOT EXISTS video_catalogs (
			asset_id TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases the pool.
func (s *Postgres) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// PutChunkResult records a chunk's output. Re-reporting a chunk replaces it.
func (s *Postgres) PutChunkResult(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chunk_results (asset_id, workflow_id, chunk_index, document, reported_at)
		VALUES ($1, $2, $3, $4::jsonb, NOW())
		ON CONFLICT (asset_id, workflow_id, chunk_index) DO UPDATE SET document = EXCLUDED.document, reported_at = NOW()
	`, assetID, workflowID, res.ChunkIndex, string(doc))
	return err
}

// ListChunkResults returns every reported chunk, ordered by chunk index.
func (s *Postgres) ListChunkResults(ctx context.Context, assetID, workflowID string) ([]types.ChunkResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document FROM chunk_results WHERE asset_id = $1 AND workflow_id = $2 ORDER BY chunk_index
	`, assetID, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ChunkResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var res types.ChunkResult
		if err := json.Unmarshal(doc, &res); err != nil {
			return nil, fmt.Errorf("corrupt chunk result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// SetExpectedChunks records how many chunks a run fans out to.
func (s *Postgres) SetExpectedChunks(ctx context.Context, assetID, workflowID string, n int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (asset_id, workflow_id, expected_chunks)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id, workflow_id) DO UPDATE SET expected_chunks = EXCLUDED.expected_chunks
	`, assetID, workflowID, n)
	return err
}

// ExpectedChunks returns 0 when the run never registered a fan-out.
func (s *Postgres) ExpectedChunks(ctx context.Context, assetID, workflowID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT expected_chunks FROM workflow_runs WHERE asset_id = $1 AND workflow_id = $2
	`, assetID, workflowID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// PutFrameCatalog stores the coalesced frame catalog of a run.
func (s *Postgres) PutFrameCatalog(ctx context.Context, assetID, workflowID string, cat types.RedactedFrameCatalog) error {
	doc, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO frame_catalogs (asset_id, workflow_id, document, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (asset_id, workflow_id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, assetID, workflowID, string(doc))
	return err
}

func (s *Postgres) GetFrameCatalog(ctx context.Context, assetID, workflowID string) (types.RedactedFrameCatalog, error) {
	var cat types.RedactedFrameCatalog
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT document FROM frame_catalogs WHERE asset_id = $1 AND workflow_id = $2
	`, assetID, workflowID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return cat, ErrNotFound
	}
	if err != nil {
		return cat, err
	}
	if err := json.Unmarshal(doc, &cat); err != nil {
		return cat, fmt.Errorf("corrupt frame catalog: %w", err)
	}
	return cat, nil
}

// GetVideoCatalog returns the catalog and its version. A missing catalog is
// empty with version 0.
func (s *Postgres) GetVideoCatalog(ctx context.Context, assetID string) (types.RedactedVideoCatalog, int64, error) {
	var cat types.RedactedVideoCatalog
	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, `
		SELECT document, version FROM video_catalogs WHERE asset_id = $1
	`, assetID).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return cat, 0, nil
	}
	if err != nil {
		return cat, 0, err
	}
	if err := json.Unmarshal(doc, &cat); err != nil {
		return cat, 0, fmt.Errorf("corrupt video catalog: %w", err)
	}
	return cat, version, nil
}

// SwapVideoCatalog writes cat only if the stored version still equals
// version. Returns types.ErrConcurrentUpdate otherwise.
func (s *Postgres) SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error {
	doc, err := json.Marshal(cat)
	if err != nil {
		return err
	}

	var query string
	var args []any
	if version == 0 {
		query = `
			INSERT INTO video_catalogs (asset_id, document, version, updated_at)
			VALUES ($1, $2::jsonb, 1, NOW())
			ON CONFLICT (asset_id) DO NOTHING`
		args = []any{assetID, string(doc)}
	} else {
		query = `
			UPDATE video_catalogs SET document = $2::jsonb, version = version + 1, updated_at = NOW()
			WHERE asset_id = $1 AND version = $3`
		args = []any{assetID, string(doc), version}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentUpdate
	}
	return nil
}

// Reset drops all application tables.
func (s *Postgres) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS chunk_results CASCADE;
		DROP TABLE IF EXISTS workflow_runs CASCADE;
		DROP TABLE IF EXISTS frame_catalogs CASCADE;
		DROP TABLE IF EXISTS video_catalogs CASCADE;
	`)
	return err
}
