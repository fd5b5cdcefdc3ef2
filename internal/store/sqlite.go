package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresmejia3/redactor/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the embedded catalog backend for single-host runs.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite opens (or creates) the database file and its tables.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{conn: conn}
	if err := s.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS workflow_runs (
		asset_id TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		expected_chunks INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (asset_id, workflow_id)
	);
	CREATE TABLE IF NOT EXISTS chunk_results (
		asset_id TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		document TEXT NOT NULL,
		reported_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (asset_id, workflow_id, chunk_index)
	);
	CREATE TABLE IF NOT EXISTS frame_catalogs (
		asset_id TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		document TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (asset_id, workflow_id)
	);
	CREATE TABLE IF NOT EXISTS video_catalogs (
		asset_id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

func (s *SQLite) Close(ctx context.Context) error {
	return s.conn.Close()
}

func (s *SQLite) PutChunkResult(ctx context.Context, assetID, workflowID string, res types.ChunkResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO chunk_results (asset_id, workflow_id, chunk_index, document, reported_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (asset_id, workflow_id, chunk_index) DO UPDATE SET document = excluded.document, reported_at = CURRENT_TIMESTAMP`,
		assetID, workflowID, res.ChunkIndex, string(doc))
	return err
}

func (s *SQLite) ListChunkResults(ctx context.Context, assetID, workflowID string) ([]types.ChunkResult, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT document FROM chunk_results WHERE asset_id = ? AND workflow_id = ? ORDER BY chunk_index`,
		assetID, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ChunkResult
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var res types.ChunkResult
		if err := json.Unmarshal([]byte(doc), &res); err != nil {
			return nil, fmt.Errorf("corrupt chunk result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *SQLite) SetExpectedChunks(ctx context.Context, assetID, workflowID string, n int) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO workflow_runs (asset_id, workflow_id, expected_chunks) VALUES (?, ?, ?)
		ON CONFLICT (asset_id, workflow_id) DO UPDATE SET expected_chunks = excluded.expected_chunks`,
		assetID, workflowID, n)
	return err
}

func (s *SQLite) ExpectedChunks(ctx context.Context, assetID, workflowID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT expected_chunks FROM workflow_runs WHERE asset_id = ? AND workflow_id = ?`,
		assetID, workflowID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *SQLite) PutFrameCatalog(ctx context.Context, assetID, workflowID string, cat types.RedactedFrameCatalog) error {
	doc, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO frame_catalogs (asset_id, workflow_id, document, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (asset_id, workflow_id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		assetID, workflowID, string(doc))
	return err
}

func (s *SQLite) GetFrameCatalog(ctx context.Context, assetID, workflowID string) (types.RedactedFrameCatalog, error) {
	var cat types.RedactedFrameCatalog
	var doc string
	err := s.conn.QueryRowContext(ctx, `
		SELECT document FROM frame_catalogs WHERE asset_id = ? AND workflow_id = ?`,
		assetID, workflowID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return cat, ErrNotFound
	}
	if err != nil {
		return cat, err
	}
	if err := json.Unmarshal([]byte(doc), &cat); err != nil {
		return cat, fmt.Errorf("corrupt frame catalog: %w", err)
	}
	return cat, nil
}

func (s *SQLite) GetVideoCatalog(ctx context.Context, assetID string) (types.RedactedVideoCatalog, int64, error) {
	var cat types.RedactedVideoCatalog
	var doc string
	var version int64
	err := s.conn.QueryRowContext(ctx, `
		SELECT document, version FROM video_catalogs WHERE asset_id = ?`, assetID).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return cat, 0, nil
	}
	if err != nil {
		return cat, 0, err
	}
	if err := json.Unmarshal([]byte(doc), &cat); err != nil {
		return cat, 0, fmt.Errorf("corrupt video catalog: %w", err)
	}
	return cat, version, nil
}

func (s *SQLite) SwapVideoCatalog(ctx context.Context, assetID string, version int64, cat types.RedactedVideoCatalog) error {
	doc, err := json.Marshal(cat)
	if err != nil {
		return err
	}

	var res sql.Result
	if version == 0 {
		res, err = s.conn.ExecContext(ctx, `
			INSERT INTO video_catalogs (asset_id, document, version, updated_at)
			VALUES (?, ?, 1, CURRENT_TIMESTAMP)
			ON CONFLICT (asset_id) DO NOTHING`, assetID, string(doc))
	} else {
		res, err = s.conn.ExecContext(ctx, `
			UPDATE video_catalogs SET document = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE asset_id = ? AND version = ?`, string(doc), assetID, version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrConcurrentUpdate
	}
	return nil
}

func (s *SQLite) Reset(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		DROP TABLE IF EXISTS chunk_results;
		DROP TABLE IF EXISTS workflow_runs;
		DROP TABLE IF EXISTS frame_catalogs;
		DROP TABLE IF EXISTS video_catalogs;
	`)
	return err
}
