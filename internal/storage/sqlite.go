package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pulpit/internal/models"
)

// sqliteMaxVars keeps IN lists under SQLite's bound-parameter limit.
const sqliteMaxVars = 500

// SQLiteStore reads chunk metadata from a SQLite database. It is used for local
// development and tests; the table is created if missing.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens or creates the database at dbPath. Parent directories are
// created if they do not exist.
func NewSQLiteStore(dbPath, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	memory := dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db, table: table}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		chunk_id TEXT PRIMARY KEY,
		chunk TEXT,
		title TEXT,
		source_url TEXT,
		transcription_date TIMESTAMP,
		word_count INTEGER,
		char_count INTEGER,
		pastor_slug TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_%s_pastor_slug ON %s(pastor_slug);
	`, s.table, strings.ReplaceAll(s.table, ".", "_"), s.table))
	return err
}

// GetChunksByIDs returns the rows for ids.
func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error) {
	ids = uniqueIDs(ids)
	out := make(map[string]*models.ChunkRecord, len(ids))
	for _, batch := range batches(ids, sqliteMaxVars) {
		if err := s.fetch(ctx, batch, out); err != nil {
			return nil, &StoreError{Driver: s.Driver(), Op: "get chunks", Err: err}
		}
	}
	return out, nil
}

func (s *SQLiteStore) fetch(ctx context.Context, ids []string, out map[string]*models.ChunkRecord) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE chunk_id IN (%s)`, chunkColumns, s.table, placeholders),
		args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return err
		}
		out[rec.ChunkID] = rec
	}
	return rows.Err()
}

// SeedChunks inserts or replaces rows in a transaction.
func (s *SQLiteStore) SeedChunks(ctx context.Context, chunks []*models.ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table, chunkColumns))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		var date interface{}
		if c.TranscriptionDate != nil {
			date = *c.TranscriptionDate
		}
		if _, err := stmt.ExecContext(ctx,
			c.ChunkID, nullable(c.Chunk), nullable(c.Title), nullable(c.SourceURL),
			date, nullable(c.WordCount), nullable(c.CharCount), nullable(c.PastorSlug),
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// CountChunks returns the number of rows in the table.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count)
	return count, err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns "sqlite".
func (s *SQLiteStore) Driver() string {
	return "sqlite"
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
