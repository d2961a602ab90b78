// Package storage fetches chunk metadata rows by chunk id from the metadata store
// (Postgres, SQLite or Supabase).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hyperjump/pulpit/internal/models"
)

// DefaultTable is the metadata table written by the ingestion pipeline.
const DefaultTable = "sermon_chunks"

const chunkColumns = "chunk_id, chunk, title, source_url, transcription_date, word_count, char_count, pastor_slug"

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ChunkStore looks up chunk metadata.
type ChunkStore interface {
	// GetChunksByIDs returns the rows found for ids, keyed by chunk id. Ids
	// without a row are absent from the map; that is not an error.
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// StoreError reports a metadata store failure.
type StoreError struct {
	Driver string
	Op     string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Driver, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the store call ran out of time.
func (e *StoreError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ValidateTable checks that name is a plain (optionally schema-qualified) identifier.
func ValidateTable(name string) error {
	if !tablePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*models.ChunkRecord, error) {
	var (
		rec                       models.ChunkRecord
		chunk, title, url, pastor sql.NullString
		date                      sql.NullTime
		words, chars              sql.NullInt64
	)
	if err := row.Scan(&rec.ChunkID, &chunk, &title, &url, &date, &words, &chars, &pastor); err != nil {
		return nil, err
	}
	if chunk.Valid {
		rec.Chunk = models.StringPtr(chunk.String)
	}
	if title.Valid {
		rec.Title = models.StringPtr(title.String)
	}
	if url.Valid {
		rec.SourceURL = models.StringPtr(url.String)
	}
	if date.Valid {
		rec.TranscriptionDate = models.TimePtr(date.Time.UTC())
	}
	if words.Valid {
		rec.WordCount = models.IntPtr(int(words.Int64))
	}
	if chars.Valid {
		rec.CharCount = models.IntPtr(int(chars.Int64))
	}
	if pastor.Valid {
		rec.PastorSlug = models.StringPtr(pastor.String)
	}
	return &rec, nil
}

// PoolConfig sets database/sql connection pool limits.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p PoolConfig) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}
