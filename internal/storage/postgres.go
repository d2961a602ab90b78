package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hyperjump/pulpit/internal/models"
)

// PostgresStore reads chunk metadata from Postgres with one = ANY($1) query per call.
type PostgresStore struct {
	db    *sql.DB
	table string
	query string
}

// NewPostgresStore opens a connection pool for dsn. The connection is not checked
// until Ping or the first query.
func NewPostgresStore(dsn, table string, pool PoolConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: dsn is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.apply(db)
	return newPostgresStore(db, table), nil
}

func newPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: table,
		query: fmt.Sprintf(`SELECT %s FROM %s WHERE chunk_id = ANY($1)`, chunkColumns, table),
	}
}

// GetChunksByIDs returns the rows for ids.
func (s *PostgresStore) GetChunksByIDs(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error) {
	ids = uniqueIDs(ids)
	out := make(map[string]*models.ChunkRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, s.query, pq.Array(ids))
	if err != nil {
		return nil, &StoreError{Driver: s.Driver(), Op: "get chunks", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return nil, &StoreError{Driver: s.Driver(), Op: "scan chunk", Err: err}
		}
		out[rec.ChunkID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Driver: s.Driver(), Op: "get chunks", Err: err}
	}
	return out, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns "postgres".
func (s *PostgresStore) Driver() string {
	return "postgres"
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
