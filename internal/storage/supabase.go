package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/hyperjump/pulpit/internal/models"
)

// supabaseBatch bounds the number of ids per request; they travel in the URL.
const supabaseBatch = 100

// SupabaseStore reads chunk metadata through the Supabase REST API.
type SupabaseStore struct {
	client  *supabase.Client
	table   string
	columns string
}

// NewSupabaseStore creates a store for the project at url.
func NewSupabaseStore(url, apiKey, table string) (*SupabaseStore, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	client, err := supabase.NewClient(url, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{
		client:  client,
		table:   table,
		columns: strings.ReplaceAll(chunkColumns, " ", ""),
	}, nil
}

type supabaseChunk struct {
	ChunkID           string        `json:"chunk_id"`
	Chunk             *string       `json:"chunk"`
	Title             *string       `json:"title"`
	SourceURL         *string       `json:"source_url"`
	TranscriptionDate *flexibleTime `json:"transcription_date"`
	WordCount         *int          `json:"word_count"`
	CharCount         *int          `json:"char_count"`
	PastorSlug        *string       `json:"pastor_slug"`
}

// flexibleTime accepts the date and timestamp layouts PostgREST emits.
type flexibleTime struct {
	time.Time
}

var flexibleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02",
}

func (t *flexibleTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range flexibleLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

func (c supabaseChunk) record() *models.ChunkRecord {
	rec := &models.ChunkRecord{
		ChunkID:    c.ChunkID,
		Chunk:      c.Chunk,
		Title:      c.Title,
		SourceURL:  c.SourceURL,
		WordCount:  c.WordCount,
		CharCount:  c.CharCount,
		PastorSlug: c.PastorSlug,
	}
	if c.TranscriptionDate != nil {
		rec.TranscriptionDate = models.TimePtr(c.TranscriptionDate.Time)
	}
	return rec
}

// GetChunksByIDs returns the rows for ids. The REST client has no context
// support, so a cancelled ctx abandons the in-flight request.
func (s *SupabaseStore) GetChunksByIDs(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error) {
	ids = uniqueIDs(ids)
	out := make(map[string]*models.ChunkRecord, len(ids))
	for _, batch := range batches(ids, supabaseBatch) {
		rows, err := s.fetch(ctx, batch)
		if err != nil {
			return nil, &StoreError{Driver: s.Driver(), Op: "get chunks", Err: err}
		}
		for _, row := range rows {
			out[row.ChunkID] = row.record()
		}
	}
	return out, nil
}

func (s *SupabaseStore) fetch(ctx context.Context, ids []string) ([]supabaseChunk, error) {
	return s.run(ctx, func(rows *[]supabaseChunk) error {
		_, err := s.client.From(s.table).
			Select(s.columns, "", false).
			In("chunk_id", ids).
			ExecuteTo(rows)
		return err
	})
}

func (s *SupabaseStore) run(ctx context.Context, query func(rows *[]supabaseChunk) error) ([]supabaseChunk, error) {
	type result struct {
		rows []supabaseChunk
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var rows []supabaseChunk
		err := query(&rows)
		done <- result{rows: rows, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.rows, res.err
	}
}

// Ping reads at most one row.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_, err := s.run(ctx, func(rows *[]supabaseChunk) error {
		_, err := s.client.From(s.table).
			Select("chunk_id", "", false).
			Limit(1, "").
			ExecuteTo(rows)
		return err
	})
	return err
}

// Driver returns "supabase".
func (s *SupabaseStore) Driver() string {
	return "supabase"
}

// Close is a no-op.
func (s *SupabaseStore) Close() error {
	return nil
}
