// Package models defines core data structures for chunk records, queries, and query results.
package models

import "time"

// ChunkRecord is the metadata row for one ingested passage, keyed by ChunkID.
// Every field except ChunkID is nullable: a nil pointer means the store has no value
// (or, inside a ScoredResult, that the store has no row for this chunk at all).
type ChunkRecord struct {
	ChunkID           string     `json:"chunk_id" db:"chunk_id"`
	Chunk             *string    `json:"chunk" db:"chunk"`
	Title             *string    `json:"title" db:"title"`
	SourceURL         *string    `json:"source_url" db:"source_url"`
	TranscriptionDate *time.Time `json:"transcription_date" db:"transcription_date"`
	WordCount         *int       `json:"word_count" db:"word_count"`
	CharCount         *int       `json:"char_count" db:"char_count"`
	PastorSlug        *string    `json:"pastor_slug" db:"pastor_slug"`
}

// Text returns the chunk text, or "" when unknown.
func (c *ChunkRecord) Text() string {
	if c == nil || c.Chunk == nil {
		return ""
	}
	return *c.Chunk
}

// TitleOr returns the title, or fallback when unknown or empty.
func (c *ChunkRecord) TitleOr(fallback string) string {
	if c == nil || c.Title == nil || *c.Title == "" {
		return fallback
	}
	return *c.Title
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
