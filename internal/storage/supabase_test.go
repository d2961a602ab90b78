package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleTime(t *testing.T) {
	for _, in := range []string{
		`"2023-05-01"`,
		`"2023-05-01T00:00:00+00:00"`,
		`"2023-05-01T00:00:00"`,
	} {
		var ft flexibleTime
		require.NoError(t, json.Unmarshal([]byte(in), &ft), in)
		assert.True(t, ft.Equal(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)), "%s -> %v", in, ft.Time)
	}
	var ft flexibleTime
	assert.Error(t, json.Unmarshal([]byte(`"May 1st"`), &ft))
}

func TestSupabaseChunk_NullsStayNil(t *testing.T) {
	var rows []supabaseChunk
	require.NoError(t, json.Unmarshal([]byte(`[
		{"chunk_id":"c1","chunk":"hello","title":null,"transcription_date":"2023-05-01","word_count":1},
		{"chunk_id":"c2","chunk":null,"transcription_date":null}
	]`), &rows))
	require.Len(t, rows, 2)

	c1 := rows[0].record()
	assert.Equal(t, "hello", c1.Text())
	assert.Nil(t, c1.Title)
	require.NotNil(t, c1.TranscriptionDate)
	assert.Equal(t, 1, *c1.WordCount)

	c2 := rows[1].record()
	assert.Nil(t, c2.Chunk)
	assert.Nil(t, c2.TranscriptionDate)
}

func TestSupabaseStore_GetChunksByIDs(t *testing.T) {
	var gotFilter, gotSelect string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sermon_chunks") {
			http.NotFound(w, r)
			return
		}
		gotFilter = r.URL.Query().Get("chunk_id")
		gotSelect = r.URL.Query().Get("select")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"chunk_id":"c1","chunk":"hello","pastor_slug":"alpha"}]`))
	}))
	defer srv.Close()

	store, err := NewSupabaseStore(srv.URL, "anon-key", "")
	require.NoError(t, err)

	got, err := store.GetChunksByIDs(context.Background(), []string{"c1", "c9"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got["c1"].Text())
	assert.Equal(t, "in.(c1,c9)", gotFilter)
	assert.Contains(t, gotSelect, "transcription_date")
}

func TestSupabaseStore_CancelledContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store, err := NewSupabaseStore(srv.URL, "anon-key", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.GetChunksByIDs(ctx, []string{"c1"})
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Timeout())
}
