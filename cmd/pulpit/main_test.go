package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/pulpit/internal/config"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/internal/vector"
	"go.uber.org/zap"
)

func TestQueryArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"walking in faith", "-k", "3"},
			expected: []string{"-k", "3", "walking in faith"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "3", "walking in faith"},
			expected: []string{"-k", "3", "walking in faith"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"walking in faith"},
			expected: []string{"walking in faith"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"holy", "spirit", "-pastor", "kumuyi"},
			expected: []string{"-pastor", "kumuyi", "holy", "spirit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("queryArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"grace"}, "grace"},
		{"multiple words", []string{"walking", "in", "faith"}, "walking in faith"},
		{"single quoted phrase", []string{"walking in faith"}, "walking in faith"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestQueryViaHTTP(t *testing.T) {
	var got models.QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(models.QueryResponse{
			Metric:     "inner_product",
			PastorSlug: "kumuyi",
			K:          1,
			Results:    []*models.ScoredResult{{ChunkRecord: models.ChunkRecord{ChunkID: "c7"}, Score: 0.8}},
		})
	}))
	defer srv.Close()

	k := 1
	resp, err := queryViaHTTP(context.Background(), srv.URL+"/", &models.QueryRequest{Query: "prayer", PastorSlug: "kumuyi", K: &k})
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != "prayer" || got.PastorSlug != "kumuyi" || got.K == nil || *got.K != 1 {
		t.Errorf("server received %+v", got)
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "c7" {
		t.Errorf("response results: got %v", resp.ChunkIDs())
	}
}

func TestQueryViaHTTP_errorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"partition not found: zzz"}`))
	}))
	defer srv.Close()

	_, err := queryViaHTTP(context.Background(), srv.URL, &models.QueryRequest{Query: "x", PastorSlug: "zzz"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "partition not found: zzz") {
		t.Errorf("error = %v", err)
	}
}

func TestPartitionsViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"partitions":[{"slug":"adeboye","local":true,"remote":false,"loaded":true}]}`))
	}))
	defer srv.Close()

	entries, err := partitionsViaHTTP(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	want := []partition.Entry{{Slug: "adeboye", Local: true, Loaded: true}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
}

// writeDirectFixture lays out one inner-product partition "adeboye" and a SQLite
// metadata store, and returns a config path pointing at them.
func writeDirectFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "indexes")
	mapDir := filepath.Join(dir, "id_maps")

	// Four-dimensional vectors; the mock embedder output decides the ranking,
	// so only the set of ids is checked.
	idx, err := vector.NewFlatIndex(4, vector.MetricInnerProduct)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add([][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(filepath.Join(indexDir, "adeboye.faiss")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(mapDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := partition.WriteIDMapFile(filepath.Join(mapDir, "adeboye.json"), map[int64]string{0: "a", 1: "b", 2: "c"}); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dir, "meta.db")
	store, err := storage.NewSQLiteStore(dbPath, "")
	if err != nil {
		t.Fatal(err)
	}
	rows := []*models.ChunkRecord{
		{ChunkID: "a", Chunk: models.StringPtr("chunk a")},
		{ChunkID: "b", Chunk: models.StringPtr("chunk b")},
		{ChunkID: "c", Chunk: models.StringPtr("chunk c")},
	}
	if err := store.SeedChunks(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	cfgPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: sqlite
  dsn: "./meta.db"
index:
  index_dir: "./indexes"
  map_dir: "./id_maps"
  default_partition: adeboye
  aliases:
    "pastor enoch adeboye": adeboye
embedding:
  provider: mock
  dimensions: 4
`
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PULPIT_DB_URL", "DB_URL", "PULPIT_INDEX_DIR", "PULPIT_MAP_DIR", "PULPIT_METRIC",
		"PULPIT_EMBEDDING_MODEL", "PULPIT_QUERY_INSTRUCTION", "OPENAI_API_KEY", "PULPIT_REDIS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestQueryDirect(t *testing.T) {
	clearEnv(t)
	cfgPath := writeDirectFixture(t)
	k := 2
	resp, err := queryDirect(cfgPath, &models.QueryRequest{Query: "holiness", PastorSlug: "Pastor Enoch Adeboye", K: &k})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PastorSlug != "adeboye" || resp.Metric != "inner_product" || len(resp.Results) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	for _, r := range resp.Results {
		if r.Text() != "chunk "+r.ChunkID {
			t.Errorf("result %s text = %q", r.ChunkID, r.Text())
		}
	}
	if resp.Results[0].Score < resp.Results[1].Score {
		t.Errorf("inner product results should be descending: %v, %v", resp.Results[0].Score, resp.Results[1].Score)
	}
}

func TestPartitionsDirect(t *testing.T) {
	clearEnv(t)
	cfgPath := writeDirectFixture(t)
	entries, err := partitionsDirect(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	want := []partition.Entry{{Slug: "adeboye", Local: true}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
}

func TestInitializeComponents(t *testing.T) {
	cfg := &config.Config{
		Storage:   config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "m.db")},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderMock, Dimensions: 4},
	}
	config.ApplyDefaults(cfg)
	components, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := components.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	cfg.Embedding.Provider = "unknown"
	if _, err := initializeComponents(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}
