package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/pulpit/internal/config"
	"github.com/hyperjump/pulpit/internal/embedding"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/search"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/internal/vector"
)

type fixedEncoder struct {
	vec []float32
}

func (f *fixedEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, ctx.Err()
}

type errService struct {
	err error
}

func (e *errService) Query(context.Context, *models.QueryRequest) (*models.QueryResponse, error) {
	return nil, e.err
}

func (e *errService) DefaultPartition() string { return "" }

func testConfig() *config.Config {
	cfg := &config.Config{
		Storage:   config.StorageConfig{Driver: "sqlite"},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderMock},
		Index:     config.IndexConfig{Metric: "euclidean", DefaultPartition: "alpha"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// newTestServer serves partition "alpha" (three euclidean vectors, chunks c1..c3)
// from a temp dir backed by a SQLite store.
func newTestServer(t *testing.T) (*Server, *partition.Registry) {
	t.Helper()
	dir := t.TempDir()
	idx, err := vector.NewFlatIndex(2, vector.MetricEuclidean)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add([][]float32{{0, 0}, {1, 1}, {2, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(filepath.Join(dir, "alpha.faiss")); err != nil {
		t.Fatal(err)
	}
	if err := partition.WriteIDMapFile(filepath.Join(dir, "alpha.json"), map[int64]string{0: "c1", 1: "c2", 2: "c3"}); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "meta.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var rows []*models.ChunkRecord
	for _, id := range []string{"c1", "c2", "c3"} {
		rows = append(rows, &models.ChunkRecord{ChunkID: id, Chunk: models.StringPtr("chunk " + id)})
	}
	if err := store.SeedChunks(context.Background(), rows); err != nil {
		t.Fatal(err)
	}

	registry := partition.NewRegistry(partition.Config{IndexDir: dir, Metric: vector.MetricEuclidean, Dimensions: 2})
	t.Cleanup(func() { _ = registry.Close() })
	catalog := partition.NewCatalog(registry, nil)
	svc := search.NewService(search.Config{DefaultK: 5, MaxK: 50},
		partition.NewResolver("alpha", nil), registry, &fixedEncoder{vec: []float32{1.2, 1.2}}, store)
	return NewServer(svc, catalog, registry, store, testConfig(), nil), registry
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/query", `{"query":"grace","pastor_slug":"alpha","k":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(resp.ChunkIDs(), ","); got != "c2,c3" {
		t.Errorf("chunk ids: got %s, want c2,c3", got)
	}
	if resp.Metric != "euclidean" || resp.PastorSlug != "alpha" || resp.K != 2 {
		t.Errorf("unexpected response header fields: %+v", resp)
	}
	if resp.Results[0].Text() != "chunk c2" {
		t.Errorf("first chunk text: got %q", resp.Results[0].Text())
	}
}

func TestHandleSearchAlias(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv.Router(), http.MethodPost, "/search", `{"query":"grace","index":"vectordb-alpha","top_k":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "c2" {
		t.Errorf("results: got %v", resp.ChunkIDs())
	}
}

func TestHandleQuery_errors(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"query":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"empty query", `{"query":"   "}`, http.StatusBadRequest},
		{"zero k", `{"query":"grace","k":0}`, http.StatusBadRequest},
		{"invalid slug", `{"query":"grace","pastor_slug":"!!!"}`, http.StatusBadRequest},
		{"unknown partition", `{"query":"grace","pastor_slug":"zzz"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/query", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			var out map[string]string
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out["error"] == "" {
				t.Error("error message should be set")
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	deadline := fmt.Errorf("embed: %w", context.DeadlineExceeded)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", &search.InvalidRequestError{Field: "k", Err: errors.New("bad")}, http.StatusBadRequest},
		{"not found", &partition.NotFoundError{Slug: "zzz"}, http.StatusNotFound},
		{"provider", &embedding.ProviderError{Provider: "openai", Items: 1, Err: errors.New("500")}, http.StatusBadGateway},
		{"provider timeout", &embedding.ProviderError{Provider: "openai", Items: 1, Err: deadline}, http.StatusGatewayTimeout},
		{"store", &storage.StoreError{Driver: "postgres", Op: "get chunks", Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"store timeout", &storage.StoreError{Driver: "postgres", Op: "get chunks", Err: deadline}, http.StatusGatewayTimeout},
		{"load timeout", fmt.Errorf("load partition alpha: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("corrupt index"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError() = %d, want %d", got, tt.want)
			}
			srv := NewServer(&errService{err: tt.err}, nil, nil, nil, testConfig(), nil)
			w := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/query", `{"query":"grace"}`)
			if w.Code != tt.want {
				t.Errorf("handler status: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/health", "/ping"} {
		w := doRequest(t, srv.Router(), http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s status: got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"status":"ok"`) {
			t.Errorf("%s body: got %s", path, w.Body.String())
		}
	}
}

func TestHandlePartitions(t *testing.T) {
	srv, registry := newTestServer(t)
	if _, err := registry.Load(context.Background(), "alpha"); err != nil {
		t.Fatal(err)
	}
	w := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/partitions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Partitions []partition.Entry `json:"partitions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	want := partition.Entry{Slug: "alpha", Local: true, Loaded: true}
	if len(out.Partitions) != 1 || out.Partitions[0] != want {
		t.Errorf("partitions: got %+v", out.Partitions)
	}
}

func TestHandlePartitions_noCatalog(t *testing.T) {
	srv := NewServer(&errService{}, nil, nil, nil, testConfig(), nil)
	w := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/partitions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"partitions":[]`) {
		t.Errorf("body: got %s", w.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	if w := doRequest(t, h, http.MethodPost, "/api/v1/query", `{"query":"grace"}`); w.Code != http.StatusOK {
		t.Fatalf("query status: got %d", w.Code)
	}
	w := doRequest(t, h, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Loaded []partition.Info `json:"loaded_partitions"`
		Store  struct {
			Driver string `json:"driver"`
			Status string `json:"status"`
		} `json:"store"`
		Config struct {
			Metric           string `json:"metric"`
			DefaultPartition string `json:"default_partition"`
		} `json:"config"`
		DiskUsage        int64 `json:"disk_usage_bytes"`
		Available        int   `json:"partitions_available"`
		DefaultAvailable bool  `json:"default_partition_available"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Loaded) != 1 || out.Loaded[0].Slug != "alpha" || out.Loaded[0].Vectors != 3 {
		t.Errorf("loaded partitions: got %+v", out.Loaded)
	}
	if out.Store.Driver != "sqlite" || out.Store.Status != "ok" {
		t.Errorf("store: got %+v", out.Store)
	}
	if out.Config.Metric != "euclidean" {
		t.Errorf("metric: got %s", out.Config.Metric)
	}
	if out.DiskUsage <= 0 {
		t.Errorf("disk usage should be positive, got %d", out.DiskUsage)
	}
	if out.Config.DefaultPartition != "alpha" || !out.DefaultAvailable || out.Available != 1 {
		t.Errorf("default partition: got %q available=%v partitions=%d",
			out.Config.DefaultPartition, out.DefaultAvailable, out.Available)
	}
}

func TestHandleStatus_DefaultPartitionMissing(t *testing.T) {
	dir := t.TempDir()
	registry := partition.NewRegistry(partition.Config{IndexDir: dir, Metric: vector.MetricEuclidean, Dimensions: 2})
	svc := search.NewService(search.Config{}, partition.NewResolver("Pastor Ghost", nil), registry, &fixedEncoder{vec: []float32{1, 1}}, nil)
	srv := NewServer(svc, partition.NewCatalog(registry, nil), registry, nil, testConfig(), nil)

	w := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"default_partition":"ghost"`) {
		t.Errorf("default partition should be the normalized slug: %s", body)
	}
	if !strings.Contains(body, `"default_partition_available":false`) {
		t.Errorf("default partition should be reported missing: %s", body)
	}
}
