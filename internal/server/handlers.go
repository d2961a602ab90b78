package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyperjump/pulpit/internal/embedding"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/search"
	"github.com/hyperjump/pulpit/internal/storage"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("partition", req.Partition()), zap.Int("query_len", len(req.Query)))
	resp, err := s.service.Query(r.Context(), &req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("query failed", zap.Int("status", status), zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusForError maps the query error taxonomy to HTTP status codes. Deadline
// errors win over the provider and store classes they are wrapped in.
func statusForError(err error) int {
	var providerErr *embedding.ProviderError
	var storeErr *storage.StoreError
	switch {
	case search.IsInvalidRequest(err):
		return http.StatusBadRequest
	case partition.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"partitions": s.loadedEntries()})
		return
	}
	if err := s.refreshCatalog(r.Context(), r.URL.Query().Get("refresh") == "true"); err != nil {
		s.logger.Error("partition catalog refresh failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"partitions":   s.catalog.Entries(),
		"refreshed_at": s.catalog.Refreshed(),
	})
}

// refreshCatalog scans for partitions when forced or when no scan has happened yet.
func (s *Server) refreshCatalog(ctx context.Context, force bool) error {
	if !force && !s.catalog.Refreshed().IsZero() {
		return nil
	}
	return s.catalog.Refresh(ctx)
}

func (s *Server) loadedEntries() []partition.Entry {
	entries := []partition.Entry{}
	if s.registry == nil {
		return entries
	}
	for _, info := range s.registry.Loaded() {
		entries = append(entries, partition.Entry{Slug: info.Slug, Local: true, Loaded: true})
	}
	return entries
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	loaded := []partition.Info{}
	if s.registry != nil {
		loaded = s.registry.Loaded()
	}
	resp := map[string]interface{}{
		"loaded_partitions": loaded,
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
	}

	defaultSlug := s.service.DefaultPartition()
	cfg := s.config
	resp["config"] = map[string]interface{}{
		"metric":               cfg.Index.Metric,
		"index_backend":        cfg.Index.Backend,
		"default_partition":    defaultSlug,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"default_k":            cfg.Search.DefaultK,
		"max_k":                cfg.Search.MaxK,
	}

	if s.store != nil {
		storeInfo := map[string]interface{}{"driver": s.store.Driver(), "status": "ok"}
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("status: store ping failed", zap.Error(err))
			storeInfo["status"] = "unavailable"
			storeInfo["error"] = err.Error()
		}
		cancel()
		resp["store"] = storeInfo
	}

	if s.catalog != nil {
		if err := s.refreshCatalog(r.Context(), false); err != nil {
			s.logger.Warn("status: partition catalog refresh failed", zap.Error(err))
		}
		resp["partitions_available"] = len(s.catalog.Entries())
		resp["default_partition_available"] = defaultSlug != "" && s.catalog.Contains(defaultSlug)
		if diskBytes, err := s.catalog.DiskUsage(); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
