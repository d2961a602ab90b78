// Package partition resolves partition slugs and loads each partition's vector
// index and row-id mapping at most once per process.
package partition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/pulpit/internal/vector"
	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIndexExt is the index file extension written by the ingestion pipeline.
	DefaultIndexExt = ".faiss"
	// MapExt is the id-map file extension.
	MapExt = ".json"

	defaultLoadTimeout = 2 * time.Minute
)

// Partition is a loaded index plus its row-id mapping. Both are read-only.
type Partition struct {
	Slug      string
	Index     vector.Index
	IDMap     *IDMap
	IndexPath string
	MapPath   string
	LoadedAt  time.Time
}

// Info describes a loaded partition.
type Info struct {
	Slug       string    `json:"slug"`
	Vectors    int       `json:"vectors"`
	Mapped     int       `json:"mapped"`
	Dimensions int       `json:"dimensions"`
	Metric     string    `json:"metric"`
	IndexType  string    `json:"index_type"`
	Encoding   string    `json:"mapping_encoding"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// IndexOpener opens an index file.
type IndexOpener func(path string) (vector.Index, error)

// Config locates partition files and states what the loaded indexes must match.
type Config struct {
	IndexDir string
	MapDir   string
	IndexExt string
	Metric   vector.Metric
	// Dimensions is the query embedding dimension; 0 skips the check.
	Dimensions  int
	LoadTimeout time.Duration
}

// Registry caches loaded partitions by slug.
type Registry struct {
	cfg    Config
	open   IndexOpener
	remote RemoteSource
	logger *zap.Logger

	mu     sync.RWMutex
	loaded map[string]*Partition
	group  singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = utils.OrNop(logger)
	}
}

// WithIndexOpener replaces the index reader (default: vector.Open with the flat backend).
func WithIndexOpener(open IndexOpener) Option {
	return func(r *Registry) {
		if open != nil {
			r.open = open
		}
	}
}

// WithRemote sets a source for partitions missing on local disk.
func WithRemote(remote RemoteSource) Option {
	return func(r *Registry) {
		r.remote = remote
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.IndexExt == "" {
		cfg.IndexExt = DefaultIndexExt
	}
	if cfg.MapDir == "" {
		cfg.MapDir = cfg.IndexDir
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	r := &Registry{
		cfg: cfg,
		open: func(path string) (vector.Index, error) {
			return vector.Open(path, string(vector.BackendFlat))
		},
		logger: zap.NewNop(),
		loaded: make(map[string]*Partition),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Paths returns the index and id-map file paths for slug.
func (r *Registry) Paths(slug string) (indexPath, mapPath string) {
	return filepath.Join(r.cfg.IndexDir, slug+r.cfg.IndexExt), filepath.Join(r.cfg.MapDir, slug+MapExt)
}

// Load returns the partition for slug, reading it from disk on first use.
// Concurrent first calls for one slug share a single read; each caller stops
// waiting when its own ctx is done. Missing files yield *NotFoundError.
func (r *Registry) Load(ctx context.Context, slug string) (*Partition, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if p := r.get(slug); p != nil {
		return p, nil
	}

	ch := r.group.DoChan(slug, func() (interface{}, error) {
		if p := r.get(slug); p != nil {
			return p, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
		defer cancel()
		p, err := r.load(loadCtx, slug)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.loaded[slug] = p
		r.mu.Unlock()
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Partition), nil
	}
}

func (r *Registry) get(slug string) *Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[slug]
}

func (r *Registry) load(ctx context.Context, slug string) (*Partition, error) {
	indexPath, mapPath := r.Paths(slug)
	start := time.Now()

	if missing := firstMissing(indexPath, mapPath); missing != "" {
		if r.remote == nil {
			return nil, &NotFoundError{Slug: slug, Path: missing}
		}
		r.logger.Info("fetching partition from remote source", zap.String("slug", slug))
		if err := r.remote.Fetch(ctx, slug, indexPath, mapPath); err != nil {
			return nil, err
		}
	}

	idx, err := r.open(indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Slug: slug, Path: indexPath}
		}
		return nil, fmt.Errorf("load partition %s: %w", slug, err)
	}
	if err := r.check(idx); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load partition %s: %w", slug, err)
	}

	ids, err := LoadIDMap(mapPath)
	if err != nil {
		_ = idx.Close()
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Slug: slug, Path: mapPath}
		}
		return nil, fmt.Errorf("load partition %s: %w", slug, err)
	}

	r.logger.Info("partition loaded",
		zap.String("slug", slug),
		zap.String("index_path", indexPath),
		zap.String("map_path", mapPath),
		zap.String("index_type", idx.Type()),
		zap.Int("vectors", idx.Size()),
		zap.Int("mapped", ids.Len()),
		zap.Int("skipped_entries", ids.Skipped()),
		zap.String("mapping_encoding", ids.Encoding()),
		zap.Duration("duration", time.Since(start)))
	if ids.Len() < idx.Size() {
		r.logger.Warn("partition has unmapped rows",
			zap.String("slug", slug), zap.Int("unmapped", idx.Size()-ids.Len()))
	}

	return &Partition{
		Slug:      slug,
		Index:     idx,
		IDMap:     ids,
		IndexPath: indexPath,
		MapPath:   mapPath,
		LoadedAt:  time.Now(),
	}, nil
}

func (r *Registry) check(idx vector.Index) error {
	if r.cfg.Metric != "" && idx.Metric() != r.cfg.Metric {
		return fmt.Errorf("index metric %s does not match configured metric %s", idx.Metric(), r.cfg.Metric)
	}
	if r.cfg.Dimensions > 0 && idx.Dimensions() != r.cfg.Dimensions {
		return fmt.Errorf("index dimension %d does not match embedding dimension %d", idx.Dimensions(), r.cfg.Dimensions)
	}
	return nil
}

func firstMissing(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
	return ""
}

// Loaded describes every loaded partition, sorted by slug.
func (r *Registry) Loaded() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.loaded))
	for _, p := range r.loaded {
		infos = append(infos, Info{
			Slug:       p.Slug,
			Vectors:    p.Index.Size(),
			Mapped:     p.IDMap.Len(),
			Dimensions: p.Index.Dimensions(),
			Metric:     p.Index.Metric().String(),
			IndexType:  p.Index.Type(),
			Encoding:   p.IDMap.Encoding(),
			LoadedAt:   p.LoadedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Slug < infos[j].Slug })
	return infos
}

// IsLoaded reports whether slug is in the cache.
func (r *Registry) IsLoaded(slug string) bool {
	return r.get(slug) != nil
}

// Close releases every loaded index.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for slug, p := range r.loaded {
		if err := p.Index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close partition %s: %w", slug, err))
		}
		delete(r.loaded, slug)
	}
	return errors.Join(errs...)
}

// Dirs returns the index and id-map directories.
func (r *Registry) Dirs() (indexDir, mapDir string) {
	return r.cfg.IndexDir, r.cfg.MapDir
}
