package partition

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

// Entry is one partition known to the catalog.
type Entry struct {
	Slug   string `json:"slug"`
	Local  bool   `json:"local"`
	Remote bool   `json:"remote"`
	Loaded bool   `json:"loaded"`
}

// Catalog lists the partitions available on disk (and remotely, when configured).
// It never loads or evicts partitions.
type Catalog struct {
	registry *Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	local     []string
	remote    []string
	refreshed time.Time
}

// NewCatalog creates a catalog over the registry's directories.
func NewCatalog(registry *Registry, logger *zap.Logger) *Catalog {
	return &Catalog{registry: registry, logger: utils.OrNop(logger)}
}

// Refresh rescans the index and map directories and the remote source.
// A remote listing failure is logged and keeps the previous remote list.
func (c *Catalog) Refresh(ctx context.Context) error {
	local, err := c.scanLocal()
	if err != nil {
		return err
	}
	var remote []string
	remoteOK := false
	if c.registry.remote != nil {
		remote, err = c.registry.remote.List(ctx)
		if err != nil {
			c.logger.Warn("listing remote partitions failed", zap.Error(err))
		} else {
			remoteOK = true
		}
	}

	c.mu.Lock()
	c.local = local
	if remoteOK {
		c.remote = remote
	}
	c.refreshed = time.Now()
	c.mu.Unlock()

	c.logger.Debug("partition catalog refreshed", zap.Int("local", len(local)), zap.Int("remote", len(remote)))
	return nil
}

func (c *Catalog) scanLocal() ([]string, error) {
	cfg := c.registry.cfg
	indexes, err := stems(cfg.IndexDir, cfg.IndexExt)
	if err != nil {
		return nil, err
	}
	maps, err := stems(cfg.MapDir, MapExt)
	if err != nil {
		return nil, err
	}
	return pairedSlugs(indexes, maps), nil
}

func stems(dir, ext string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out[strings.TrimSuffix(e.Name(), ext)] = true
	}
	return out, nil
}

// Entries returns every known partition sorted by slug.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	local, remote := c.local, c.remote
	c.mu.RUnlock()

	bySlug := make(map[string]*Entry)
	var order []string
	add := func(slug string) *Entry {
		if e, ok := bySlug[slug]; ok {
			return e
		}
		e := &Entry{Slug: slug, Loaded: c.registry.IsLoaded(slug)}
		bySlug[slug] = e
		order = append(order, slug)
		return e
	}
	for _, slug := range local {
		add(slug).Local = true
	}
	for _, slug := range remote {
		add(slug).Remote = true
	}
	for _, info := range c.registry.Loaded() {
		add(info.Slug)
	}

	sort.Strings(order)
	entries := make([]Entry, len(order))
	for i, slug := range order {
		entries[i] = *bySlug[slug]
	}
	return entries
}

// Contains reports whether slug is available locally or remotely.
func (c *Catalog) Contains(slug string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.local {
		if s == slug {
			return true
		}
	}
	for _, s := range c.remote {
		if s == slug {
			return true
		}
	}
	return false
}

// Refreshed returns the time of the last successful refresh.
func (c *Catalog) Refreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}
