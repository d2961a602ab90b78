package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

// Defaults for Config fields left at zero.
const (
	DefaultK    = 5
	DefaultMaxK = 50
)

// Config bounds k and sets per-stage timeouts. A zero timeout means the request
// context alone applies.
type Config struct {
	DefaultK       int
	MaxK           int
	LookaheadFloor int
	LoadTimeout    time.Duration
	EmbedTimeout   time.Duration
	StoreTimeout   time.Duration
}

// PartitionLoader returns a loaded partition by slug.
type PartitionLoader interface {
	Load(ctx context.Context, slug string) (*partition.Partition, error)
}

// QueryEncoder embeds query text for the partition metric.
type QueryEncoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service answers retrieval queries. It is safe for concurrent use.
type Service struct {
	cfg        Config
	resolver   *partition.Resolver
	partitions PartitionLoader
	encoder    QueryEncoder
	store      storage.ChunkStore
	searcher   *Searcher
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = utils.OrNop(logger)
	}
}

// NewService wires the pipeline stages together.
func NewService(cfg Config, resolver *partition.Resolver, partitions PartitionLoader, encoder QueryEncoder, store storage.ChunkStore, opts ...Option) *Service {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultMaxK
	}
	if cfg.DefaultK > cfg.MaxK {
		cfg.DefaultK = cfg.MaxK
	}
	s := &Service{
		cfg:        cfg,
		resolver:   resolver,
		partitions: partitions,
		encoder:    encoder,
		store:      store,
		searcher:   NewSearcher(cfg.LookaheadFloor),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query runs validate, load, embed, search and assemble, in that order, stopping
// at the first failure. Errors are typed: *InvalidRequestError,
// *partition.NotFoundError, *embedding.ProviderError, *storage.StoreError, or a
// wrapped context.DeadlineExceeded when a stage runs out of time.
func (s *Service) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()
	queryID := uuid.NewString()
	logger := s.logger.With(zap.String("query_id", queryID))

	resp, err := s.query(ctx, queryID, req)
	if err != nil {
		var requested string
		if req != nil {
			requested = req.Partition()
		}
		logger.Warn("query failed",
			zap.String("partition", requested),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	logger.Info("query",
		zap.String("partition", resp.PastorSlug),
		zap.Int("k", resp.K),
		zap.Int("results", len(resp.Results)),
		zap.Int("dropped_unmapped", resp.DroppedUnmapped),
		zap.Int("missing_metadata", resp.MissingMetadata),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (s *Service) query(ctx context.Context, queryID string, req *models.QueryRequest) (*models.QueryResponse, error) {
	if req == nil {
		return nil, &InvalidRequestError{Err: errors.New("missing request body")}
	}
	if err := ProcessQuery(req, s.cfg.DefaultK, s.cfg.MaxK); err != nil {
		return nil, err
	}
	slug, err := s.resolver.Resolve(req.Partition())
	if err != nil {
		return nil, &InvalidRequestError{Field: "pastor_slug", Err: err}
	}
	k := req.Limit

	loadCtx, cancel := withTimeout(ctx, s.cfg.LoadTimeout)
	p, err := s.partitions.Load(loadCtx, slug)
	cancel()
	if err != nil {
		if partition.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load partition %s: %w", slug, err)
	}

	embedCtx, cancel := withTimeout(ctx, s.cfg.EmbedTimeout)
	vec, err := s.encoder.Embed(embedCtx, req.Query)
	cancel()
	if err != nil {
		return nil, err
	}

	candidates, err := s.searcher.Search(ctx, p.Index, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search partition %s: %w", slug, err)
	}

	storeCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	asm, err := Assemble(storeCtx, candidates, p.IDMap, s.store, p.Index.Metric(), k)
	cancel()
	if err != nil {
		return nil, err
	}
	if asm.DroppedUnmapped > 0 {
		s.logger.Debug("dropped unmapped candidates",
			zap.String("query_id", queryID),
			zap.String("partition", slug),
			zap.Int("count", asm.DroppedUnmapped))
	}

	return &models.QueryResponse{
		QueryID:         queryID,
		Metric:          p.Index.Metric().String(),
		PastorSlug:      slug,
		K:               k,
		Results:         asm.Results,
		DroppedUnmapped: asm.DroppedUnmapped,
		MissingMetadata: asm.MissingMetadata,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// DefaultPartition returns the slug used when a request names no partition.
func (s *Service) DefaultPartition() string {
	return s.resolver.Default()
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}
