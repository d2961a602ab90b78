package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/pulpit/internal/config"
	"github.com/hyperjump/pulpit/internal/embedding"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/search"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/internal/vector"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "pulpit:emb:"

// Components holds initialized services.
type Components struct {
	Store    storage.ChunkStore
	Embedder embedding.Embedder
	Registry *partition.Registry
	Catalog  *partition.Catalog
	Resolver *partition.Resolver
	Service  *search.Service
	redis    *redis.Client
}

// Close releases every component. Errors are joined.
func (c *Components) Close() error {
	var errs []error
	if c.Registry != nil {
		errs = append(errs, c.Registry.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	return errors.Join(errs...)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	c := &Components{}

	store, err := storage.New(storage.Config{
		Driver:          cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		Table:           cfg.Storage.Table,
		SupabaseURL:     cfg.Storage.SupabaseURL,
		SupabaseKey:     cfg.Storage.SupabaseKey,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	provider, err := newEmbedder(cfg.Embedding)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = provider
	if provider.Dimensions() != cfg.Embedding.Dimensions {
		_ = c.Close()
		return nil, fmt.Errorf("embedder produces %d dimensions, config says %d", provider.Dimensions(), cfg.Embedding.Dimensions)
	}

	var shared embedding.VectorCache
	if cfg.Embedding.RedisAddr != "" {
		client, err := embedding.NewRedisClient(ctx, cfg.Embedding.RedisAddr, cfg.Embedding.RedisPassword)
		if err != nil {
			logger.Warn("shared embedding cache disabled", zap.String("addr", cfg.Embedding.RedisAddr), zap.Error(err))
		} else {
			c.redis = client
			shared = embedding.NewRedisCache(client, redisKeyPrefix, cfg.Embedding.RedisTTL)
		}
	}
	cached := embedding.NewCachingEmbedder(provider, cfg.Embedding.Model, cfg.Embedding.CacheSize, shared, logger)
	encoder := embedding.NewQueryEmbedder(cached, metric,
		embedding.WithInstruction(cfg.Embedding.QueryInstruction),
		embedding.WithProviderName(cfg.Embedding.Provider),
		embedding.WithLogger(logger),
	)

	backend := cfg.Index.Backend
	regOpts := []partition.Option{
		partition.WithLogger(logger),
		partition.WithIndexOpener(func(path string) (vector.Index, error) {
			return vector.Open(path, backend)
		}),
	}
	if cfg.Index.Remote.Enabled() {
		r := cfg.Index.Remote
		remote, err := partition.NewMinioSource(partition.RemoteConfig{
			Endpoint:  r.Endpoint,
			AccessKey: r.AccessKey,
			SecretKey: r.SecretKey,
			Bucket:    r.Bucket,
			Prefix:    r.Prefix,
			UseSSL:    r.UseSSL,
			IndexExt:  cfg.Index.IndexExt,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize remote partition source: %w", err)
		}
		regOpts = append(regOpts, partition.WithRemote(remote))
	}
	c.Registry = partition.NewRegistry(partition.Config{
		IndexDir:    cfg.Index.IndexDir,
		MapDir:      cfg.Index.MapDir,
		IndexExt:    cfg.Index.IndexExt,
		Metric:      metric,
		Dimensions:  cfg.Embedding.Dimensions,
		LoadTimeout: cfg.Search.LoadTimeout,
	}, regOpts...)
	c.Catalog = partition.NewCatalog(c.Registry, logger)
	c.Resolver = partition.NewResolver(cfg.Index.DefaultPartition, cfg.Index.Aliases)

	c.Service = search.NewService(search.Config{
		DefaultK:       cfg.Search.DefaultK,
		MaxK:           cfg.Search.MaxK,
		LookaheadFloor: cfg.Search.LookaheadFloor,
		LoadTimeout:    cfg.Search.LoadTimeout,
		EmbedTimeout:   cfg.Search.EmbedTimeout,
		StoreTimeout:   cfg.Search.StoreTimeout,
	}, c.Resolver, c.Registry, encoder, store, search.WithLogger(logger))

	logger.Info("components initialized",
		zap.String("store", store.Driver()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("metric", metric.String()),
		zap.String("index_backend", backend),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		zap.Bool("remote", cfg.Index.Remote.Enabled()),
		zap.Bool("shared_cache", shared != nil))
	return c, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderMock:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
