package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.RateLimitBurst == 0 && cfg.Server.RateLimitRPS > 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS * 2)
		if cfg.Server.RateLimitBurst < 1 {
			cfg.Server.RateLimitBurst = 1
		}
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "sermon_chunks"
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = 10
	}
	if cfg.Storage.MaxIdleConns == 0 {
		cfg.Storage.MaxIdleConns = 5
	}
	if cfg.Storage.ConnMaxLifetime == 0 {
		cfg.Storage.ConnMaxLifetime = 30 * time.Minute
	}

	if cfg.Index.IndexDir == "" {
		cfg.Index.IndexDir = "/usr/local/var/pulpit/indexes"
	}
	if cfg.Index.MapDir == "" {
		cfg.Index.MapDir = "/usr/local/var/pulpit/id_maps"
	}
	if cfg.Index.IndexExt == "" {
		cfg.Index.IndexExt = ".faiss"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "flat"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "inner_product"
	}
	if cfg.Index.DefaultPartition == "" {
		cfg.Index.DefaultPartition = "adeboye"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/pulpit/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == ProviderOpenAI && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.RedisTTL == 0 {
		cfg.Embedding.RedisTTL = 24 * time.Hour
	}

	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	if cfg.Search.LookaheadFloor == 0 {
		cfg.Search.LookaheadFloor = 10
	}
	if cfg.Search.LoadTimeout == 0 {
		cfg.Search.LoadTimeout = time.Minute
	}
	if cfg.Search.EmbedTimeout == 0 {
		cfg.Search.EmbedTimeout = 10 * time.Second
	}
	if cfg.Search.StoreTimeout == 0 {
		cfg.Search.StoreTimeout = 5 * time.Second
	}
}
