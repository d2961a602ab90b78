// Package config provides configuration loading and structs for the pulpit server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pulpit/internal/vector"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// StorageConfig selects the chunk metadata store.
type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	SupabaseURL     string        `yaml:"supabase_url"`
	SupabaseKey     string        `yaml:"supabase_key"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IndexConfig holds partition file locations and index settings.
type IndexConfig struct {
	IndexDir         string            `yaml:"index_dir"`
	MapDir           string            `yaml:"map_dir"`
	IndexExt         string            `yaml:"index_ext"`
	Backend          string            `yaml:"backend"`
	Metric           string            `yaml:"metric"`
	DefaultPartition string            `yaml:"default_partition"`
	Aliases          map[string]string `yaml:"aliases"`
	Watch            *bool             `yaml:"watch"`
	Remote           RemoteConfig      `yaml:"remote"`
}

// WatchOrDefault returns whether to watch the index directory; defaults to true when unset.
func (c *IndexConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// RemoteConfig points at an S3-compatible bucket holding partition files.
type RemoteConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether a remote source is configured.
func (r RemoteConfig) Enabled() bool {
	return r.Endpoint != "" && r.Bucket != ""
}

// EmbeddingConfig holds query embedder settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	ModelPath         string        `yaml:"model_path"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	QueryInstruction  string        `yaml:"query_instruction"`
	CacheSize         int           `yaml:"cache_size"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RedisAddr         string        `yaml:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password"`
	RedisTTL          time.Duration `yaml:"redis_ttl"`
}

// SearchConfig holds query defaults and per-stage timeouts.
type SearchConfig struct {
	DefaultK       int           `yaml:"default_k"`
	MaxK           int           `yaml:"max_k"`
	LookaheadFloor int           `yaml:"lookahead_floor"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
	StoreTimeout   time.Duration `yaml:"store_timeout"`
}

// Supported embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Load reads and parses the config file at path, applies environment overrides and
// defaults, expands paths, and validates the result. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)

	cfg.Index.IndexDir = expandPath(cfg.Index.IndexDir, configDir)
	cfg.Index.MapDir = expandPath(cfg.Index.MapDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if isSQLite(cfg.Storage.Driver) && cfg.Storage.DSN != "" && cfg.Storage.DSN != ":memory:" {
		cfg.Storage.DSN = expandPath(cfg.Storage.DSN, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg from the environment. lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	set(&cfg.Storage.DSN, "PULPIT_DB_URL", "DB_URL")
	set(&cfg.Index.IndexDir, "PULPIT_INDEX_DIR")
	set(&cfg.Index.MapDir, "PULPIT_MAP_DIR")
	set(&cfg.Index.Metric, "PULPIT_METRIC")
	set(&cfg.Embedding.Model, "PULPIT_EMBEDDING_MODEL")
	set(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	set(&cfg.Embedding.RedisAddr, "PULPIT_REDIS_ADDR")
	// An explicitly empty instruction disables the prefix.
	if v, ok := lookup("PULPIT_QUERY_INSTRUCTION"); ok {
		cfg.Embedding.QueryInstruction = v
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "postgres", "postgresql":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres (or set PULPIT_DB_URL)"))
		}
	case "sqlite", "sqlite3":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for sqlite"))
		}
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("storage.supabase_url and storage.supabase_key are required for supabase"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q (supported: postgres, sqlite, supabase)", c.Storage.Driver))
	}
	metric, err := vector.ParseMetric(c.Index.Metric)
	if err != nil {
		errs = append(errs, fmt.Errorf("index.metric: %w", err))
	} else {
		c.Index.Metric = metric.String()
	}
	switch vector.Backend(c.Index.Backend) {
	case vector.BackendFlat, vector.BackendFAISS:
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q (supported: flat, faiss)", c.Index.Backend))
	}
	if !strings.HasPrefix(c.Index.IndexExt, ".") {
		errs = append(errs, fmt.Errorf("index.index_ext must start with a dot: %q", c.Index.IndexExt))
	}
	switch c.Embedding.Provider {
	case ProviderONNX:
		if c.Embedding.ModelPath == "" {
			errs = append(errs, errors.New("embedding.model_path is required for onnx"))
		}
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("embedding.api_key is required for openai (or set OPENAI_API_KEY)"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q (supported: onnx, openai, mock)", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive: %d", c.Embedding.Dimensions))
	}
	if c.Search.DefaultK <= 0 || c.Search.MaxK <= 0 {
		errs = append(errs, errors.New("search.default_k and search.max_k must be positive"))
	} else if c.Search.DefaultK > c.Search.MaxK {
		errs = append(errs, fmt.Errorf("search.default_k (%d) exceeds search.max_k (%d)", c.Search.DefaultK, c.Search.MaxK))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func isSQLite(driver string) bool {
	d := strings.ToLower(driver)
	return d == "sqlite" || d == "sqlite3"
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
