package storage

import (
	"fmt"
	"time"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

// Config selects and configures a ChunkStore.
type Config struct {
	Driver          string
	DSN             string
	Table           string
	SupabaseURL     string
	SupabaseKey     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates the ChunkStore for cfg.Driver.
func New(cfg Config) (ChunkStore, error) {
	switch cfg.Driver {
	case DriverPostgres, "postgresql", "":
		s, err := NewPostgresStore(cfg.DSN, cfg.Table, PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite, "sqlite3":
		s, err := NewSQLiteStore(cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSupabase:
		s, err := NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: postgres, sqlite, supabase)", cfg.Driver)
	}
}
