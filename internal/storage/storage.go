package storage

import (
	"context"

	"github.com/steveyegge/minutes/internal/storage/sqlite"
	"github.com/steveyegge/minutes/internal/types"
)

// DefaultPath is where the CLI keeps its database unless configured otherwise
const DefaultPath = ".minutes/minutes.db"

// Storage defines the interface for orchestrator storage backends.
//
// The dedup engine never touches storage; the CLI uses it to keep a per-user snapshot
// of tracker items for cache matching and a history of runs for review.
type Storage interface {
	// Tracker snapshot
	ReplaceSnapshot(ctx context.Context, userID string, entries []types.CacheEntry) error
	GetSnapshot(ctx context.Context, userID string) ([]types.CacheEntry, error)
	SnapshotInfo(ctx context.Context, userID string) (*types.SnapshotInfo, error)

	// Runs
	RecordRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]*types.Run, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".minutes/minutes.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: DefaultPath,
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return sqlite.New(ctx, cfg.Path)
}
