package deduplication

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the deduplication engine
type Config struct {
	// CandidateThreshold is the lexical similarity a pair of titles must exceed to be
	// sent to the oracle for semantic review.
	// This filter favors recall: pairs excluded here are never reconsidered, while
	// false positives are resolved by the oracle.
	// Default: 0.6
	CandidateThreshold float64 `yaml:"candidate_threshold" toml:"candidate_threshold"`

	// CacheMatchThreshold is the similarity a task title must exceed against a cached
	// tracker title to be reported as a possible match.
	// Stricter than CandidateThreshold because there is no semantic confirmation.
	// Default: 0.75
	CacheMatchThreshold float64 `yaml:"cache_match_threshold" toml:"cache_match_threshold"`

	// ParallelCompareMin is the batch size at which pairwise title comparison is
	// spread across goroutines. Smaller batches compare sequentially.
	// Default: 64
	ParallelCompareMin int `yaml:"parallel_compare_min" toml:"parallel_compare_min"`

	// OracleTimeout bounds each oracle call (0 = no engine-level timeout; the
	// supervisor's own request timeout still applies). A timeout fails open.
	// Default: 0
	OracleTimeout time.Duration `yaml:"oracle_timeout" toml:"oracle_timeout"`

	// Logger receives WARN on fail-open and DEBUG on pipeline progress.
	// Default: slog.Default()
	Logger *slog.Logger `yaml:"-" toml:"-"`
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		CandidateThreshold:  0.6,  // Permissive pre-filter
		CacheMatchThreshold: 0.75, // No oracle behind it
		ParallelCompareMin:  64,   // ~2000 comparisons
		OracleTimeout:       0,    // Supervisor timeout only
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.CandidateThreshold < 0.0 || c.CandidateThreshold >= 1.0 {
		return fmt.Errorf("candidate_threshold must be in [0.0, 1.0) (got %.2f)", c.CandidateThreshold)
	}
	if c.CacheMatchThreshold < 0.0 || c.CacheMatchThreshold >= 1.0 {
		return fmt.Errorf("cache_match_threshold must be in [0.0, 1.0) (got %.2f)", c.CacheMatchThreshold)
	}
	if c.ParallelCompareMin < 2 {
		return fmt.Errorf("parallel_compare_min must be at least 2 (got %d)", c.ParallelCompareMin)
	}
	if c.OracleTimeout < 0 {
		return fmt.Errorf("oracle_timeout cannot be negative (got %v)", c.OracleTimeout)
	}
	if c.OracleTimeout > 10*time.Minute {
		return fmt.Errorf("oracle_timeout too large (got %v, max 10 minutes)", c.OracleTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{CandidateThreshold: %.2f, CacheMatchThreshold: %.2f, ParallelCompareMin: %d, OracleTimeout: %v}",
		c.CandidateThreshold, c.CacheMatchThreshold, c.ParallelCompareMin, c.OracleTimeout,
	)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - MINUTES_DEDUP_CANDIDATE_THRESHOLD: Lexical threshold for oracle review (default: 0.6)
//   - MINUTES_DEDUP_CACHE_THRESHOLD: Threshold for cache matches (default: 0.75)
//   - MINUTES_DEDUP_PARALLEL_MIN: Batch size at which comparisons go parallel (default: 64)
//   - MINUTES_DEDUP_TIMEOUT_SECS: Oracle timeout in seconds, 0 for none (default: 0)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays any MINUTES_DEDUP_* variables that are set onto cfg without
// validating the result. Used when cfg already carries values from a config file.
func ApplyEnv(cfg *Config) error {
	if err := parseEnvFloat("MINUTES_DEDUP_CANDIDATE_THRESHOLD", &cfg.CandidateThreshold); err != nil {
		return err
	}
	if err := parseEnvFloat("MINUTES_DEDUP_CACHE_THRESHOLD", &cfg.CacheMatchThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("MINUTES_DEDUP_PARALLEL_MIN", &cfg.ParallelCompareMin); err != nil {
		return err
	}
	return parseEnvDuration("MINUTES_DEDUP_TIMEOUT_SECS", &cfg.OracleTimeout, time.Second)
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a whole number of units from an environment variable
func parseEnvDuration(key string, dest *time.Duration, unit time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * unit
	return nil
}
