// Package config loads the minutes CLI configuration.
//
// Values are layered: built-in defaults, then an optional YAML or TOML file, then
// environment variables. A .env file in the working directory is loaded first and
// never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/minutes/internal/ai"
	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/storage"
)

// DefaultUser is the snapshot owner when neither the config file nor MINUTES_USER names one
const DefaultUser = "default"

// Config is the on-disk configuration for the minutes CLI
type Config struct {
	// Database is the SQLite file holding tracker snapshots and run records.
	// Default: .minutes/minutes.db
	Database string `yaml:"database" toml:"database"`

	// User owns the tracker snapshot that cache commands read and replace.
	// Default: "default"
	User string `yaml:"user" toml:"user"`

	AI    AIConfig    `yaml:"ai" toml:"ai"`
	Dedup DedupConfig `yaml:"dedup" toml:"dedup"`
}

// AIConfig selects the model provider and bounds how it is called
type AIConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // anthropic, openai, ollama
	APIKey   string `yaml:"api_key" toml:"api_key"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Model    string `yaml:"model" toml:"model"`

	Timeout            Duration `yaml:"timeout" toml:"timeout"`
	CircuitBreaker     bool     `yaml:"circuit_breaker" toml:"circuit_breaker"`
	FailureThreshold   int      `yaml:"failure_threshold" toml:"failure_threshold"`
	SuccessThreshold   int      `yaml:"success_threshold" toml:"success_threshold"`
	OpenTimeout        Duration `yaml:"open_timeout" toml:"open_timeout"`
	MaxConcurrentCalls int      `yaml:"max_concurrent_calls" toml:"max_concurrent_calls"`
	RequestsPerMinute  int      `yaml:"requests_per_minute" toml:"requests_per_minute"`
}

// DedupConfig mirrors deduplication.Config in file form
type DedupConfig struct {
	CandidateThreshold  float64  `yaml:"candidate_threshold" toml:"candidate_threshold"`
	CacheMatchThreshold float64  `yaml:"cache_match_threshold" toml:"cache_match_threshold"`
	ParallelCompareMin  int      `yaml:"parallel_compare_min" toml:"parallel_compare_min"`
	OracleTimeout       Duration `yaml:"oracle_timeout" toml:"oracle_timeout"`
}

// Duration is a time.Duration written as a Go duration string ("45s", "2m") in
// config files
type Duration time.Duration

// UnmarshalText parses a duration string; used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML parses a duration string from a YAML scalar
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText renders the duration the way it is parsed
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is present
func Default() Config {
	guard := ai.DefaultGuardConfig()
	dedup := deduplication.DefaultConfig()
	return Config{
		Database: storage.DefaultPath,
		User:     DefaultUser,
		AI: AIConfig{
			Provider:           ai.ProviderAnthropic,
			Timeout:            Duration(guard.Timeout),
			CircuitBreaker:     guard.CircuitBreakerEnabled,
			FailureThreshold:   guard.FailureThreshold,
			SuccessThreshold:   guard.SuccessThreshold,
			OpenTimeout:        Duration(guard.OpenTimeout),
			MaxConcurrentCalls: guard.MaxConcurrentCalls,
			RequestsPerMinute:  guard.RequestsPerMinute,
		},
		Dedup: DedupConfig{
			CandidateThreshold:  dedup.CandidateThreshold,
			CacheMatchThreshold: dedup.CacheMatchThreshold,
			ParallelCompareMin:  dedup.ParallelCompareMin,
			OracleTimeout:       Duration(dedup.OracleTimeout),
		},
	}
}

// Load reads the config file at path over the defaults, then applies environment
// overrides and validates. An empty path, or a path that does not exist, yields the
// defaults plus environment.
//
// The format follows the extension: .yaml/.yml for YAML, .toml for TOML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config: file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config '%s': %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config '%s': %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env") into the
// process environment. Variables already set are left alone and missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables on the loaded values
//
// Environment variables:
//   - MINUTES_DB: database path
//   - MINUTES_USER: snapshot owner
//   - MINUTES_PROVIDER, MINUTES_MODEL, MINUTES_BASE_URL: model selection
//   - MINUTES_DEDUP_*: see deduplication.ConfigFromEnv
func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"MINUTES_DB":       &c.Database,
		"MINUTES_USER":     &c.User,
		"MINUTES_PROVIDER": &c.AI.Provider,
		"MINUTES_MODEL":    &c.AI.Model,
		"MINUTES_BASE_URL": &c.AI.BaseURL,
	}
	for key, dest := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dest = v
		}
	}

	dedup := c.Deduplication()
	if err := deduplication.ApplyEnv(&dedup); err != nil {
		return err
	}
	c.Dedup = DedupConfig{
		CandidateThreshold:  dedup.CandidateThreshold,
		CacheMatchThreshold: dedup.CacheMatchThreshold,
		ParallelCompareMin:  dedup.ParallelCompareMin,
		OracleTimeout:       Duration(dedup.OracleTimeout),
	}
	return nil
}

// Validate checks every section, reporting the first problem found
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database path is required")
	}
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("user is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.AI.Provider)) {
	case "", "claude", ai.ProviderAnthropic, ai.ProviderOpenAI, ai.ProviderOllama:
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AI.Provider)
	}
	if err := c.Guard().Validate(); err != nil {
		return fmt.Errorf("invalid ai config: %w", err)
	}
	if err := c.Deduplication().Validate(); err != nil {
		return fmt.Errorf("invalid dedup config: %w", err)
	}
	return nil
}

// Client returns the provider selection for ai.NewCompleter
func (c Config) Client() ai.ClientConfig {
	return ai.ClientConfig{
		Provider: c.AI.Provider,
		APIKey:   c.AI.APIKey,
		BaseURL:  c.AI.BaseURL,
		Model:    c.AI.Model,
	}
}

// Guard returns the call guard settings
func (c Config) Guard() ai.GuardConfig {
	return ai.GuardConfig{
		Timeout:               time.Duration(c.AI.Timeout),
		CircuitBreakerEnabled: c.AI.CircuitBreaker,
		FailureThreshold:      c.AI.FailureThreshold,
		SuccessThreshold:      c.AI.SuccessThreshold,
		OpenTimeout:           time.Duration(c.AI.OpenTimeout),
		MaxConcurrentCalls:    c.AI.MaxConcurrentCalls,
		RequestsPerMinute:     c.AI.RequestsPerMinute,
	}
}

// Supervisor returns the ai.Config for an ai.Provider
func (c Config) Supervisor(logger *slog.Logger) ai.Config {
	return ai.Config{
		Client: c.Client(),
		Guard:  c.Guard(),
		Logger: logger,
	}
}

// Deduplication returns the engine configuration (without a logger)
func (c Config) Deduplication() deduplication.Config {
	return deduplication.Config{
		CandidateThreshold:  c.Dedup.CandidateThreshold,
		CacheMatchThreshold: c.Dedup.CacheMatchThreshold,
		ParallelCompareMin:  c.Dedup.ParallelCompareMin,
		OracleTimeout:       time.Duration(c.Dedup.OracleTimeout),
	}
}

// Storage returns the storage configuration
func (c Config) Storage() *storage.Config {
	return &storage.Config{Path: c.Database}
}
