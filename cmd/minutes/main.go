// Command minutes deduplicates and consolidates action items extracted from meeting
// transcripts, and matches them against a cached snapshot of the task tracker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/ai"
	"github.com/steveyegge/minutes/internal/config"
	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/storage"
	"github.com/steveyegge/minutes/internal/types"
)

var (
	configPath string
	dbFlag     string
	userFlag   string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Deduplicate and consolidate meeting action items",
	Long: `minutes cleans up action items extracted from meeting transcripts before they
reach the task tracker.

  dedup   drop repeats within one batch of tasks
  merge   consolidate batches from several meetings into one list
  cache   keep a snapshot of the tracker and flag tasks that already exist
  review  walk through tracker matches and choose which tasks to keep
  runs    list recorded dedup and merge runs

Lexically similar titles are confirmed by a language model. When the model is
unavailable every command fails open: nothing is removed or merged.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbFlag != "" {
			loaded.Database = dbFlag
		}
		if userFlag != "" {
			loaded.User = userFlag
		}
		cfg = loaded
		logger.Debug("config loaded", "database", cfg.Database, "user", cfg.User, "dedup", cfg.Deduplication().String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "minutes.yaml", "Config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (overrides config and MINUTES_DB)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "Tracker snapshot owner (overrides config and MINUTES_USER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// exitf prints an error the way every command reports failure and exits
func exitf(format string, args ...any) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// commandContext returns a context cancelled on SIGINT/SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context) storage.Storage {
	store, err := storage.NewStorage(ctx, cfg.Storage())
	if err != nil {
		exitf("failed to open database: %v", err)
	}
	return store
}

// newEngine wires the oracle lazily: the model client is only built if some batch
// actually has candidate pairs, and a construction failure fails open.
func newEngine() *deduplication.Engine {
	provider := ai.NewProvider(cfg.Supervisor(logger))
	dedupCfg := cfg.Deduplication()
	dedupCfg.Logger = logger
	engine, err := deduplication.NewEngine(deduplication.OracleFromProvider(provider), dedupCfg)
	if err != nil {
		exitf("%v", err)
	}
	return engine
}

// newRun builds a run record for a completed engine operation
func newRun(kind types.RunKind, userID string, input, output, duplicates int, stats deduplication.Stats, details any) (*types.Run, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run details: %w", err)
	}
	return &types.Run{
		ID:             uuid.NewString(),
		UserID:         userID,
		Kind:           kind,
		InputCount:     input,
		OutputCount:    output,
		DuplicateCount: duplicates,
		OracleCalls:    stats.OracleCalls,
		FailedOpen:     stats.FailedOpen,
		FailureReason:  stats.FailureReason,
		Details:        raw,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func recordRun(ctx context.Context, run *types.Run) {
	store := openStore(ctx)
	defer store.Close()

	if err := store.RecordRun(ctx, run); err != nil {
		exitf("failed to record run: %v", err)
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s\n", gray("Recorded run "+run.ID))
}

// printFailOpen warns that the oracle was skipped and nothing was removed
func printFailOpen(stats deduplication.Stats) {
	if !stats.FailedOpen {
		return
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s Language model unavailable, input passed through unchanged: %s\n",
		yellow("⚠"), stats.FailureReason)
}
