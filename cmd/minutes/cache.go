package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/storage"
	"github.com/steveyegge/minutes/internal/taskio"
	"github.com/steveyegge/minutes/internal/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the tracker snapshot used for cache matching",
	Long: `Manage the per-user snapshot of items already in the task tracker.

The snapshot is replaced wholesale by 'cache sync' and read by 'cache match' and
'review' to flag tasks that probably exist already.`,
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync <entries-file>",
	Short: "Replace the tracker snapshot",
	Long: `Replace the current user's tracker snapshot with the entries in a file.

Each entry needs an external_id and a title. The old snapshot is removed in the same
transaction, and concurrent syncs for the same user are serialized by a lock file
beside the database.

Examples:
  minutes cache sync tracker.json
  minutes cache sync tracker.yaml --user alice`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wait, _ := cmd.Flags().GetDuration("wait")

		entries, err := taskio.ReadCacheEntries(args[0])
		if err != nil {
			exitf("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		lockCtx, lockCancel := ctx, context.CancelFunc(func() {})
		if wait > 0 {
			lockCtx, lockCancel = context.WithTimeout(ctx, wait)
		}
		lock, err := storage.AcquireSnapshotLock(lockCtx, cfg.Database, cfg.User)
		lockCancel()
		if err != nil {
			exitf("%v", err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("failed to release snapshot lock", "path", lock.Path(), "error", err)
			}
		}()

		store := openStore(ctx)
		defer store.Close()

		if err := store.ReplaceSnapshot(ctx, cfg.User, entries); err != nil {
			exitf("failed to replace snapshot: %v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Synced %d tracker item(s) for %s\n", green("✓"), len(entries), cyan(cfg.User))
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the tracker snapshot",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := commandContext()
		defer cancel()

		store := openStore(ctx)
		defer store.Close()

		info, err := store.SnapshotInfo(ctx, cfg.User)
		if err != nil {
			exitf("%v", err)
		}
		entries, err := store.GetSnapshot(ctx, cfg.User)
		if err != nil {
			exitf("%v", err)
		}

		if asJSON {
			out := struct {
				Info    *types.SnapshotInfo `json:"info"`
				Entries []types.CacheEntry  `json:"entries"`
			}{info, entries}
			if err := taskio.WriteJSON(os.Stdout, out); err != nil {
				exitf("%v", err)
			}
			return
		}

		if info == nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s No snapshot for %s. Run 'minutes cache sync <file>' first.\n", yellow("⚠"), cfg.User)
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("Snapshot for %s: %d item(s), synced %s %s\n\n", cfg.User, info.EntryCount,
			info.SyncedAt.Local().Format("2006-01-02 15:04:05"),
			gray("("+formatAge(time.Since(info.SyncedAt))+")"))

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.ExternalID, truncate(e.Title, 70)})
		}
		fmt.Println(renderTable([]string{"External ID", "Title"}, rows, nil))
	},
}

var cacheMatchCmd = &cobra.Command{
	Use:   "match <tasks-file>",
	Short: "Flag tasks that resemble items already in the tracker",
	Long: `Compare a batch of tasks against the tracker snapshot.

Matches are advisory: nothing is removed, and no language model is called. Use
'minutes review' to decide interactively which tasks to keep.

Examples:
  minutes cache match standup.yaml
  minutes cache match standup.yaml --json --record`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		record, _ := cmd.Flags().GetBool("record")

		tasks, err := taskio.ReadTasks(args[0])
		if err != nil {
			exitf("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		entries := loadSnapshot(ctx)
		matches := newEngine().MatchCache(tasks, entries)

		if record {
			run, err := newRun(types.RunCacheMatch, cfg.User, len(tasks), len(tasks),
				len(matches), deduplication.Stats{TotalTasks: len(tasks)}, matches)
			if err != nil {
				exitf("%v", err)
			}
			recordRun(ctx, run)
		}

		if asJSON {
			if err := taskio.WriteJSON(os.Stdout, matches); err != nil {
				exitf("%v", err)
			}
			return
		}

		if len(matches) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s None of %d task(s) match the %d tracker item(s)\n", green("✓"), len(tasks), len(entries))
			return
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s %d possible match(es) with the tracker:\n\n", yellow("⚠"), len(matches))
		fmt.Println(renderTable(
			[]string{"#", "Task", "External ID", "Tracker title", "Similarity"},
			matchRows(tasks, entries, matches),
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		))
	},
}

func init() {
	cacheSyncCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for another sync to finish (0 waits indefinitely)")
	cacheShowCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
	cacheMatchCmd.Flags().Bool("json", false, "Print matches as JSON")
	cacheMatchCmd.Flags().Bool("record", false, "Record the run in the database")

	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheMatchCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadSnapshot reads the current user's tracker snapshot, warning when none exists
func loadSnapshot(ctx context.Context) []types.CacheEntry {
	store := openStore(ctx)
	defer store.Close()

	info, err := store.SnapshotInfo(ctx, cfg.User)
	if err != nil {
		exitf("%v", err)
	}
	if info == nil {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s No tracker snapshot for %s; nothing to match against\n", yellow("⚠"), cfg.User)
		return []types.CacheEntry{}
	}

	entries, err := store.GetSnapshot(ctx, cfg.User)
	if err != nil {
		exitf("%v", err)
	}
	return entries
}

func matchRows(tasks []types.Task, entries []types.CacheEntry, matches []deduplication.CacheMatch) [][]string {
	titles := trackerTitles(entries)
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			strconv.Itoa(m.CandidateIndex),
			truncate(tasks[m.CandidateIndex].Title, 40),
			m.ExternalID,
			truncate(titles[m.ExternalID], 40),
			fmt.Sprintf("%.2f", m.Similarity),
		})
	}
	return rows
}

func trackerTitles(entries []types.CacheEntry) map[string]string {
	titles := make(map[string]string, len(entries))
	for _, e := range entries {
		titles[e.ExternalID] = e.Title
	}
	return titles
}

// formatAge renders a duration coarsely for "synced ... ago" output
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
