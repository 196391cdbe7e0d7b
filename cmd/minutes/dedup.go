package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/taskio"
	"github.com/steveyegge/minutes/internal/types"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <tasks-file>",
	Short: "Remove repeated action items from one batch",
	Long: `Remove repeated action items from one batch of tasks.

Titles that are lexically similar are sent to the language model, which confirms
which tasks repeat an earlier one. The earliest task in each group is kept.

The tasks file may be JSON, YAML or TOML ("-" reads JSON from stdin).

Examples:
  minutes dedup standup.yaml
  minutes dedup tasks.json --json > result.json
  minutes dedup tasks.toml --record`,
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

		result := newEngine().DeduplicateBatch(ctx, tasks)
		if err := result.Validate(); err != nil {
			exitf("internal error: %v", err)
		}

		if record {
			run, err := newRun(types.RunDedup, cfg.User, len(tasks), len(result.UniqueTasks),
				result.TotalDuplicates, result.Stats, result)
			if err != nil {
				exitf("%v", err)
			}
			recordRun(ctx, run)
		}

		if asJSON {
			if err := taskio.WriteJSON(os.Stdout, result); err != nil {
				exitf("%v", err)
			}
			return
		}
		printDedupResult(tasks, result)
	},
}

func init() {
	dedupCmd.Flags().Bool("json", false, "Print the full result as JSON")
	dedupCmd.Flags().Bool("record", false, "Record the run in the database")
	rootCmd.AddCommand(dedupCmd)
}

func printDedupResult(tasks []types.Task, result *deduplication.DeduplicationResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	printFailOpen(result.Stats)

	if result.TotalDuplicates == 0 {
		fmt.Printf("%s No duplicates among %d task(s)\n", green("✓"), len(tasks))
	} else {
		fmt.Printf("\n%s Found %d duplicate(s) among %d task(s):\n\n", yellow("⚠"), result.TotalDuplicates, len(tasks))
		fmt.Println(renderTable(
			[]string{"#", "Duplicate", "Kept #", "Kept task", "Reason"},
			dedupRows(tasks, result.Duplicates),
			[]columnAlignment{alignRight, alignLeft, alignRight},
		))
	}

	fmt.Printf("\nUnique tasks (%d):\n", len(result.UniqueTasks))
	for _, t := range result.UniqueTasks {
		fmt.Printf("  • %s %s\n", t.Title, gray("["+string(t.Priority)+"]"))
	}
	fmt.Printf("\n%s\n", gray(fmt.Sprintf("%d comparison(s), %d candidate pair(s), %d model call(s), %dms",
		result.Stats.ComparisonsMade, result.Stats.CandidateCount, result.Stats.OracleCalls, result.Stats.ProcessingTimeMs)))
}

func dedupRows(tasks []types.Task, duplicates []deduplication.DuplicateMatch) [][]string {
	rows := make([][]string, 0, len(duplicates))
	for _, d := range duplicates {
		kept := *d.DuplicateOfIndex
		rows = append(rows, []string{
			strconv.Itoa(d.TaskIndex),
			truncate(tasks[d.TaskIndex].Title, 40),
			strconv.Itoa(kept),
			truncate(tasks[kept].Title, 40),
			truncate(d.Reason, 50),
		})
	}
	return rows
}
