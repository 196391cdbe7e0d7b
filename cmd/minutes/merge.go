package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/taskio"
	"github.com/steveyegge/minutes/internal/types"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <batches-file>",
	Short: "Consolidate action items from several meetings",
	Long: `Consolidate labeled batches of action items, typically one batch per meeting.

Tasks from different batches that describe the same work are merged into a single
task that lists every meeting it came from. Tasks are numbered in the order the
batches appear in the file.

Example batches file (YAML):
  - label: standup
    tasks:
      - title: Fix login bug
        priority: high
  - label: retro
    tasks:
      - title: Fix the login bug

Examples:
  minutes merge week.yaml
  minutes merge week.toml --json --record`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		record, _ := cmd.Flags().GetBool("record")

		batches, err := taskio.ReadBatches(args[0])
		if err != nil {
			exitf("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		result := newEngine().MergeBatches(ctx, batches)
		if err := result.Validate(); err != nil {
			exitf("internal error: %v", err)
		}

		if record {
			input := result.Stats.TotalTasks
			run, err := newRun(types.RunMerge, cfg.User, input, len(result.Tasks),
				input-len(result.Tasks), result.Stats, result)
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
		printMergeResult(batches, result)
	},
}

func init() {
	mergeCmd.Flags().Bool("json", false, "Print the full result as JSON")
	mergeCmd.Flags().Bool("record", false, "Record the run in the database")
	rootCmd.AddCommand(mergeCmd)
}

func printMergeResult(batches []types.LabeledBatch, result *deduplication.MergeResult) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	printFailOpen(result.Stats)

	if len(result.Groups) == 0 {
		fmt.Printf("%s Nothing to merge across %d batch(es)\n", green("✓"), len(batches))
	} else {
		fmt.Printf("\n%s Merged %d group(s) across %d batch(es):\n\n", green("✓"), len(result.Groups), len(batches))
		for _, g := range result.Groups {
			fmt.Printf("%s %s\n", cyan(g.MergedTask.Title), gray("["+string(g.MergedTask.Priority)+"]"))
			fmt.Printf("  From: %s (tasks %s)\n", strings.Join(g.Sources, ", "), joinInts(g.MergedIndices))
			if g.Reason != "" {
				fmt.Printf("  Reason: %s\n", g.Reason)
			}
			fmt.Println()
		}
	}

	rows := make([][]string, 0, len(result.Tasks))
	for i, t := range result.Tasks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(t.Title, 50),
			string(t.Priority),
			formatDue(t.DueDate),
			result.Sources[i],
		})
	}
	fmt.Println(renderTable(
		[]string{"#", "Task", "Priority", "Due", "Source"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
