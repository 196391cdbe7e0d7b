package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/taskio"
	"github.com/steveyegge/minutes/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs",
	Long: `List dedup, merge and cache match runs recorded with --record, newest first.

With a run id, print that run including the full engine result.

Examples:
  minutes runs
  minutes runs --limit 5
  minutes runs 0b6f3c1e-8a7d-4f43-9a55-1c9e2b7d4f10`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := commandContext()
		defer cancel()

		store := openStore(ctx)
		defer store.Close()

		if len(args) == 1 {
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				exitf("%v", err)
			}
			if run == nil {
				exitf("run %s not found", args[0])
			}
			if err := taskio.WriteJSON(os.Stdout, run); err != nil {
				exitf("%v", err)
			}
			return
		}

		runs, err := store.ListRuns(ctx, cfg.User, limit)
		if err != nil {
			exitf("%v", err)
		}

		if asJSON {
			if err := taskio.WriteJSON(os.Stdout, runs); err != nil {
				exitf("%v", err)
			}
			return
		}

		if len(runs) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No recorded runs for "+cfg.User))
			return
		}
		fmt.Println(renderTable(
			[]string{"ID", "Kind", "When", "In", "Out", "Removed", "Model calls", "Failed open"},
			runRows(runs),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
	},
}

func init() {
	runsCmd.Flags().IntP("limit", "n", 20, "Maximum runs to list (0 for all)")
	runsCmd.Flags().Bool("json", false, "Print runs as JSON")
	rootCmd.AddCommand(runsCmd)
}

func runRows(runs []*types.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		failed := ""
		if r.FailedOpen {
			failed = "yes: " + truncate(r.FailureReason, 40)
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			string(r.Kind),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.InputCount),
			strconv.Itoa(r.OutputCount),
			strconv.Itoa(r.DuplicateCount),
			strconv.Itoa(r.OracleCalls),
			failed,
		})
	}
	return rows
}
