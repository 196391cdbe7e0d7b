package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/minutes/internal/deduplication"
	"github.com/steveyegge/minutes/internal/taskio"
	"github.com/steveyegge/minutes/internal/types"
)

// errReviewAborted is returned when the reviewer quits before answering every prompt
var errReviewAborted = errors.New("review aborted")

var reviewCmd = &cobra.Command{
	Use:   "review <tasks-file>",
	Short: "Decide which tasks to keep when they resemble tracker items",
	Long: `Walk through every task that resembles an item in the tracker snapshot and
choose whether to keep it. Tasks without a tracker match are kept without asking.

Answer y (or Enter) to keep the task, n to drop it. Ctrl+C or Ctrl+D aborts without
writing anything.

The kept tasks are written to --out in the format its extension names, or printed as
JSON when --out is not set.

Examples:
  minutes review standup.yaml --out standup.reviewed.yaml
  minutes review tasks.json > kept.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")

		tasks, err := taskio.ReadTasks(args[0])
		if err != nil {
			exitf("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		entries := loadSnapshot(ctx)
		matches := newEngine().MatchCache(tasks, entries)

		var kept []types.Task
		if len(matches) > 0 {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "Keep it? [Y/n] ",
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
				Stdout:          os.Stderr,
			})
			if err != nil {
				exitf("failed to create readline: %v", err)
			}
			kept, err = reviewTasks(tasks, entries, matches, readlineAsker(rl))
			rl.Close()
			if err != nil {
				exitf("%v", err)
			}
		} else {
			kept = tasks
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s Keeping %d of %d task(s)\n", green("✓"), len(kept), len(tasks))

		if out == "" {
			if err := taskio.WriteJSON(os.Stdout, kept); err != nil {
				exitf("%v", err)
			}
			return
		}
		if err := taskio.WriteTasks(out, kept); err != nil {
			exitf("%v", err)
		}
	},
}

func init() {
	reviewCmd.Flags().StringP("out", "o", "", "Write kept tasks to this file (.json, .yaml, .yml or .toml)")
	rootCmd.AddCommand(reviewCmd)
}

// trackerMatch is one tracker item a task resembles
type trackerMatch struct {
	ExternalID string
	Title      string
	Similarity float64
}

// askFunc asks the reviewer whether to keep the task at index
type askFunc func(index int, task types.Task, similar []trackerMatch) (bool, error)

// reviewTasks asks about each task that has at least one cache match, in batch order,
// and returns the tasks to keep in their original order.
func reviewTasks(tasks []types.Task, entries []types.CacheEntry, matches []deduplication.CacheMatch, ask askFunc) ([]types.Task, error) {
	titles := trackerTitles(entries)
	byTask := make(map[int][]trackerMatch)
	for _, m := range matches {
		byTask[m.CandidateIndex] = append(byTask[m.CandidateIndex], trackerMatch{
			ExternalID: m.ExternalID,
			Title:      titles[m.ExternalID],
			Similarity: m.Similarity,
		})
	}

	kept := make([]types.Task, 0, len(tasks))
	for i, t := range tasks {
		similar, ok := byTask[i]
		if !ok {
			kept = append(kept, t)
			continue
		}
		keep, err := ask(i, t, similar)
		if err != nil {
			return nil, err
		}
		if keep {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// readlineAsker shows each task with its tracker matches and reads y/n answers,
// asking again on anything else.
func readlineAsker(rl *readline.Instance) askFunc {
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	return func(index int, task types.Task, similar []trackerMatch) (bool, error) {
		w := rl.Stdout()
		fmt.Fprintf(w, "\n%s %s %s\n", cyan(fmt.Sprintf("[%d]", index)), task.Title, gray("["+string(task.Priority)+"]"))
		for _, m := range similar {
			fmt.Fprintf(w, "  %s %s %s %s\n", yellow("~"), m.ExternalID, m.Title, gray(fmt.Sprintf("(%.2f)", m.Similarity)))
		}

		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return false, errReviewAborted
			}
			if err != nil {
				return false, err
			}
			if keep, ok := parseAnswer(line); ok {
				return keep, nil
			}
			fmt.Fprintln(w, "Please answer y or n.")
		}
	}
}

// parseAnswer reads a y/n answer; an empty answer keeps the task
func parseAnswer(line string) (keep bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}
