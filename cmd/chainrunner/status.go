package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"chainrunner/internal/history"
	"chainrunner/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan progress and recent chain runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, planPath, err := loadSetup(cmd)
		if err != nil {
			return err
		}

		plan := ledger.NewFile(planPath, cfg.ManualKeywords)
		snap, err := plan.Reconcile(cfg.SkipManual)
		if err != nil {
			return err
		}

		fmt.Println(headingStyle.Render("Plan: " + planPath))
		for _, task := range snap.Completed {
			fmt.Println("  " + doneMark + " " + task)
		}
		for _, task := range snap.Remaining {
			fmt.Println("  " + pendingMark + " " + task)
		}
		for _, task := range snap.SkippedManual {
			fmt.Println("  " + manualMark + " " + mutedStyle.Render(task))
		}
		fmt.Printf("\n%d/%d automated tasks done", len(snap.Completed), len(snap.Completed)+len(snap.Remaining))
		if n := len(snap.SkippedManual); n > 0 {
			fmt.Printf(", %d manual skipped", n)
		}
		fmt.Println()

		printRecentRuns(filepath.Join(ws, cfg.StateDir))
		return nil
	},
}

// printRecentRuns shows the last few chain invocations, if a history database
// exists. Absence of history is not an error.
func printRecentRuns(stateDir string) {
	if _, err := os.Stat(filepath.Join(stateDir, "history.db")); err != nil {
		return
	}
	store, err := history.Open(stateDir)
	if err != nil {
		return
	}
	defer store.Close()

	runs, err := store.RecentRuns(5)
	if err != nil || len(runs) == 0 {
		return
	}

	fmt.Println()
	fmt.Println(headingStyle.Render("Recent runs"))
	for _, run := range runs {
		state := run.State
		switch state {
		case "SUCCESS":
			state = successStyle.Render(state)
		case "":
			state = mutedStyle.Render("in progress")
		default:
			state = errorStyle.Render(state)
		}
		fmt.Printf("  %s  %s  %d sessions\n",
			mutedStyle.Render(run.StartedAt.Local().Format(time.DateTime)),
			state,
			run.SessionsRun)
	}
}
