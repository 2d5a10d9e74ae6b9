package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chunkmux/chunkmux/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past chunkmux runs",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(filepath.Join(dataDir(), "history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	for _, r := range runs {
		line := fmt.Sprintf("%s  %-10s  %-8s  %s", r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.HumanSize(), r.URL)
		if r.Error != "" {
			line += fmt.Sprintf("  (%s)", r.Error)
		}
		fmt.Println(line)
	}
	return nil
}
