package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scalp-engine/internal/config"
	"scalp-engine/internal/journal"
)

func newStatusCmd() *cobra.Command {
	var (
		lookback time.Duration
		maxRows  int
		topN     int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect the journal: freshness, row counts, top scoring symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runStatus(cfg.Journal.Path, lookback, maxRows, topN)
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 600*time.Second, "score averaging window")
	cmd.Flags().IntVar(&maxRows, "max-rows", 5000, "max rank rows to scan")
	cmd.Flags().IntVar(&topN, "top", 5, "number of symbols to list")
	return cmd
}

func runStatus(dbPath string, lookback time.Duration, maxRows, topN int) error {
	j, err := journal.OpenReadOnly(dbPath)
	if err != nil {
		return err
	}
	defer j.Close()

	stats, err := j.Stats()
	if err != nil {
		return fmt.Errorf("read table stats: %w", err)
	}

	fmt.Printf("journal: %s\n\n", dbPath)
	fmt.Printf("%-15s %10s  %s\n", "table", "rows", "newest")
	for _, s := range stats {
		newest := "-"
		if !s.Newest.IsZero() {
			newest = fmt.Sprintf("%s (%s ago)",
				s.Newest.Format(time.RFC3339),
				time.Since(s.Newest).Truncate(time.Second))
		}
		fmt.Printf("%-15s %10d  %s\n", s.Table, s.Rows, newest)
	}

	open, err := j.OpenPositions()
	if err != nil {
		return fmt.Errorf("read open positions: %w", err)
	}
	fmt.Printf("\nopen positions: %d", len(open))
	for _, sym := range open {
		fmt.Printf(" %s", sym)
	}
	fmt.Println()

	top, err := j.TopScores(lookback, maxRows, topN)
	if err != nil {
		return fmt.Errorf("read top scores: %w", err)
	}
	if len(top) > 0 {
		fmt.Printf("\ntop %d by avg score (last %s):\n", topN, lookback)
		for i, row := range top {
			fmt.Printf("%2d. %-12s %6.1f  (%d samples)\n", i+1, row.Symbol, row.AvgScore, row.Samples)
		}
	}
	return nil
}
