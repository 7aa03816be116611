// scalpd — a real-time short-scalp signal engine for small-cap USDT
// perpetuals across Binance, Bybit, MEXC and LBank.
//
// Architecture:
//
//	main.go              — cobra entry point: `scalpd run`, `scalpd status`
//	engine/engine.go     — orchestrator: consumes unified ticks, drives entries and exits
//	hub/hub.go           — fan-in: per-venue caches, cross-venue averaging, bounded queue
//	venue/*.go           — exchange adapters: WebSocket feeds + funding/OI REST pollers
//	feature/pipeline.go  — rolling windows → microstructure feature vector
//	feature/btcregime.go — BTC pump factor gating shorts during market-wide rallies
//	scalp/*.go           — weighted scorer, multi-condition entry trigger, trailing stop
//	journal/journal.go   — SQLite (WAL) persistence: ticks, features, signals, positions
//	notify/telegram.go   — entry/exit alerts with per-symbol cooldowns
//
// How it trades:
//
//	The engine watches for short setups: ask-side book dominance, rising open
//	interest into falling price, positive funding and a calm BTC. When enough
//	conditions align and the weighted score clears the bar, it records a SHORT
//	entry and manages it with a hard stop and a trailing giveback, journaling
//	every step. It emits signals only; order placement is out of scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "scalpd",
		Short:         "Cross-venue short-scalp signal engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath(), "path to config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("SCALP_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}
