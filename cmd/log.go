// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/link"
)

var (
	showAll       bool
	statsInterval int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log samples and errors in text mode",
	Long: `Connect the configured links and print samples as they arrive.

By default only flagged primary samples are printed: error or warning bit
set, device-reported CRC failure, or a local CRC mismatch when verify_crc is
enabled. Use --show-all to print every observed sample.

Secondary phase changes are always printed. Per-link statistics are printed
every --stats-interval seconds and once more on exit.`,
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all samples (not just flagged ones)")
	logCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval (seconds)")
}

// flagged reports whether a primary sample carries any fault indication
func flagged(s link.PrimarySnapshot) bool {
	return s.ErrorBit != 0 || s.WarningBit != 0 || s.CRCFail != 0 || s.LocalCRCMismatch
}

// sampleWatcher prints snapshots whose sample counter moved since last time
type sampleWatcher struct {
	lastPrimary   uint64
	lastSecondary uint64
	lastPhase     link.StabilityState
}

func (w *sampleWatcher) poll(l *links, now time.Time) {
	timestamp := now.Format("15:04:05.000")

	if l.primary != nil {
		snap, ok := l.primary.Snapshot()
		count := l.primary.Stats().Samples
		if ok && count != w.lastPrimary {
			skipped := count - w.lastPrimary - 1
			w.lastPrimary = count
			if showAll || flagged(snap) {
				line := fmt.Sprintf("[%s] PRIMARY   %s", timestamp, link.FormatPrimary(snap))
				if skipped > 0 && showAll {
					line += fmt.Sprintf(" (+%d unseen)", skipped)
				}
				if flagged(snap) {
					line = "\033[1;31m" + line + "\033[0m"
				}
				fmt.Println(line)
			}
		}
	}

	if l.secondary != nil {
		snap, ok := l.secondary.Snapshot()
		st := l.secondary.Stability()
		count := l.secondary.Stats().Samples
		if st.Phase != w.lastPhase.Phase || st.Message != w.lastPhase.Message {
			fmt.Printf("[%s] SECONDARY phase %s -> %s\n", timestamp, w.lastPhase, st)
			w.lastPhase = st
		}
		if ok && count != w.lastSecondary {
			w.lastSecondary = count
			if showAll {
				fmt.Printf("[%s] SECONDARY %s\n", timestamp, link.FormatSecondary(snap, st))
			}
		}
	}
}

func printStats(l *links) {
	fmt.Println()
	if l.primary != nil {
		stats := l.primary.Stats()
		fmt.Printf("Primary\n%s", stats.String())
	}
	if l.secondary != nil {
		stats := l.secondary.Stats()
		fmt.Printf("Secondary\n%s", stats.String())
	}
	fmt.Println()
}

func runLog(cmd *cobra.Command, args []string) error {
	l, err := openLinks(nil)
	if err != nil {
		return err
	}
	defer l.close()

	fmt.Printf("bissmon - Sample Log\n")
	for _, line := range l.describe() {
		fmt.Println(line)
	}
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All samples\n")
	} else {
		fmt.Printf("Mode: Flagged samples only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if statsInterval <= 0 {
		statsInterval = 10
	}
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()
	pollTicker := time.NewTicker(settings.Serve.Interval)
	defer pollTicker.Stop()

	var w sampleWatcher
	for {
		select {
		case <-ctx.Done():
			printStats(l)
			return nil
		case now := <-pollTicker.C:
			w.poll(l, now)
		case <-statsTicker.C:
			printStats(l)
		}
	}
}
