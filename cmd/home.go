// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/link"
)

var homeTimeout int

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Home the test stage and wait until it is stable",
	Long: `Send the homing command to the secondary and wait until its position
has stayed within tolerance for the full dwell time.

Exit codes:
  0 - Stage stable before timeout
  1 - Timeout reached without a stable position
  2 - Connection error

Useful for scripting calibration runs.`,
	RunE: runHome,
}

func init() {
	rootCmd.AddCommand(homeCmd)
	homeCmd.Flags().IntVar(&homeTimeout, "timeout", 30, "Timeout in seconds to wait for a stable position")
}

func runHome(cmd *cobra.Command, args []string) error {
	d, err := newDialer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	s, err := openSecondary(d, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}

	fmt.Printf("bissmon - Home\n")
	fmt.Printf("Secondary: %s\n", settings.Secondary.Port)
	fmt.Printf("Timeout: %d seconds\n", homeTimeout)
	fmt.Printf("Waiting for stable position...\n\n")

	st, ok := waitStable(s, time.Duration(homeTimeout)*time.Second)
	snap, hasData := s.Snapshot()
	s.Disconnect()

	if !ok {
		fmt.Fprintf(os.Stderr, "TIMEOUT: not stable within %d seconds (phase %s)\n", homeTimeout, st)
		os.Exit(exitTimeout)
	}

	fmt.Printf("SUCCESS: Stage stable\n")
	if hasData {
		fmt.Printf("  Position: %d\n", snap.Position)
		fmt.Printf("  Raw:      %d\n", snap.Raw)
	}
	os.Exit(exitOK)
	return nil
}

// waitStable queues homing and polls the stability phase until it is
// Stable or the timeout expires. Phase transitions are logged.
func waitStable(s *link.SecondaryLink, timeout time.Duration) (link.StabilityState, bool) {
	s.Home()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	last := s.Stability()
	for time.Now().Before(deadline) {
		<-ticker.C
		st := s.Stability()
		if st.Phase != last.Phase {
			logger.Info("homing", "phase", st.String())
			last = st
		}
		if st.Phase == link.PhaseStable {
			return st, true
		}
	}
	return last, false
}
