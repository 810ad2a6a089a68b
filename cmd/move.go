// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bissmon/pkg/link"
)

var moveSettle time.Duration

var moveCmd = &cobra.Command{
	Use:   "move <count|zero>",
	Short: "Move the test stage to an absolute raw count",
	Long: `Queue an absolute move (G<count>) on the secondary, wait for it to be
written and for the stage to settle, then print the reported position.

"zero" moves to the stage origin (the configured position offset).`,
	Args: cobra.ExactArgs(1),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().DurationVar(&moveSettle, "settle", 2*time.Second, "Time to wait after the move command before reading the position")
}

func runMove(cmd *cobra.Command, args []string) error {
	var count int64
	if args[0] == "zero" {
		count = settings.Secondary.PositionOffset
	} else {
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[0], err)
		}
		count = v
	}

	d, err := newDialer()
	if err != nil {
		return err
	}
	s, err := openSecondary(d, nil)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if args[0] == "zero" {
		s.GoZero()
	} else {
		s.MoveTo(count)
	}
	fmt.Printf("Sent %s\n", link.MoveCommand(count))

	// the command is consumed before the next query
	deadline := time.Now().Add(settings.Secondary.ReadTimeout + moveSettle)
	for s.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Pending() > 0 {
		return fmt.Errorf("move command not sent: %v", s.LastError())
	}
	time.Sleep(moveSettle)

	snap, ok := s.Snapshot()
	if !ok {
		return fmt.Errorf("no position reply from the stage")
	}
	fmt.Printf("Position: %d (raw %d)\n", snap.Position, snap.Raw)
	return nil
}
