// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/bissmon/pkg/transport"
)

// SecondaryName is the link label used in logs and metrics
const SecondaryName = "secondary"

// Phase is the homing progress of the test stage
type Phase int

// Homing phases
const (
	PhaseIdle Phase = iota
	PhaseSentHoming
	PhaseWaitingStability
	PhaseStable
	PhaseError
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSentHoming:
		return "SENT_HOMING"
	case PhaseWaitingStability:
		return "WAITING_STABILITY"
	case PhaseStable:
		return "STABLE"
	case PhaseError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(p))
	}
}

// StabilityState is the debounce state. Message is set only in PhaseError.
// A zero StableSince means the dwell timer is not running.
type StabilityState struct {
	Phase           Phase
	Message         string
	LastPosition    int64
	HasLastPosition bool
	StableSince     time.Time
}

// String returns the phase, with the message when in error
func (s StabilityState) String() string {
	if s.Phase == PhaseError {
		return "ERROR: " + s.Message
	}
	return s.Phase.String()
}

// observe runs one debounce step for an accepted position
func (s *StabilityState) observe(position int64, now time.Time, tolerance int64, dwell time.Duration) {
	if s.Phase != PhaseWaitingStability {
		return
	}

	delta := position - s.LastPosition
	if delta < 0 {
		delta = -delta
	}
	if !s.HasLastPosition || delta > tolerance || s.StableSince.IsZero() {
		s.StableSince = now
	} else if now.Sub(s.StableSince) > dwell {
		s.Phase = PhaseStable
	}

	s.LastPosition = position
	s.HasLastPosition = true
}

// SecondarySnapshot is the latest accepted stage position
type SecondarySnapshot struct {
	Position int64
	Raw      int64
}

// MoveCommand returns the absolute move command for a raw stage count
func MoveCommand(count int64) string {
	return MoveCommandPrefix + strconv.FormatInt(count, 10)
}

// SecondaryLink polls the test stage and drives homing
type SecondaryLink struct {
	*Link[SecondarySnapshot]
	cfg SecondaryConfig

	// guarded by Link.mu
	queue     []string
	stability StabilityState
}

// NewSecondary creates an idle secondary link
func NewSecondary(cfg SecondaryConfig, opts ...Option) *SecondaryLink {
	s := &SecondaryLink{cfg: cfg}
	s.Link = newLink[SecondarySnapshot](SecondaryName, cfg.Config, s.run, opts)
	return s
}

// Config returns the link configuration
func (s *SecondaryLink) Config() SecondaryConfig {
	return s.cfg
}

// Send queues a command token. It never blocks and never drops; commands
// are written in submission order before the next position query.
func (s *SecondaryLink) Send(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, cmd)
}

// Home queues the homing command
func (s *SecondaryLink) Home() {
	s.Send(s.cfg.HomingToken)
}

// MoveTo queues an absolute move to a raw stage count
func (s *SecondaryLink) MoveTo(count int64) {
	s.Send(MoveCommand(count))
}

// GoZero queues the move to the stage origin
func (s *SecondaryLink) GoZero() {
	s.Send(s.cfg.GoZeroCommand())
}

// Start queues the continuous run command
func (s *SecondaryLink) Start() {
	s.Send(s.cfg.StartToken)
}

// Stop queues the stop command
func (s *SecondaryLink) Stop() {
	s.Send(s.cfg.StopToken)
}

// Pending returns the number of queued commands
func (s *SecondaryLink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stability returns a copy of the debounce state
func (s *SecondaryLink) Stability() StabilityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stability
}

// Position converts a raw stage count to a position
func (s *SecondaryLink) Position(raw int64) int64 {
	return -(raw - s.cfg.PositionOffset)
}

func (s *SecondaryLink) run(ctx context.Context, tr transport.Transport) {
	for ctx.Err() == nil {
		if err := s.poll(ctx, tr); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(err)
			if !sleep(ctx, s.cfg.ErrorBackoff) {
				return
			}
			continue
		}
		if !sleep(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// poll runs one cycle: drain commands, query, await reply
func (s *SecondaryLink) poll(ctx context.Context, tr transport.Transport) error {
	for {
		cmd, ok := s.nextCommand()
		if !ok {
			break
		}
		if err := s.execute(ctx, tr, cmd); err != nil {
			return err
		}
	}

	if err := s.write(tr, s.cfg.QueryToken); err != nil {
		return err
	}

	raw, ok, err := s.awaitReply(ctx, tr)
	if err != nil {
		return err
	}
	if !ok {
		s.count(eventTimeout)
		if err := tr.ResetInput(); err != nil {
			return fmt.Errorf("reset input: %w", err)
		}
		return nil
	}

	s.accept(raw, time.Now())
	return nil
}

func (s *SecondaryLink) nextCommand() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	cmd := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	return cmd, true
}

func (s *SecondaryLink) execute(ctx context.Context, tr transport.Transport, cmd string) error {
	homing := cmd == s.cfg.HomingToken

	if err := s.write(tr, cmd); err != nil {
		return err
	}
	s.count(eventCommand)
	s.logger.Debug("command sent", "command", cmd)

	if homing {
		s.setPhase(PhaseSentHoming)
	}
	if !sleep(ctx, s.cfg.SettleDelay) {
		return ctx.Err()
	}
	if homing {
		s.mu.Lock()
		s.stability = StabilityState{Phase: PhaseWaitingStability}
		s.metrics.setStable(s.name, false)
		s.mu.Unlock()
	}
	return nil
}

func (s *SecondaryLink) write(tr transport.Transport, token string) error {
	if _, err := tr.Write([]byte(token + CommandTerminator)); err != nil {
		return fmt.Errorf("write %q: %w", token, err)
	}
	return nil
}

// awaitReply polls for a position reply within the response window.
// Lines that echo the query or are not all digits are skipped.
func (s *SecondaryLink) awaitReply(ctx context.Context, tr transport.Transport) (int64, bool, error) {
	deadline := time.Now().Add(s.cfg.ResponseWindow)
	query := strings.ToLower(s.cfg.QueryToken)

	for time.Now().Before(deadline) {
		n, err := tr.Buffered()
		if err != nil {
			return 0, false, fmt.Errorf("poll input: %w", err)
		}
		if n == 0 {
			if !sleep(ctx, s.cfg.ReplyPollInterval) {
				return 0, false, ctx.Err()
			}
			continue
		}

		line, err := tr.ReadLine()
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("read reply: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(strings.ToLower(line), query) || !isDigits(line) {
			continue
		}
		raw, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		return raw, true, nil
	}
	return 0, false, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (s *SecondaryLink) accept(raw int64, now time.Time) {
	position := s.Position(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptLocked(SecondarySnapshot{Position: position, Raw: raw}, position, now)

	was := s.stability.Phase
	s.stability.observe(position, now, s.cfg.StabilityTolerance, s.cfg.StabilityDwell)
	if was != PhaseStable && s.stability.Phase == PhaseStable {
		s.metrics.setStable(s.name, true)
		s.logger.Info("stage stable", "position", position)
	}
}

func (s *SecondaryLink) setPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stability.Phase = phase
	s.stability.Message = ""
}

// fail records a loop error and moves to the error phase
func (s *SecondaryLink) fail(err error) {
	s.recordError(err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stability.Phase = PhaseError
	s.stability.Message = err.Error()
	s.metrics.setStable(s.name, false)
}
