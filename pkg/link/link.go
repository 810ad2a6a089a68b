// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link runs the background workers that talk to the bridge devices.
//
// A link owns one transport and at most one worker goroutine. The worker is
// the only writer of the link's snapshot, history and status; observers read
// copies under the link's lock and never block on device I/O.
package link

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/bissmon/pkg/transport"
)

// State is the link lifecycle state
type State int32

// Link states
const (
	StateIdle State = iota
	StateConnecting
	StateRunning
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Option configures a link
type Option func(*options)

type options struct {
	opener  transport.Opener
	logger  *slog.Logger
	metrics *Metrics
}

// WithOpener sets the transport opener (default transport.Open)
func WithOpener(opener transport.Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

// WithLogger sets the logger (default slog.Default)
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// View is a consistent copy of a link's published state
type View[S any] struct {
	Snapshot    S
	HasSnapshot bool
	History     []Sample
}

// Link is the device link base: transport, worker lifecycle and the
// lock-guarded snapshot and history of type S.
type Link[S any] struct {
	name    string
	cfg     Config
	opener  transport.Opener
	logger  *slog.Logger
	metrics *Metrics
	loop    func(ctx context.Context, tr transport.Transport)

	// mu guards everything the worker publishes. It is never held across
	// transport I/O.
	mu          sync.Mutex
	snapshot    S
	hasSnapshot bool
	history     *history
	stats       *Statistics
	lastErr     error

	// lifecycle serializes Connect and Disconnect
	lifecycle sync.Mutex
	state     atomic.Int32
	port      string
	tr        transport.Transport
	cancel    context.CancelFunc
	done      chan struct{}
}

func newLink[S any](name string, cfg Config, loop func(context.Context, transport.Transport), opts []Option) *Link[S] {
	o := options{
		opener: transport.Open,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Link[S]{
		name:    name,
		cfg:     cfg,
		opener:  o.opener,
		logger:  o.logger.With("link", name),
		metrics: o.metrics,
		loop:    loop,
		history: newHistory(cfg.HistoryCapacity),
		stats:   NewStatistics(),
	}
}

// Name returns the link name used in logs and metrics
func (l *Link[S]) Name() string {
	return l.name
}

// State returns the lifecycle state
func (l *Link[S]) State() State {
	return State(l.state.Load())
}

// Running reports whether a worker is active
func (l *Link[S]) Running() bool {
	return l.State() == StateRunning
}

// Port returns the port of the current or last connection
func (l *Link[S]) Port() string {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	return l.port
}

// Connect opens the transport and starts the worker. It returns false,
// after logging the cause, if the port cannot be opened or the link is
// already running. A non-positive baudRate selects the configured rate.
func (l *Link[S]) Connect(port string, baudRate int) bool {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.State() != StateIdle {
		l.logger.Warn("connect ignored, link already running", "port", l.port)
		return false
	}
	if baudRate <= 0 {
		baudRate = l.cfg.BaudRate
	}

	l.state.Store(int32(StateConnecting))
	tr, err := l.opener(port, baudRate, l.cfg.ReadTimeout)
	if err != nil {
		l.logger.Error("connect failed", "port", port, "baud", baudRate, "error", err)
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
		l.state.Store(int32(StateIdle))
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.port = port
	l.tr = tr
	l.cancel = cancel
	l.done = done
	l.state.Store(int32(StateRunning))
	l.metrics.setConnected(l.name, true)

	go func() {
		defer close(done)
		l.loop(ctx, tr)
	}()

	l.logger.Info("connected", "connection", transport.Describe(port, baudRate))
	return true
}

// Disconnect stops the worker and closes the transport. It is idempotent
// and bounded: it waits at most the join timeout for the worker, closes the
// transport to unblock pending reads, and waits once more before giving up.
func (l *Link[S]) Disconnect() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.cancel == nil {
		return
	}

	l.cancel()
	joined := waitDone(l.done, l.cfg.JoinTimeout)

	if err := l.tr.Close(); err != nil {
		l.logger.Warn("close failed", "error", err)
	}
	if !joined && !waitDone(l.done, l.cfg.JoinTimeout) {
		l.logger.Warn("worker did not stop within join timeout")
	}

	l.tr = nil
	l.cancel = nil
	l.done = nil
	l.state.Store(int32(StateIdle))
	l.metrics.setConnected(l.name, false)
	l.logger.Info("disconnected", "port", l.port)
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Snapshot returns the latest accepted value; false means no data yet
func (l *Link[S]) Snapshot() (S, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot, l.hasSnapshot
}

// History returns the retained samples, oldest first
func (l *Link[S]) History() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.snapshot()
}

// View returns the snapshot and history read under one lock acquisition
func (l *Link[S]) View() View[S] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return View[S]{
		Snapshot:    l.snapshot,
		HasSnapshot: l.hasSnapshot,
		History:     l.history.snapshot(),
	}
}

// ClearHistory drops the snapshot and all retained samples
func (l *Link[S]) ClearHistory() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero S
	l.snapshot = zero
	l.hasSnapshot = false
	l.history.reset()
}

// Stats returns a copy of the link statistics
func (l *Link[S]) Stats() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := *l.stats
	s.CalculateRates()
	return s
}

// ResetStats zeroes the link statistics
func (l *Link[S]) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Reset()
}

// LastError returns the most recent connect or loop error
func (l *Link[S]) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// acceptLocked replaces the snapshot and appends to history.
// Caller must hold l.mu.
func (l *Link[S]) acceptLocked(s S, position int64, now time.Time) {
	l.snapshot = s
	l.hasSnapshot = true
	l.history.append(Sample{Position: position, Time: now})
	l.stats.Samples++
	l.stats.LastSampleTime = now
	l.metrics.inc(eventAccepted, l.name)
	l.metrics.setPosition(l.name, position)
}

// count records an event in statistics and metrics
func (l *Link[S]) count(e event) {
	l.mu.Lock()
	l.countLocked(e)
	l.mu.Unlock()
}

// countLocked is count with l.mu held
func (l *Link[S]) countLocked(e event) {
	switch e {
	case eventTimeout:
		l.stats.ReplyTimeouts++
	case eventLoopError:
		l.stats.LoopErrors++
	case eventCRCFailure:
		l.stats.CRCFailures++
	case eventCRCMismatch:
		l.stats.CRCMismatches++
	case eventCommand:
		l.stats.Commands++
	}
	l.metrics.inc(e, l.name)
}

// recordError stores a loop error and logs it
func (l *Link[S]) recordError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.countLocked(eventLoopError)
	l.mu.Unlock()
	l.logger.Warn("read error", "error", err)
}

// sleep waits for d or until ctx is cancelled; false means stop
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
