// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/bissmon/pkg/link"
)

// DefaultInterval is the publish cadence
const DefaultInterval = 100 * time.Millisecond

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
)

// PrimarySource is the read side of a primary link
type PrimarySource interface {
	Snapshot() (link.PrimarySnapshot, bool)
	Running() bool
}

// SecondarySource is the read side of a secondary link
type SecondarySource interface {
	Snapshot() (link.SecondarySnapshot, bool)
	Stability() link.StabilityState
	Running() bool
}

// Option configures a Publisher
type Option func(*Publisher)

// WithInterval sets the publish cadence
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Publisher samples the links on a fixed cadence and broadcasts frames.
// A client that cannot keep up is disconnected; the sampler never waits on
// a client.
type Publisher struct {
	primary   PrimarySource
	secondary SecondarySource
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a publisher. Either source may be nil.
func New(primary PrimarySource, secondary SecondarySource, opts ...Option) *Publisher {
	p := &Publisher{
		primary:   primary,
		secondary: secondary,
		interval:  DefaultInterval,
		logger:    slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "publisher")
	return p
}

// Frame builds a frame from the current link state
func (p *Publisher) Frame(now time.Time) Frame {
	f := Frame{
		Version: FrameVersion,
		Time:    now.UnixMilli(),
	}
	if p.primary != nil {
		f.PrimaryConnected = p.primary.Running()
		if s, ok := p.primary.Snapshot(); ok {
			f.Primary = NewPrimaryFrame(s)
		}
	}
	if p.secondary != nil {
		f.SecondaryConnected = p.secondary.Running()
		if s, ok := p.secondary.Snapshot(); ok {
			f.Secondary = NewSecondaryFrame(s)
		}
		f.Stability = NewStabilityFrame(p.secondary.Stability())
	}
	return f
}

// Run publishes until ctx is cancelled, then disconnects all clients
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.publish(now)
		}
	}
}

func (p *Publisher) publish(now time.Time) {
	data, err := p.Frame(now).Encode()
	if err != nil {
		p.logger.Error("encode failed", "error", err)
		return
	}
	p.broadcast(data)
}

func (p *Publisher) broadcast(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.clients {
		select {
		case c.send <- data:
			p.metrics.frameSent()
		default:
			p.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr().String())
			p.removeLocked(c)
			p.metrics.clientDropped()
		}
	}
}

// Clients returns the number of connected clients
func (p *Publisher) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Handler upgrades requests to WebSocket and streams frames to them.
// Clients only receive; anything they send is discarded.
func (p *Publisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			p.logger.Debug("upgrade failed", "error", err)
			return
		}

		c := &client{
			conn: conn,
			send: make(chan []byte, clientBuffer),
		}
		p.add(c)
		go p.writePump(c)

		// current state right away, so clients don't wait a full interval
		if data, err := p.Frame(time.Now()).Encode(); err == nil {
			p.mu.Lock()
			if _, ok := p.clients[c]; ok {
				select {
				case c.send <- data:
				default:
				}
			}
			p.mu.Unlock()
		}

		p.readPump(c)
	})
}

func (p *Publisher) add(c *client) {
	p.mu.Lock()
	p.clients[c] = struct{}{}
	n := len(p.clients)
	p.mu.Unlock()

	p.metrics.setClients(n)
	p.logger.Info("client connected", "remote", c.conn.RemoteAddr().String(), "clients", n)
}

func (p *Publisher) remove(c *client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(c)
}

// removeLocked closes the client's queue; its write pump then closes the
// connection. Caller must hold p.mu.
func (p *Publisher) removeLocked(c *client) {
	if _, ok := p.clients[c]; !ok {
		return
	}
	delete(p.clients, c)
	close(c.send)
	p.metrics.setClients(len(p.clients))
}

func (p *Publisher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.clients {
		p.removeLocked(c)
	}
}

func (p *Publisher) writePump(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			p.logger.Debug("write failed", "error", err)
			p.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (p *Publisher) readPump(c *client) {
	defer p.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
