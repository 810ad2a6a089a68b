// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/bissmon/pkg/transport"
)

// fakeTransport is an in-memory device. Lines queued with push are returned
// by ReadLine; reply, when set, produces the device's answer to each write.
type fakeTransport struct {
	mu       sync.Mutex
	lines    []string
	writes   []string
	reply    func(cmd string) []string
	writeErr error
	resets   int
	closed   bool
}

func (f *fakeTransport) push(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, lines...)
}

func (f *fakeTransport) ReadLine() (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", transport.ErrClosed
	}
	if len(f.lines) > 0 {
		line := f.lines[0]
		f.lines = f.lines[1:]
		f.mu.Unlock()
		return line, nil
	}
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)
	return "", transport.ErrTimeout
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, transport.ErrClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cmd := string(p)
	f.writes = append(f.writes, cmd)
	if f.reply != nil {
		f.lines = append(f.lines, f.reply(strings.TrimSuffix(cmd, CommandTerminator))...)
	}
	return len(p), nil
}

func (f *fakeTransport) Buffered() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, line := range f.lines {
		n += len(line) + 1
	}
	return n, nil
}

func (f *fakeTransport) ResetInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.lines = nil
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeTransport) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// blockingTransport never produces data; ReadLine blocks until Close
type blockingTransport struct {
	once   sync.Once
	closed chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{closed: make(chan struct{})}
}

func (b *blockingTransport) ReadLine() (string, error) {
	<-b.closed
	return "", transport.ErrClosed
}

func (b *blockingTransport) Write(p []byte) (int, error) { return len(p), nil }
func (b *blockingTransport) Buffered() (int, error)      { return 0, nil }
func (b *blockingTransport) ResetInput() error           { return nil }

func (b *blockingTransport) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// openerFor returns an opener that always yields tr
func openerFor(tr transport.Transport) transport.Opener {
	return func(string, int, time.Duration) (transport.Transport, error) {
		return tr, nil
	}
}

// fastSecondaryConfig shrinks every delay so loops cycle quickly
func fastSecondaryConfig() SecondaryConfig {
	cfg := DefaultSecondaryConfig()
	cfg.SettleDelay = time.Millisecond
	cfg.ResponseWindow = 20 * time.Millisecond
	cfg.ReplyPollInterval = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.ErrorBackoff = 5 * time.Millisecond
	cfg.StabilityDwell = 50 * time.Millisecond
	cfg.JoinTimeout = 200 * time.Millisecond
	return cfg
}
