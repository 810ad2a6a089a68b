// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport reaches a serial port through a WebSocket bridge.
// Each message carries raw bytes from the port; writes are sent as
// binary messages.
//
// gorilla/websocket connections cannot be read again after a read deadline
// expires, so a pump goroutine owns the read side and ReadLine waits on it.
type WebSocketTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	buf         lineBuffer

	messages chan []byte
	done     chan struct{}

	mu      sync.Mutex
	readErr error
	closed  bool
}

// OpenWebSocket dials a WebSocket bridge with optional HTTP Basic auth
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool, readTimeout time.Duration) (*WebSocketTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketTransport(conn, readTimeout), nil
}

func newWebSocketTransport(conn *websocket.Conn, readTimeout time.Duration) *WebSocketTransport {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	w := &WebSocketTransport{
		conn:        conn,
		readTimeout: readTimeout,
		messages:    make(chan []byte, 64),
		done:        make(chan struct{}),
	}
	go w.pump()
	return w
}

// pump forwards data messages until the connection fails
func (w *WebSocketTransport) pump() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}

		// Control frames are handled by gorilla; skip anything else
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

// receive moves one message into the line buffer, waiting up to timeout
func (w *WebSocketTransport) receive(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return w.closedErr()
		}
		w.buf.append(data)
	case <-timer.C:
	}
	return nil
}

func (w *WebSocketTransport) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil && !w.closed {
		return fmt.Errorf("%w: %v", ErrClosed, w.readErr)
	}
	return ErrClosed
}

// ReadLine implements Transport
func (w *WebSocketTransport) ReadLine() (string, error) {
	deadline := time.Now().Add(w.readTimeout)
	for {
		if line, ok := w.buf.next(); ok {
			return line, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if err := w.receive(remaining); err != nil {
			return "", err
		}
	}
}

// Write implements Transport
func (w *WebSocketTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Buffered implements Transport
func (w *WebSocketTransport) Buffered() (int, error) {
	for {
		select {
		case data, ok := <-w.messages:
			if !ok {
				return w.buf.len(), w.closedErr()
			}
			w.buf.append(data)
		default:
			return w.buf.len(), nil
		}
	}
}

// ResetInput implements Transport
func (w *WebSocketTransport) ResetInput() error {
	if _, err := w.Buffered(); err != nil {
		w.buf.reset()
		return err
	}
	w.buf.reset()
	return nil
}

// Close implements Transport
func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return w.conn.Close()
}
