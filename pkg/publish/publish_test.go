// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/bissmon/pkg/link"
)

type fakePrimary struct {
	mu      sync.Mutex
	snap    link.PrimarySnapshot
	ok      bool
	running bool
}

func (f *fakePrimary) Snapshot() (link.PrimarySnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.ok
}

func (f *fakePrimary) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeSecondary struct {
	snap      link.SecondarySnapshot
	ok        bool
	stability link.StabilityState
}

func (f *fakeSecondary) Snapshot() (link.SecondarySnapshot, bool) { return f.snap, f.ok }
func (f *fakeSecondary) Stability() link.StabilityState           { return f.stability }
func (f *fakeSecondary) Running() bool                            { return true }

// ============================================================================
// Frames
// ============================================================================

func TestFrameNoDataIsAbsent(t *testing.T) {
	p := New(&fakePrimary{running: true}, &fakeSecondary{})
	data, err := p.Frame(time.UnixMilli(1234)).Encode()
	require.NoError(t, err)

	var raw map[int]interface{}
	require.NoError(t, cbor.Unmarshal(data, &raw))
	assert.NotContains(t, raw, 4, "primary without data must be absent")
	assert.NotContains(t, raw, 5, "secondary without data must be absent")
	assert.Contains(t, raw, 6)

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Nil(t, f.Primary)
	assert.Nil(t, f.Secondary)
	assert.True(t, f.PrimaryConnected)
	assert.Equal(t, "IDLE", f.Stability.Phase)
	assert.Equal(t, time.UnixMilli(1234), f.Timestamp())
}

func TestFrameZeroPositionIsPresent(t *testing.T) {
	p := New(&fakePrimary{ok: true}, &fakeSecondary{ok: true})
	data, err := p.Frame(time.Now()).Encode()
	require.NoError(t, err)

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	require.NotNil(t, f.Primary)
	require.NotNil(t, f.Secondary)
	assert.Zero(t, f.Primary.Position)
	assert.Zero(t, f.Secondary.Position)
	assert.Nil(t, f.Primary.CRC)
	assert.Nil(t, f.Primary.LocalCRCMismatch)
}

func TestFrameCarriesSnapshots(t *testing.T) {
	primary := &fakePrimary{ok: true, snap: link.PrimarySnapshot{
		Position: 0x123456, WarningBit: 1, CRCFail: 1,
		CRC: 17, HasCRC: true, LocalCRCChecked: true, LocalCRCMismatch: true,
	}}
	secondary := &fakeSecondary{
		ok:        true,
		snap:      link.SecondarySnapshot{Position: 460, Raw: 78000},
		stability: link.StabilityState{Phase: link.PhaseError, Message: "write failed"},
	}

	data, err := New(primary, secondary).Frame(time.Now()).Encode()
	require.NoError(t, err)
	f, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, int64(0x123456), f.Primary.Position)
	assert.Equal(t, int64(1), f.Primary.WarningBit)
	assert.Equal(t, int64(1), f.Primary.CRCFail)
	require.NotNil(t, f.Primary.CRC)
	assert.Equal(t, int64(17), *f.Primary.CRC)
	require.NotNil(t, f.Primary.LocalCRCMismatch)
	assert.True(t, *f.Primary.LocalCRCMismatch)

	assert.Equal(t, int64(460), f.Secondary.Position)
	assert.Equal(t, int64(78000), f.Secondary.Raw)
	assert.Equal(t, "ERROR", f.Stability.Phase)
	assert.Equal(t, "write failed", f.Stability.Message)
}

func TestFrameNilSources(t *testing.T) {
	f := New(nil, nil).Frame(time.Now())
	assert.False(t, f.PrimaryConnected)
	assert.Nil(t, f.Stability)
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0xff, 0x00})
	assert.Error(t, err)

	data, err := cbor.Marshal(map[int]int{0: 99})
	require.NoError(t, err)
	_, err = DecodeFrame(data)
	assert.ErrorContains(t, err, "unsupported frame version")
}

// ============================================================================
// Publisher
// ============================================================================

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPublisherStreamsFrames(t *testing.T) {
	primary := &fakePrimary{ok: true, running: true, snap: link.PrimarySnapshot{Position: 7}}
	p := New(primary, nil, WithInterval(10*time.Millisecond))

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 3; i++ {
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, mt)

		f, err := DecodeFrame(data)
		require.NoError(t, err)
		require.NotNil(t, f.Primary)
		assert.Equal(t, int64(7), f.Primary.Position)
	}
	assert.Equal(t, 1, p.Clients())
}

func TestPublisherRemovesClosedClient(t *testing.T) {
	p := New(nil, nil, WithInterval(10*time.Millisecond))
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublisherRunClosesClients(t *testing.T) {
	p := New(nil, nil, WithInterval(10*time.Millisecond))
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return p.Clients() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, p.Clients())
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := upgrader.Upgrade(w, r, nil); err == nil {
			conns <- c
		}
	}))
	defer srv.Close()

	cc, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer cc.Close()
	serverConn := <-conns
	defer serverConn.Close()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	p := New(nil, nil, WithMetrics(m))

	// unbuffered and never drained: the first broadcast cannot be queued
	c := &client{conn: serverConn, send: make(chan []byte)}
	p.mu.Lock()
	p.clients[c] = struct{}{}
	p.mu.Unlock()

	p.broadcast([]byte{0x01})

	assert.Zero(t, p.Clients())
	_, open := <-c.send
	assert.False(t, open)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientsDropped))
}
