package client_channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

// =============================================================================
// Fakes
// =============================================================================

var errDropped = errors.New("connection dropped")

type fakeConn struct {
	inbox  chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		return nil, errDropped
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return errDropped
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type statusLog struct {
	mu     sync.Mutex
	states []bool
}

func (s *statusLog) record(f protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, *f.Connected)
}

func (s *statusLog) get() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.states...)
}

func newTestChannel(t *testing.T) (*Channel, *fakeDialer, *clock.Mock, *statusLog) {
	t.Helper()
	dialer := &fakeDialer{}
	clk := clock.NewMock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	ch := New(DefaultConfig("ws://test/ws"), dialer, clk, commons.NewNopLogger())
	log := &statusLog{}
	ch.Subscribe(protocol.TypeConnectionStatus, log.record)
	t.Cleanup(ch.Close)
	return ch, dialer, clk, log
}

// =============================================================================
// Reconnect
// =============================================================================

func TestChannel_ReconnectsFiveTimesThenGivesUp(t *testing.T) {
	ch, dialer, clk, log := newTestChannel(t)

	require.NoError(t, ch.Connect(context.Background()))
	require.True(t, ch.Connected())

	dialer.setFail(true)
	dialer.last().Close()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, ch.Attempts())

	for i := 2; i <= 5; i++ {
		clk.Advance(2 * time.Second)
		assert.Equal(t, i, ch.Attempts())
		assert.Equal(t, 1, clk.Pending())
	}
	clk.Advance(2 * time.Second)

	// one initial open plus five reconnects
	assert.Equal(t, 6, dialer.count())
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, StateDisconnected, ch.State())

	clk.Advance(time.Minute)
	assert.Equal(t, 6, dialer.count())

	ch.Flush()
	states := log.get()
	require.NotEmpty(t, states)
	assert.True(t, states[0])
	assert.False(t, states[len(states)-1])
}

func TestChannel_SuccessfulReconnectResetsAttempts(t *testing.T) {
	ch, dialer, clk, log := newTestChannel(t)
	require.NoError(t, ch.Connect(context.Background()))

	dialer.setFail(true)
	dialer.last().Close()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, ch.Attempts())

	dialer.setFail(false)
	clk.Advance(2 * time.Second)
	assert.True(t, ch.Connected())
	assert.Equal(t, 0, ch.Attempts())
	assert.Equal(t, 0, clk.Pending())

	ch.Flush()
	assert.Equal(t, []bool{true, false, false, true}, log.get())
}

func TestChannel_ExplicitConnectCancelsPendingReconnect(t *testing.T) {
	ch, dialer, clk, _ := newTestChannel(t)
	require.NoError(t, ch.Connect(context.Background()))

	dialer.last().Close()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, ch.Connect(context.Background()))
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, 0, ch.Attempts())
	assert.Equal(t, 2, dialer.count())

	clk.Advance(10 * time.Second)
	assert.Equal(t, 2, dialer.count())
}

func TestChannel_CloseStopsReconnecting(t *testing.T) {
	ch, dialer, clk, _ := newTestChannel(t)
	require.NoError(t, ch.Connect(context.Background()))

	dialer.last().Close()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)

	ch.Close()
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(10 * time.Second)
	assert.Equal(t, 1, dialer.count())
	assert.ErrorIs(t, ch.Connect(context.Background()), ErrChannelClosed)
	ch.Close()
}

func TestChannel_ZeroReconnectBudget(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	clk := clock.NewMock(time.Now())
	cfg := DefaultConfig("ws://test/ws")
	cfg.MaxReconnectAttempts = 0
	ch := New(cfg, dialer, clk, commons.NewNopLogger())
	defer ch.Close()

	assert.Error(t, ch.Connect(context.Background()))
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, 1, dialer.count())
}

// =============================================================================
// Send / Receive
// =============================================================================

func TestChannel_SendWhileDisconnected(t *testing.T) {
	ch, _, _, _ := newTestChannel(t)
	assert.False(t, ch.Send(protocol.TypeNewMessage, protocol.Frame{Message: &protocol.Message{Text: "hi"}}))
	assert.False(t, ch.JoinSession(1))
}

func TestChannel_SendEncodesType(t *testing.T) {
	ch, dialer, _, _ := newTestChannel(t)
	require.NoError(t, ch.Connect(context.Background()))

	require.True(t, ch.JoinSession(42))
	writes := dialer.last().written()
	require.Len(t, writes, 1)

	frame, err := protocol.Decode(writes[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeJoinSession, frame.Type)
	assert.Equal(t, int64(42), frame.SessionID)
}

func TestChannel_DispatchesByType(t *testing.T) {
	ch, dialer, _, _ := newTestChannel(t)

	var mu sync.Mutex
	var got []string
	ch.Subscribe(protocol.TypeNewMessage, func(f protocol.Frame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Message.Text)
	})
	ch.Subscribe(protocol.TypeNewTopic, func(f protocol.Frame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "topic:"+f.Topic.Label)
	})
	require.NoError(t, ch.Connect(context.Background()))

	conn := dialer.last()
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":`},
		{"missing type", `{"message":{"text":"x"}}`},
		{"unknown type", `{"type":"server_reboot"}`},
		{"spoofed status", `{"type":"connection_status","connected":false}`},
		{"message", `{"type":"new_message","message":{"id":1,"text":"hello"}}`},
		{"topic", `{"type":"new_topic","topic":{"id":2,"label":"pricing"}}`},
	}
	for _, tt := range tests {
		conn.inbox <- []byte(tt.raw)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"hello", "topic:pricing"}, got)
	assert.True(t, ch.Connected())
}

// =============================================================================
// Websocket
// =============================================================================

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server string
		path   string
		want   string
		err    bool
	}{
		{"http://localhost:9090", "/ws", "ws://localhost:9090/ws", false},
		{"https://convo.example.com/", "", "wss://convo.example.com/ws", false},
		{"ws://host/base", "/ws", "ws://host/base/ws", false},
		{"ftp://host", "/ws", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := WebsocketURL(tt.server, tt.path)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebsocketDialer_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			return
		}
		reply, _ := protocol.Encode(protocol.Frame{
			Type:    protocol.TypeSessionData,
			Session: &protocol.Session{ID: frame.SessionID, Title: "standup"},
		})
		conn.WriteMessage(websocket.TextMessage, reply)
		conn.ReadMessage()
	}))
	defer srv.Close()

	url, err := WebsocketURL(srv.URL, "/ws")
	require.NoError(t, err)

	ch := New(DefaultConfig(url), WebsocketDialer{}, clock.New(), commons.NewNopLogger())
	defer ch.Close()

	snapshots := make(chan protocol.Frame, 1)
	ch.Subscribe(protocol.TypeSessionData, func(f protocol.Frame) { snapshots <- f })

	require.NoError(t, ch.Connect(context.Background()))
	require.True(t, ch.JoinSession(7))

	select {
	case f := <-snapshots:
		require.NotNil(t, f.Session)
		assert.Equal(t, int64(7), f.Session.ID)
		assert.Equal(t, "standup", f.Session.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no session_data received")
	}
}
