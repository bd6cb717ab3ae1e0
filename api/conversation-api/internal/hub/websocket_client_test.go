package internal_hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startEchoServer(t *testing.T, frames chan<- protocol.Frame, clients chan<- *WebsocketClient) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewWebsocketClient(conn, 4, commons.NewNopLogger())
		go client.WritePump()
		clients <- client
		client.ReadFrames(context.Background(), 1<<16, func(f protocol.Frame) { frames <- f })
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketClient_SendAndReceive(t *testing.T) {
	frames := make(chan protocol.Frame, 4)
	clients := make(chan *WebsocketClient, 1)
	srv := startEchoServer(t, frames, clients)
	peer := dial(t, srv)
	client := <-clients

	require.NoError(t, client.Send(protocol.Frame{Type: protocol.TypeNewTopic, Topic: &protocol.Topic{ID: 3, Label: "AWS", Weight: 3}}))
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	got, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeNewTopic, got.Type)
	assert.Equal(t, "AWS", got.Topic.Label)

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_session","sessionId":42}`)))
	select {
	case f := <-frames:
		assert.Equal(t, protocol.TypeJoinSession, f.Type, "malformed frame is skipped, connection stays open")
		assert.Equal(t, int64(42), f.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestWebsocketClient_ClosedAfterPeerLeaves(t *testing.T) {
	clients := make(chan *WebsocketClient, 1)
	srv := startEchoServer(t, make(chan protocol.Frame, 1), clients)
	peer := dial(t, srv)
	client := <-clients
	assert.True(t, client.Open())

	peer.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	peer.Close()

	assert.Eventually(t, func() bool { return !client.Open() }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, client.Send(protocol.Frame{Type: protocol.TypeNewMessage}), ErrClientClosed)
	client.Close()
}
