// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var ErrClientClosed = errors.New("websocket client closed")
var ErrSendBufferFull = errors.New("websocket send buffer full")

// ============================================================================
// WebsocketClient
// ============================================================================

// WebsocketClient owns the outbound queue of one connection. A single writer
// goroutine drains it, so per-channel send order is preserved and Send never
// blocks on the network.
type WebsocketClient struct {
	id     string
	conn   *websocket.Conn
	logger commons.Logger

	mu     sync.Mutex
	closed bool
	sendCh chan []byte
	done   chan struct{}
}

func NewWebsocketClient(conn *websocket.Conn, sendBuffer int, logger commons.Logger) *WebsocketClient {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &WebsocketClient{
		id:     uuid.NewString(),
		conn:   conn,
		logger: logger,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *WebsocketClient) ID() string { return c.id }

func (c *WebsocketClient) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues frame for the writer. A full queue means the peer stopped
// reading; the frame is dropped and the error reported.
func (c *WebsocketClient) Send(frame protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ReadFrames blocks reading frames and hands each decoded one to onFrame.
// Undecodable frames are logged and skipped. It returns when the connection
// fails or ctx is done, and closes the client on the way out.
func (c *WebsocketClient) ReadFrames(ctx context.Context, readLimit int64, onFrame func(protocol.Frame)) error {
	defer c.Close()
	if readLimit > 0 {
		c.conn.SetReadLimit(readLimit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("read frame: %w", err)
			}
			return nil
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warnf("channel %s: dropping malformed frame: %v", c.id, err)
			continue
		}
		onFrame(frame)
	}
}

// WritePump drains the queue until Close. Run it on its own goroutine.
func (c *WebsocketClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debugf("channel %s: write failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close is idempotent.
func (c *WebsocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
