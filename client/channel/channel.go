// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package client_channel keeps one live connection to the conversation
// server, dispatches incoming frames by type and reconnects a bounded number
// of times after the connection drops.
package client_channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/observer"
	"github.com/intelliconvo/pkg/protocol"
)

var ErrChannelClosed = errors.New("session channel closed")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

func DefaultConfig(url string) Config {
	return Config{URL: url, MaxReconnectAttempts: 5, ReconnectDelay: 2 * time.Second}
}

type Channel struct {
	cfg    Config
	dialer Dialer
	clock  clock.Clock
	logger commons.Logger
	bus    *observer.Bus[protocol.MessageType, protocol.Frame]

	mu       sync.Mutex
	state    State
	conn     Conn
	attempts int
	// gen invalidates a superseded dial, read loop or pending reconnect
	gen           uint64
	stopReconnect func() bool
	closed        bool

	writeMu sync.Mutex // Separate mutex for write operations
}

func New(cfg Config, dialer Dialer, clk clock.Clock, logger commons.Logger) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		clock:  clk,
		logger: logger,
		bus:    observer.NewAsync[protocol.MessageType, protocol.Frame](),
	}
}

// Subscribe registers fn for one frame type. connection_status frames are
// raised locally on every transition to connected or disconnected.
func (c *Channel) Subscribe(t protocol.MessageType, fn func(protocol.Frame)) (dispose func()) {
	return c.bus.Subscribe(t, fn)
}

// Flush waits for delivery of every frame dispatched so far. Not for use
// inside a handler.
func (c *Channel) Flush() {
	c.bus.Flush()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// Attempts is the number of reconnects since the last successful open.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect opens the transport. It resets the reconnect budget and cancels a
// pending reconnect. Connecting while already connected is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.attempts = 0
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

func (c *Channel) dial(ctx context.Context, gen uint64) error {
	c.logger.Debugf("channel: dialing %s", c.cfg.URL)
	conn, err := c.dialer.Dial(ctx, c.cfg.URL)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrChannelClosed
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warnf("channel: connect to %s failed: %v", c.cfg.URL, err)
		c.disconnected(gen, err)
		return convo_errors.NewTransportDisconnected(err)
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.bus.Publish(protocol.TypeConnectionStatus, statusFrame(true, nil))
	c.mu.Unlock()

	c.logger.Infof("channel: connected to %s", c.cfg.URL)
	go c.readLoop(conn, gen)
	return nil
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.disconnected(gen, err)
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warnf("channel: %v", convo_errors.NewMalformedMessage(err))
			continue
		}
		if !frame.Type.Known() || frame.Type == protocol.TypeConnectionStatus {
			c.logger.Debugf("channel: ignoring frame type %q", frame.Type)
			continue
		}

		c.mu.Lock()
		current := gen == c.gen
		if current {
			c.bus.Publish(frame.Type, frame)
		}
		c.mu.Unlock()
		if !current {
			return
		}
	}
}

// disconnected moves to disconnected, notifies observers and schedules a
// reconnect while attempts remain.
func (c *Channel) disconnected(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.bus.Publish(protocol.TypeConnectionStatus, statusFrame(false, cause))

	if c.attempts < c.cfg.MaxReconnectAttempts {
		c.attempts++
		c.gen++
		next := c.gen
		attempt := c.attempts
		c.stopReconnect = c.clock.AfterFunc(c.cfg.ReconnectDelay, func() { c.reconnect(next) })
		c.logger.Infof("channel: reconnect %d/%d in %s", attempt, c.cfg.MaxReconnectAttempts, c.cfg.ReconnectDelay)
	} else {
		c.logger.Warnf("channel: giving up after %d reconnect attempts", c.attempts)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopReconnect = nil
	c.state = StateConnecting
	c.mu.Unlock()

	c.dial(context.Background(), gen)
}

// Send writes one frame of type t. It returns false when not connected or
// when the write fails; nothing is queued.
func (c *Channel) Send(t protocol.MessageType, frame protocol.Frame) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	frame.Type = t
	data, err := protocol.Encode(frame)
	if err != nil {
		c.logger.Errorf("channel: failed to marshal %s: %v", t, err)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		c.logger.Warnf("channel: failed to write %s: %v", t, err)
		return false
	}
	c.logger.Debugf("channel: sent %s", t)
	return true
}

// JoinSession asks the server to relay sessionID to this channel.
func (c *Channel) JoinSession(sessionID int64) bool {
	return c.Send(protocol.TypeJoinSession, protocol.Frame{SessionID: sessionID})
}

// Close stops reconnecting and closes the transport. Observers receive a
// final disconnected status.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	conn := c.conn
	wasConnected := c.state == StateConnected
	c.conn = nil
	c.state = StateDisconnected
	if wasConnected {
		c.bus.Publish(protocol.TypeConnectionStatus, statusFrame(false, nil))
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.bus.Close()
}

func statusFrame(connected bool, cause error) protocol.Frame {
	f := protocol.Frame{Type: protocol.TypeConnectionStatus, Connected: &connected}
	if cause != nil {
		f.Error = cause.Error()
	}
	return f
}
