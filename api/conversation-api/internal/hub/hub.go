// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_hub tracks which session each connected channel joined
// and relays session scoped frames to exactly those channels.
package internal_hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

// Client is one connected channel as seen by the hub.
type Client interface {
	ID() string
	// Send must not block on the network.
	Send(frame protocol.Frame) error
	Open() bool
	Close()
}

// Snapshotter reads the durable state of one session.
type Snapshotter interface {
	Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error)
}

// Publisher forwards broadcasts to hubs running in other processes.
type Publisher interface {
	Publish(ctx context.Context, sessionID int64, frame protocol.Frame) error
}

type registration struct {
	client    Client
	sessionID int64 // 0 = not joined
}

type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*registration
	snapshots Snapshotter
	publisher Publisher
	logger    commons.Logger
}

func NewHub(snapshots Snapshotter, logger commons.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*registration),
		snapshots: snapshots,
		logger:    logger,
	}
}

// WithPublisher makes Broadcast also forward every frame through p.
func (h *Hub) WithPublisher(p Publisher) *Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
	return h
}

// RegisterChannel adds c unassigned. Registering twice keeps the assignment.
func (h *Hub) RegisterChannel(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; ok {
		return
	}
	h.clients[c.ID()] = &registration{client: c}
	h.logger.Debugf("hub: registered channel %s, total=%d", c.ID(), len(h.clients))
}

// UnregisterChannel removes c regardless of its assignment.
func (h *Hub) UnregisterChannel(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reg, ok := h.clients[c.ID()]; ok && reg.client == c {
		delete(h.clients, c.ID())
		h.logger.Debugf("hub: unregistered channel %s (session=%d)", c.ID(), reg.sessionID)
	}
}

// JoinSession assigns c to sessionID, replacing any prior assignment, and
// pushes a session_data snapshot to c only.
func (h *Hub) JoinSession(ctx context.Context, c Client, sessionID int64) error {
	if sessionID <= 0 {
		return fmt.Errorf("join session: invalid session id %d", sessionID)
	}
	h.mu.Lock()
	reg, ok := h.clients[c.ID()]
	if !ok {
		reg = &registration{client: c}
		h.clients[c.ID()] = reg
	}
	previous := reg.sessionID
	reg.sessionID = sessionID
	h.mu.Unlock()

	if previous != sessionID {
		h.logger.Infof("hub: channel %s joined session %d (previous=%d)", c.ID(), sessionID, previous)
	}

	snapshot, err := h.snapshots.Snapshot(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("join session %d: %w", sessionID, err)
	}
	if err := c.Send(snapshot.Frame()); err != nil {
		return fmt.Errorf("join session %d: send snapshot: %w", sessionID, err)
	}
	return nil
}

// Broadcast relays frame to every open channel joined to sessionID, then
// forwards it to the publisher if one is set. It returns the local delivery
// count.
func (h *Hub) Broadcast(ctx context.Context, sessionID int64, frame protocol.Frame) int {
	delivered := h.Deliver(sessionID, frame)

	h.mu.RLock()
	publisher := h.publisher
	h.mu.RUnlock()
	if publisher != nil {
		if err := publisher.Publish(ctx, sessionID, frame); err != nil {
			h.logger.Warnf("hub: publish %s for session %d failed: %v", frame.Type, sessionID, err)
		}
	}
	return delivered
}

// Deliver is Broadcast without forwarding; used for frames that arrive from
// other processes.
func (h *Hub) Deliver(sessionID int64, frame protocol.Frame) int {
	h.mu.RLock()
	targets := make([]Client, 0, 4)
	for _, reg := range h.clients {
		if reg.sessionID == sessionID {
			targets = append(targets, reg.client)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var stale []Client
	for _, c := range targets {
		if !c.Open() {
			stale = append(stale, c)
			continue
		}
		if err := c.Send(frame); err != nil {
			h.logger.Warnf("hub: send %s to channel %s failed: %v", frame.Type, c.ID(), err)
			if !c.Open() {
				stale = append(stale, c)
			}
			continue
		}
		delivered++
	}
	for _, c := range stale {
		h.UnregisterChannel(c)
	}
	return delivered
}

// CloseAll closes and unregisters every channel. Returns how many were closed.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	targets := make([]Client, 0, len(h.clients))
	for id, reg := range h.clients {
		targets = append(targets, reg.client)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Close()
	}
	if len(targets) > 0 {
		h.logger.Infof("hub: closed %d channels", len(targets))
	}
	return len(targets)
}

// SessionOf reports the session c joined, 0 when unassigned.
func (h *Hub) SessionOf(c Client) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.clients[c.ID()]
	if !ok {
		return 0, false
	}
	return reg.sessionID, true
}

// Stats returns the number of registered channels per joined session; key 0
// counts unassigned channels.
func (h *Hub) Stats() map[int64]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[int64]int)
	for _, reg := range h.clients {
		out[reg.sessionID]++
	}
	return out
}
