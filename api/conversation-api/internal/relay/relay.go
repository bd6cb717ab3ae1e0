// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_relay fans hub broadcasts out to every server instance
// through redis pub/sub, so channels of one session may sit on different
// processes.
package internal_relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

// Sink delivers a relayed frame to local channels only.
type Sink interface {
	Deliver(sessionID int64, frame protocol.Frame) int
}

type envelope struct {
	Origin    string         `json:"origin"`
	SessionID int64          `json:"sessionId"`
	Frame     protocol.Frame `json:"frame"`
}

type Relay struct {
	client *redis.Client
	prefix string
	origin string
	logger commons.Logger
}

func NewRelay(client *redis.Client, prefix string, logger commons.Logger) *Relay {
	return &Relay{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Origin identifies this process on the wire.
func (r *Relay) Origin() string { return r.origin }

func (r *Relay) channel(sessionID int64) string {
	return r.prefix + strconv.FormatInt(sessionID, 10)
}

// Publish implements internal_hub.Publisher.
func (r *Relay) Publish(ctx context.Context, sessionID int64, frame protocol.Frame) error {
	payload, err := json.Marshal(envelope{Origin: r.origin, SessionID: sessionID, Frame: frame})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(sessionID), string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel(sessionID), err)
	}
	return nil
}

// Run subscribes to every session channel and hands frames published by
// other processes to sink. It returns when ctx is done.
func (r *Relay) Run(ctx context.Context, sink Sink) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s*: %w", r.prefix, err)
	}
	r.logger.Infof("relay: subscribed to %s* as %s", r.prefix, r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg, sink)
		}
	}
}

func (r *Relay) handle(msg *redis.Message, sink Sink) {
	if !strings.HasPrefix(msg.Channel, r.prefix) {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warnf("relay: dropping malformed payload on %s: %v", msg.Channel, err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	n := sink.Deliver(env.SessionID, env.Frame)
	r.logger.Debugf("relay: %s for session %d delivered to %d channels", env.Frame.Type, env.SessionID, n)
}
