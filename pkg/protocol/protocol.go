// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package protocol defines the JSON frames exchanged between the session
// channel and the server hub, and the entity shapes they carry.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Frame Types
// =============================================================================

// MessageType defines the type of frame and which payload field is set.
type MessageType string

const (
	// client -> server
	TypeJoinSession MessageType = "join_session" // SessionID

	// server -> client
	TypeSessionData MessageType = "session_data" // Session, Messages, Topics, ActionItems
	TypeError       MessageType = "error"        // Error

	// relayed both ways
	TypeNewMessage        MessageType = "new_message"         // Message
	TypeNewTopic          MessageType = "new_topic"           // Topic
	TypeUpdatedTopic      MessageType = "updated_topic"       // Topic
	TypeNewActionItem     MessageType = "new_action_item"     // ActionItem
	TypeUpdatedActionItem MessageType = "updated_action_item" // ActionItem

	// never on the wire; raised locally by the session channel
	TypeConnectionStatus MessageType = "connection_status" // Connected
)

// Known reports whether t is a frame type either end acts on.
func (t MessageType) Known() bool {
	switch t {
	case TypeJoinSession, TypeSessionData, TypeError, TypeNewMessage, TypeNewTopic,
		TypeUpdatedTopic, TypeNewActionItem, TypeUpdatedActionItem, TypeConnectionStatus:
		return true
	}
	return false
}

// Frame is the flat envelope `{type, ...payload}`.
type Frame struct {
	Type        MessageType  `json:"type"`
	SessionID   int64        `json:"sessionId,omitempty"`
	Session     *Session     `json:"session,omitempty"`
	Message     *Message     `json:"message,omitempty"`
	Messages    []Message    `json:"messages,omitempty"`
	Topic       *Topic       `json:"topic,omitempty"`
	Topics      []Topic      `json:"topics,omitempty"`
	ActionItem  *ActionItem  `json:"actionItem,omitempty"`
	ActionItems []ActionItem `json:"actionItems,omitempty"`
	Connected   *bool        `json:"connected,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Decode parses one frame. A frame without a type is malformed.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// =============================================================================
// Entities
// =============================================================================

type SpeakerType string

const (
	SpeakerSelf  SpeakerType = "self"
	SpeakerOther SpeakerType = "other"
)

// UnmarshalJSON accepts "user" as an alias of self.
func (s *SpeakerType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch strings.ToLower(raw) {
	case "self", "user":
		*s = SpeakerSelf
	case "other":
		*s = SpeakerOther
	case "":
		*s = ""
	default:
		return fmt.Errorf("unknown speaker type %q", raw)
	}
	return nil
}

type Session struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one transcribed utterance. ClientRef is the token a client
// attaches before the server assigns the canonical id; servers echo it back.
type Message struct {
	ID           int64       `json:"id"`
	SessionID    int64       `json:"sessionId"`
	Text         string      `json:"text"`
	SpeakerType  SpeakerType `json:"speakerType"`
	SpeakerName  *string     `json:"speakerName,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	IsActionItem bool        `json:"isActionItem"`
	ClientRef    string      `json:"clientRef,omitempty"`
}

type Topic struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"sessionId"`
	Label     string `json:"label"`
	Weight    int    `json:"weight"`
}

// TopicKey is the form two labels share when they name the same topic.
func TopicKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

type ActionItem struct {
	ID              int64  `json:"id"`
	SessionID       int64  `json:"sessionId"`
	SourceMessageID *int64 `json:"messageId,omitempty"`
	Text            string `json:"text"`
	Completed       bool   `json:"completed"`
}

// Snapshot is everything a newly joined observer needs to catch up.
type Snapshot struct {
	Session     Session
	Messages    []Message
	Topics      []Topic
	ActionItems []ActionItem
}

// Frame wraps the snapshot as a session_data frame.
func (s Snapshot) Frame() Frame {
	session := s.Session
	return Frame{
		Type:        TypeSessionData,
		SessionID:   session.ID,
		Session:     &session,
		Messages:    s.Messages,
		Topics:      s.Topics,
		ActionItems: s.ActionItems,
	}
}
