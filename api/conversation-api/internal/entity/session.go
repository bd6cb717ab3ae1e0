// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_entity

import (
	"time"

	gorm_model "github.com/intelliconvo/pkg/models/gorm"
	"github.com/intelliconvo/pkg/protocol"
)

type Session struct {
	gorm_model.Audited
	Title   string `json:"title" gorm:"size:255;not null"`
	Summary string `json:"summary" gorm:"type:text"`
}

func (s *Session) Wire() protocol.Session {
	return protocol.Session{
		ID:        s.Id,
		Title:     s.Title,
		Summary:   s.Summary,
		CreatedAt: s.CreatedDate,
		UpdatedAt: s.UpdatedDate,
	}
}

type Message struct {
	gorm_model.Audited
	SessionId    int64     `json:"sessionId" gorm:"not null;index"`
	Text         string    `json:"text" gorm:"type:text;not null"`
	SpeakerType  string    `json:"speakerType" gorm:"size:20;not null"`
	SpeakerName  *string   `json:"speakerName" gorm:"size:255"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null;index"`
	IsActionItem bool      `json:"isActionItem" gorm:"not null;default:false"`
	ClientRef    string    `json:"clientRef" gorm:"size:64;index"`
}

func NewMessage(m protocol.Message) *Message {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	speaker := m.SpeakerType
	if speaker == "" {
		speaker = protocol.SpeakerSelf
	}
	return &Message{
		SessionId:    m.SessionID,
		Text:         m.Text,
		SpeakerType:  string(speaker),
		SpeakerName:  m.SpeakerName,
		Timestamp:    ts,
		IsActionItem: m.IsActionItem,
		ClientRef:    m.ClientRef,
	}
}

func (m *Message) Wire() protocol.Message {
	return protocol.Message{
		ID:           m.Id,
		SessionID:    m.SessionId,
		Text:         m.Text,
		SpeakerType:  protocol.SpeakerType(m.SpeakerType),
		SpeakerName:  m.SpeakerName,
		Timestamp:    m.Timestamp,
		IsActionItem: m.IsActionItem,
		ClientRef:    m.ClientRef,
	}
}

// Topic is unique per (session, LabelKey); repeated detections add weight.
// Label keeps the spelling of the first detection.
type Topic struct {
	gorm_model.Audited
	SessionId int64  `json:"sessionId" gorm:"not null;uniqueIndex:idx_topic_session_label_key"`
	Label     string `json:"label" gorm:"size:255;not null"`
	LabelKey  string `json:"-" gorm:"size:255;not null;default:'';uniqueIndex:idx_topic_session_label_key"`
	Weight    int    `json:"weight" gorm:"not null;default:1"`
}

func (t *Topic) Wire() protocol.Topic {
	return protocol.Topic{ID: t.Id, SessionID: t.SessionId, Label: t.Label, Weight: t.Weight}
}

type ActionItem struct {
	gorm_model.Audited
	SessionId int64  `json:"sessionId" gorm:"not null;index"`
	MessageId *int64 `json:"messageId"`
	Text      string `json:"text" gorm:"type:text;not null"`
	Completed bool   `json:"completed" gorm:"not null;default:false"`
}

func (a *ActionItem) Wire() protocol.ActionItem {
	return protocol.ActionItem{
		ID:              a.Id,
		SessionID:       a.SessionId,
		SourceMessageID: a.MessageId,
		Text:            a.Text,
		Completed:       a.Completed,
	}
}

func WireMessages(in []*Message) []protocol.Message {
	out := make([]protocol.Message, 0, len(in))
	for _, m := range in {
		out = append(out, m.Wire())
	}
	return out
}

func WireTopics(in []*Topic) []protocol.Topic {
	out := make([]protocol.Topic, 0, len(in))
	for _, t := range in {
		out = append(out, t.Wire())
	}
	return out
}

func WireActionItems(in []*ActionItem) []protocol.ActionItem {
	out := make([]protocol.ActionItem, 0, len(in))
	for _, a := range in {
		out = append(out, a.Wire())
	}
	return out
}
