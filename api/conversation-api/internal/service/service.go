// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_service

import (
	"context"
	"fmt"
	"strings"

	internal_entity "github.com/intelliconvo/api/conversation-api/internal/entity"
	internal_storage "github.com/intelliconvo/api/conversation-api/internal/storage"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
	"github.com/intelliconvo/pkg/utils"
)

// Broadcaster relays a stored change to every channel of a session.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID int64, frame protocol.Frame) int
}

// ConversationService commits every change to storage first and only then
// broadcasts it, so relayed frames always describe stored state.
type ConversationService interface {
	CreateSession(ctx context.Context, req protocol.CreateSessionRequest) (protocol.Session, error)
	GetSession(ctx context.Context, sessionID int64) (protocol.Session, error)
	ListSessions(ctx context.Context) ([]protocol.Session, error)
	UpdateSession(ctx context.Context, sessionID int64, req protocol.UpdateSessionRequest) (protocol.Session, error)
	Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error)

	CreateMessage(ctx context.Context, msg protocol.Message) (protocol.Message, error)
	ListMessages(ctx context.Context, sessionID int64) ([]protocol.Message, error)

	AddTopic(ctx context.Context, req protocol.CreateTopicRequest) (protocol.Topic, error)
	ListTopics(ctx context.Context, sessionID int64) ([]protocol.Topic, error)

	CreateActionItem(ctx context.Context, item protocol.ActionItem) (protocol.ActionItem, error)
	UpdateActionItem(ctx context.Context, id int64, req protocol.UpdateActionItemRequest) (protocol.ActionItem, error)
	ListActionItems(ctx context.Context, sessionID int64) ([]protocol.ActionItem, error)

	// Relay rebroadcasts an entity a channel sent with its canonical id. The
	// stored row is what gets relayed, and only when it belongs to sessionID.
	Relay(ctx context.Context, sessionID int64, frame protocol.Frame) error
}

type conversationService struct {
	store       internal_storage.Store
	broadcaster Broadcaster
	logger      commons.Logger
}

func NewConversationService(store internal_storage.Store, broadcaster Broadcaster, logger commons.Logger) ConversationService {
	return &conversationService{store: store, broadcaster: broadcaster, logger: logger}
}

func (s *conversationService) CreateSession(ctx context.Context, req protocol.CreateSessionRequest) (protocol.Session, error) {
	if utils.IsEmpty(req.Title) {
		return protocol.Session{}, convo_errors.NewInvalidRequest("title is required")
	}
	session, err := s.store.CreateSession(ctx, strings.TrimSpace(req.Title), req.Summary)
	if err != nil {
		return protocol.Session{}, err
	}
	return session.Wire(), nil
}

func (s *conversationService) GetSession(ctx context.Context, sessionID int64) (protocol.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return protocol.Session{}, err
	}
	return session.Wire(), nil
}

func (s *conversationService) ListSessions(ctx context.Context) ([]protocol.Session, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Wire())
	}
	return out, nil
}

func (s *conversationService) UpdateSession(ctx context.Context, sessionID int64, req protocol.UpdateSessionRequest) (protocol.Session, error) {
	session, err := s.store.UpdateSession(ctx, sessionID, internal_storage.SessionPatch{Title: req.Title, Summary: req.Summary})
	if err != nil {
		return protocol.Session{}, err
	}
	return session.Wire(), nil
}

func (s *conversationService) Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error) {
	return s.store.Snapshot(ctx, sessionID)
}

func (s *conversationService) CreateMessage(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if msg.SessionID <= 0 || utils.IsEmpty(msg.Text) {
		return protocol.Message{}, convo_errors.NewInvalidRequest("sessionId and text are required")
	}
	stored, err := s.store.CreateMessage(ctx, internal_entity.NewMessage(msg))
	if err != nil {
		return protocol.Message{}, err
	}
	out := stored.Wire()
	s.broadcaster.Broadcast(ctx, out.SessionID, protocol.Frame{Type: protocol.TypeNewMessage, SessionID: out.SessionID, Message: &out})
	return out, nil
}

func (s *conversationService) ListMessages(ctx context.Context, sessionID int64) ([]protocol.Message, error) {
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return internal_entity.WireMessages(messages), nil
}

// AddTopic merges by label: a new label is broadcast as new_topic, a known
// one as updated_topic carrying the accumulated weight.
func (s *conversationService) AddTopic(ctx context.Context, req protocol.CreateTopicRequest) (protocol.Topic, error) {
	if req.SessionID <= 0 || utils.IsEmpty(req.Label) {
		return protocol.Topic{}, convo_errors.NewInvalidRequest("sessionId and topic are required")
	}
	topic, created, err := s.store.UpsertTopic(ctx, req.SessionID, strings.TrimSpace(req.Label), req.Weight)
	if err != nil {
		return protocol.Topic{}, err
	}
	out := topic.Wire()
	frameType := protocol.TypeUpdatedTopic
	if created {
		frameType = protocol.TypeNewTopic
	}
	s.broadcaster.Broadcast(ctx, out.SessionID, protocol.Frame{Type: frameType, SessionID: out.SessionID, Topic: &out})
	return out, nil
}

func (s *conversationService) ListTopics(ctx context.Context, sessionID int64) ([]protocol.Topic, error) {
	topics, err := s.store.ListTopics(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return internal_entity.WireTopics(topics), nil
}

func (s *conversationService) CreateActionItem(ctx context.Context, item protocol.ActionItem) (protocol.ActionItem, error) {
	if item.SessionID <= 0 || utils.IsEmpty(item.Text) {
		return protocol.ActionItem{}, convo_errors.NewInvalidRequest("sessionId and text are required")
	}
	stored, err := s.store.CreateActionItem(ctx, &internal_entity.ActionItem{
		SessionId: item.SessionID,
		MessageId: item.SourceMessageID,
		Text:      strings.TrimSpace(item.Text),
		Completed: item.Completed,
	})
	if err != nil {
		return protocol.ActionItem{}, err
	}
	out := stored.Wire()
	s.broadcaster.Broadcast(ctx, out.SessionID, protocol.Frame{Type: protocol.TypeNewActionItem, SessionID: out.SessionID, ActionItem: &out})
	return out, nil
}

func (s *conversationService) UpdateActionItem(ctx context.Context, id int64, req protocol.UpdateActionItemRequest) (protocol.ActionItem, error) {
	stored, err := s.store.UpdateActionItem(ctx, id, internal_storage.ActionItemPatch{Text: req.Text, Completed: req.Completed})
	if err != nil {
		return protocol.ActionItem{}, err
	}
	out := stored.Wire()
	s.broadcaster.Broadcast(ctx, out.SessionID, protocol.Frame{Type: protocol.TypeUpdatedActionItem, SessionID: out.SessionID, ActionItem: &out})
	return out, nil
}

func (s *conversationService) ListActionItems(ctx context.Context, sessionID int64) ([]protocol.ActionItem, error) {
	items, err := s.store.ListActionItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return internal_entity.WireActionItems(items), nil
}

func (s *conversationService) Relay(ctx context.Context, sessionID int64, frame protocol.Frame) error {
	out := protocol.Frame{Type: frame.Type, SessionID: sessionID}
	var (
		kind  string
		id    int64
		owner int64
	)
	switch {
	case frame.Type == protocol.TypeNewMessage && frame.Message != nil:
		kind, id = "message", frame.Message.ID
		stored, err := s.store.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		msg := stored.Wire()
		owner, out.Message = msg.SessionID, &msg
	case (frame.Type == protocol.TypeNewTopic || frame.Type == protocol.TypeUpdatedTopic) && frame.Topic != nil:
		kind, id = "topic", frame.Topic.ID
		stored, err := s.store.GetTopic(ctx, id)
		if err != nil {
			return err
		}
		topic := stored.Wire()
		owner, out.Topic = topic.SessionID, &topic
	case (frame.Type == protocol.TypeNewActionItem || frame.Type == protocol.TypeUpdatedActionItem) && frame.ActionItem != nil:
		kind, id = "action item", frame.ActionItem.ID
		stored, err := s.store.GetActionItem(ctx, id)
		if err != nil {
			return err
		}
		item := stored.Wire()
		owner, out.ActionItem = item.SessionID, &item
	default:
		return convo_errors.NewInvalidRequest(fmt.Sprintf("cannot relay %q", frame.Type))
	}
	if owner != sessionID {
		s.logger.Warnf("relay: %s %d belongs to session %d, not %d", kind, id, owner, sessionID)
		return convo_errors.NewNotFound(kind, id)
	}
	s.broadcaster.Broadcast(ctx, sessionID, out)
	return nil
}
