// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	internal_entity "github.com/intelliconvo/api/conversation-api/internal/entity"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/connectors"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

// SessionPatch carries the mutable session fields; nil leaves a field as is.
type SessionPatch struct {
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
}

type ActionItemPatch struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// Store is the durable copy of every session. Callers commit through the
// store before broadcasting so relayed events always reflect stored state.
type Store interface {
	Migrate(ctx context.Context) error

	CreateSession(ctx context.Context, title, summary string) (*internal_entity.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*internal_entity.Session, error)
	ListSessions(ctx context.Context) ([]*internal_entity.Session, error)
	UpdateSession(ctx context.Context, sessionID int64, patch SessionPatch) (*internal_entity.Session, error)

	// CreateMessage is idempotent on (session, ClientRef): a replayed
	// message returns the row stored the first time.
	CreateMessage(ctx context.Context, msg *internal_entity.Message) (*internal_entity.Message, error)
	GetMessage(ctx context.Context, id int64) (*internal_entity.Message, error)
	ListMessages(ctx context.Context, sessionID int64) ([]*internal_entity.Message, error)

	// UpsertTopic adds weight to the existing (session, label) topic or
	// creates it in one statement. Labels match by protocol.TopicKey. created
	// reports which happened.
	UpsertTopic(ctx context.Context, sessionID int64, label string, weight int) (topic *internal_entity.Topic, created bool, err error)
	GetTopic(ctx context.Context, id int64) (*internal_entity.Topic, error)
	ListTopics(ctx context.Context, sessionID int64) ([]*internal_entity.Topic, error)

	CreateActionItem(ctx context.Context, item *internal_entity.ActionItem) (*internal_entity.ActionItem, error)
	GetActionItem(ctx context.Context, id int64) (*internal_entity.ActionItem, error)
	UpdateActionItem(ctx context.Context, id int64, patch ActionItemPatch) (*internal_entity.ActionItem, error)
	ListActionItems(ctx context.Context, sessionID int64) ([]*internal_entity.ActionItem, error)

	Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error)
}

type gormStore struct {
	db     connectors.DatabaseConnector
	logger commons.Logger
}

func NewStore(db connectors.DatabaseConnector, logger commons.Logger) Store {
	return &gormStore{db: db, logger: logger}
}

func (s *gormStore) Migrate(ctx context.Context) error {
	if err := s.db.DB(ctx).AutoMigrate(
		&internal_entity.Session{},
		&internal_entity.Message{},
		&internal_entity.Topic{},
		&internal_entity.ActionItem{},
	); err != nil {
		return fmt.Errorf("failed to migrate conversation schema: %w", err)
	}
	return nil
}

func (s *gormStore) CreateSession(ctx context.Context, title, summary string) (*internal_entity.Session, error) {
	session := &internal_entity.Session{Title: title, Summary: summary}
	if err := s.db.DB(ctx).Create(session).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("create session", err)
	}
	s.logger.Infof("created session: id=%d, title=%s", session.Id, session.Title)
	return session, nil
}

func (s *gormStore) GetSession(ctx context.Context, sessionID int64) (*internal_entity.Session, error) {
	var session internal_entity.Session
	if err := s.db.DB(ctx).First(&session, sessionID).Error; err != nil {
		return nil, s.notFoundOr("session", sessionID, "get session", err)
	}
	return &session, nil
}

func (s *gormStore) ListSessions(ctx context.Context) ([]*internal_entity.Session, error) {
	var sessions []*internal_entity.Session
	if err := s.db.DB(ctx).Order("created_date DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("list sessions", err)
	}
	return sessions, nil
}

func (s *gormStore) UpdateSession(ctx context.Context, sessionID int64, patch SessionPatch) (*internal_entity.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Summary != nil {
		updates["summary"] = *patch.Summary
	}
	if len(updates) == 0 {
		return session, nil
	}
	if err := s.db.DB(ctx).Model(session).Updates(updates).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("update session", err)
	}
	return s.GetSession(ctx, sessionID)
}

func (s *gormStore) CreateMessage(ctx context.Context, msg *internal_entity.Message) (*internal_entity.Message, error) {
	if _, err := s.GetSession(ctx, msg.SessionId); err != nil {
		return nil, err
	}
	db := s.db.DB(ctx)
	if msg.ClientRef != "" {
		var existing internal_entity.Message
		err := db.Where("session_id = ? AND client_ref = ?", msg.SessionId, msg.ClientRef).First(&existing).Error
		if err == nil {
			s.logger.Debugf("message replay ignored: session=%d, clientRef=%s", msg.SessionId, msg.ClientRef)
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, convo_errors.NewStorageFailed("create message", err)
		}
	}
	if err := db.Create(msg).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("create message", err)
	}
	return msg, nil
}

func (s *gormStore) GetMessage(ctx context.Context, id int64) (*internal_entity.Message, error) {
	var msg internal_entity.Message
	if err := s.db.DB(ctx).First(&msg, id).Error; err != nil {
		return nil, s.notFoundOr("message", id, "get message", err)
	}
	return &msg, nil
}

func (s *gormStore) ListMessages(ctx context.Context, sessionID int64) ([]*internal_entity.Message, error) {
	var messages []*internal_entity.Message
	if err := s.db.DB(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("list messages", err)
	}
	return messages, nil
}

func (s *gormStore) UpsertTopic(ctx context.Context, sessionID int64, label string, weight int) (*internal_entity.Topic, bool, error) {
	if weight < 1 {
		weight = 1
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, false, err
	}
	topic := internal_entity.Topic{
		SessionId: sessionID,
		Label:     label,
		LabelKey:  protocol.TopicKey(label),
		Weight:    weight,
	}
	err := s.db.DB(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "label_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"weight":       gorm.Expr("topics.weight + excluded.weight"),
				"updated_date": time.Now(),
			}),
		},
		clause.Returning{},
	).Create(&topic).Error
	if err != nil {
		return nil, false, convo_errors.NewStorageFailed("upsert topic", err)
	}
	// A merged row always ends heavier than the weight just added.
	created := topic.Weight == weight
	return &topic, created, nil
}

func (s *gormStore) GetTopic(ctx context.Context, id int64) (*internal_entity.Topic, error) {
	var topic internal_entity.Topic
	if err := s.db.DB(ctx).First(&topic, id).Error; err != nil {
		return nil, s.notFoundOr("topic", id, "get topic", err)
	}
	return &topic, nil
}

func (s *gormStore) ListTopics(ctx context.Context, sessionID int64) ([]*internal_entity.Topic, error) {
	var topics []*internal_entity.Topic
	if err := s.db.DB(ctx).
		Where("session_id = ?", sessionID).
		Order("weight DESC, id ASC").
		Find(&topics).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("list topics", err)
	}
	return topics, nil
}

func (s *gormStore) CreateActionItem(ctx context.Context, item *internal_entity.ActionItem) (*internal_entity.ActionItem, error) {
	if _, err := s.GetSession(ctx, item.SessionId); err != nil {
		return nil, err
	}
	if err := s.db.DB(ctx).Create(item).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("create action item", err)
	}
	return item, nil
}

func (s *gormStore) GetActionItem(ctx context.Context, id int64) (*internal_entity.ActionItem, error) {
	var item internal_entity.ActionItem
	if err := s.db.DB(ctx).First(&item, id).Error; err != nil {
		return nil, s.notFoundOr("action item", id, "get action item", err)
	}
	return &item, nil
}

func (s *gormStore) UpdateActionItem(ctx context.Context, id int64, patch ActionItemPatch) (*internal_entity.ActionItem, error) {
	var item internal_entity.ActionItem
	db := s.db.DB(ctx)
	if err := db.First(&item, id).Error; err != nil {
		return nil, s.notFoundOr("action item", id, "update action item", err)
	}
	updates := map[string]interface{}{}
	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.Completed != nil {
		updates["completed"] = *patch.Completed
	}
	if len(updates) > 0 {
		if err := db.Model(&item).Updates(updates).Error; err != nil {
			return nil, convo_errors.NewStorageFailed("update action item", err)
		}
	}
	if err := db.First(&item, id).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("update action item", err)
	}
	return &item, nil
}

func (s *gormStore) ListActionItems(ctx context.Context, sessionID int64) ([]*internal_entity.ActionItem, error) {
	var items []*internal_entity.ActionItem
	if err := s.db.DB(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, convo_errors.NewStorageFailed("list action items", err)
	}
	return items, nil
}

func (s *gormStore) Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	topics, err := s.ListTopics(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	items, err := s.ListActionItems(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.Snapshot{
		Session:     session.Wire(),
		Messages:    internal_entity.WireMessages(messages),
		Topics:      internal_entity.WireTopics(topics),
		ActionItems: internal_entity.WireActionItems(items),
	}, nil
}

func (s *gormStore) notFoundOr(kind string, id int64, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return convo_errors.NewNotFound(kind, id)
	}
	return convo_errors.NewStorageFailed(op, err)
}
