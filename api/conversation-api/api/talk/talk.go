// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package talk_api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_hub "github.com/intelliconvo/api/conversation-api/internal/hub"
	internal_service "github.com/intelliconvo/api/conversation-api/internal/service"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
	"github.com/intelliconvo/pkg/utils"
)

// TalkApi upgrades /ws requests into hub channels.
type TalkApi struct {
	cfg      config.WebSocketConfig
	logger   commons.Logger
	hub      *internal_hub.Hub
	service  internal_service.ConversationService
	upgrader websocket.Upgrader
}

func NewTalkApi(cfg config.WebSocketConfig, logger commons.Logger, hub *internal_hub.Hub, service internal_service.ConversationService) *TalkApi {
	return &TalkApi{
		cfg:     cfg,
		logger:  logger,
		hub:     hub,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect serves one channel until the peer goes away.
func (api *TalkApi) Connect(c *gin.Context) {
	conn, err := api.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	client := internal_hub.NewWebsocketClient(conn, api.cfg.SendBuffer, api.logger)
	api.hub.RegisterChannel(client)
	defer api.hub.UnregisterChannel(client)

	ctx := context.WithoutCancel(c.Request.Context())
	utils.Go(ctx, api.logger, func(context.Context) { client.WritePump() })

	api.logger.Debugf("channel %s connected from %s", client.ID(), c.ClientIP())
	if err := client.ReadFrames(ctx, api.cfg.ReadLimit, func(frame protocol.Frame) {
		api.onFrame(ctx, client, frame)
	}); err != nil {
		api.logger.Warnf("channel %s closed: %v", client.ID(), err)
		return
	}
	api.logger.Debugf("channel %s disconnected", client.ID())
}

func (api *TalkApi) onFrame(ctx context.Context, client *internal_hub.WebsocketClient, frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypeJoinSession:
		if err := api.hub.JoinSession(ctx, client, frame.SessionID); err != nil {
			api.reject(client, err)
		}
		return
	case protocol.TypeNewMessage, protocol.TypeNewTopic, protocol.TypeNewActionItem, protocol.TypeUpdatedActionItem:
	default:
		api.logger.Debugf("channel %s: ignoring frame %q", client.ID(), frame.Type)
		return
	}

	sessionID, _ := api.hub.SessionOf(client)
	if sessionID == 0 {
		api.logger.Debugf("channel %s: %q before join_session, ignoring", client.ID(), frame.Type)
		return
	}

	// Entities carrying a canonical id are already stored; they are relayed
	// from storage. The rest are stored here, which broadcasts them.
	var err error
	switch frame.Type {
	case protocol.TypeNewMessage:
		if frame.Message == nil {
			return
		}
		if frame.Message.ID > 0 {
			err = api.service.Relay(ctx, sessionID, frame)
			break
		}
		msg := *frame.Message
		msg.ID = 0
		msg.SessionID = sessionID
		_, err = api.service.CreateMessage(ctx, msg)
	case protocol.TypeNewTopic:
		if frame.Topic == nil {
			return
		}
		if frame.Topic.ID > 0 {
			err = api.service.Relay(ctx, sessionID, frame)
			break
		}
		_, err = api.service.AddTopic(ctx, protocol.CreateTopicRequest{
			SessionID: sessionID,
			Label:     frame.Topic.Label,
			Weight:    frame.Topic.Weight,
		})
	case protocol.TypeNewActionItem:
		if frame.ActionItem == nil {
			return
		}
		if frame.ActionItem.ID > 0 {
			err = api.service.Relay(ctx, sessionID, frame)
			break
		}
		item := *frame.ActionItem
		item.ID = 0
		item.SessionID = sessionID
		_, err = api.service.CreateActionItem(ctx, item)
	case protocol.TypeUpdatedActionItem:
		if frame.ActionItem == nil || frame.ActionItem.ID <= 0 {
			return
		}
		text, completed := frame.ActionItem.Text, frame.ActionItem.Completed
		req := protocol.UpdateActionItemRequest{Completed: &completed}
		if text != "" {
			req.Text = &text
		}
		_, err = api.service.UpdateActionItem(ctx, frame.ActionItem.ID, req)
	}
	if err != nil {
		api.reject(client, err)
	}
}

func (api *TalkApi) reject(client *internal_hub.WebsocketClient, err error) {
	api.logger.Warnf("channel %s: %v", client.ID(), err)
	if sendErr := client.Send(protocol.Frame{Type: protocol.TypeError, Error: err.Error()}); sendErr != nil {
		api.logger.Debugf("channel %s: unable to report error: %v", client.ID(), sendErr)
	}
}
