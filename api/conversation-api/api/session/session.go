// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	internal_response "github.com/intelliconvo/api/conversation-api/internal/response"
	internal_service "github.com/intelliconvo/api/conversation-api/internal/service"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
	"github.com/intelliconvo/pkg/utils"
)

type SessionApi struct {
	logger  commons.Logger
	service internal_service.ConversationService
}

func NewSessionApi(logger commons.Logger, service internal_service.ConversationService) *SessionApi {
	return &SessionApi{logger: logger, service: service}
}

func (api *SessionApi) fail(c *gin.Context, err error) {
	internal_response.Error(c, api.logger, err)
}

func (api *SessionApi) pathID(c *gin.Context) (int64, bool) {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		api.fail(c, convo_errors.NewInvalidRequest(err.Error()))
		return 0, false
	}
	return id, true
}

func (api *SessionApi) bind(c *gin.Context, v interface{}) bool {
	return internal_response.Bind(c, api.logger, v)
}

// @Router /api/sessions [get]
func (api *SessionApi) ListSessions(c *gin.Context) {
	sessions, err := api.service.ListSessions(c.Request.Context())
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// @Router /api/sessions/:id [get]
func (api *SessionApi) GetSession(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	session, err := api.service.GetSession(c.Request.Context(), id)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// @Router /api/sessions [post]
func (api *SessionApi) CreateSession(c *gin.Context) {
	var req protocol.CreateSessionRequest
	if !api.bind(c, &req) {
		return
	}
	session, err := api.service.CreateSession(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// @Router /api/sessions/:id [patch]
func (api *SessionApi) UpdateSession(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	var req protocol.UpdateSessionRequest
	if !api.bind(c, &req) {
		return
	}
	session, err := api.service.UpdateSession(c.Request.Context(), id, req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// @Router /api/sessions/:id/messages [get]
func (api *SessionApi) ListMessages(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	messages, err := api.service.ListMessages(c.Request.Context(), id)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// @Router /api/messages [post]
func (api *SessionApi) CreateMessage(c *gin.Context) {
	var req protocol.Message
	if !api.bind(c, &req) {
		return
	}
	msg, err := api.service.CreateMessage(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// @Router /api/sessions/:id/topics [get]
func (api *SessionApi) ListTopics(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	topics, err := api.service.ListTopics(c.Request.Context(), id)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, topics)
}

// @Router /api/topics [post]
func (api *SessionApi) CreateTopic(c *gin.Context) {
	var req protocol.CreateTopicRequest
	if !api.bind(c, &req) {
		return
	}
	topic, err := api.service.AddTopic(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

// @Router /api/sessions/:id/action-items [get]
func (api *SessionApi) ListActionItems(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	items, err := api.service.ListActionItems(c.Request.Context(), id)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// @Router /api/action-items [post]
func (api *SessionApi) CreateActionItem(c *gin.Context) {
	var req protocol.ActionItem
	if !api.bind(c, &req) {
		return
	}
	item, err := api.service.CreateActionItem(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// @Router /api/action-items/:id [patch]
func (api *SessionApi) UpdateActionItem(c *gin.Context) {
	id, ok := api.pathID(c)
	if !ok {
		return
	}
	var req protocol.UpdateActionItemRequest
	if !api.bind(c, &req) {
		return
	}
	item, err := api.service.UpdateActionItem(c.Request.Context(), id, req)
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
