// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package conversation_routers

import (
	"github.com/gin-gonic/gin"

	analysisApi "github.com/intelliconvo/api/conversation-api/api/analysis"
	sessionApi "github.com/intelliconvo/api/conversation-api/api/session"
	talkApi "github.com/intelliconvo/api/conversation-api/api/talk"
	internal_analysis "github.com/intelliconvo/api/conversation-api/internal/analysis"
	internal_hub "github.com/intelliconvo/api/conversation-api/internal/hub"
	internal_service "github.com/intelliconvo/api/conversation-api/internal/service"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
)

func SessionRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, service internal_service.ConversationService) {
	logger.Info("SessionRoutes added to engine.")
	api := sessionApi.NewSessionApi(logger, service)
	apiv1 := engine.Group("/api")
	{
		apiv1.GET("/sessions", api.ListSessions)
		apiv1.POST("/sessions", api.CreateSession)
		apiv1.GET("/sessions/:id", api.GetSession)
		apiv1.PATCH("/sessions/:id", api.UpdateSession)
		apiv1.GET("/sessions/:id/messages", api.ListMessages)
		apiv1.GET("/sessions/:id/topics", api.ListTopics)
		apiv1.GET("/sessions/:id/action-items", api.ListActionItems)

		apiv1.POST("/messages", api.CreateMessage)
		apiv1.POST("/topics", api.CreateTopic)
		apiv1.POST("/action-items", api.CreateActionItem)
		apiv1.PATCH("/action-items/:id", api.UpdateActionItem)
	}
}

func AnalysisRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, analyzer internal_analysis.Analyzer) {
	logger.Infof("AnalysisRoutes added to engine with %s analyzer.", analyzer.Name())
	api := analysisApi.NewAnalysisApi(logger, analyzer)
	apiv1 := engine.Group("/api/analyze")
	{
		apiv1.POST("/text", api.AnalyzeText)
		apiv1.POST("/summary", api.Summary)
		apiv1.POST("/suggest-response", api.SuggestResponse)
		apiv1.POST("/whisper", api.Whisper)
	}
}

func TalkRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, hub *internal_hub.Hub, service internal_service.ConversationService) {
	logger.Infof("TalkRoutes added to engine at %s.", cfg.WebSocket.Path)
	api := talkApi.NewTalkApi(cfg.WebSocket, logger, hub, service)
	engine.GET(cfg.WebSocket.Path, api.Connect)
}
