// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package analysis_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internal_analysis "github.com/intelliconvo/api/conversation-api/internal/analysis"
	internal_response "github.com/intelliconvo/api/conversation-api/internal/response"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

type AnalysisApi struct {
	logger   commons.Logger
	analyzer internal_analysis.Analyzer
}

func NewAnalysisApi(logger commons.Logger, analyzer internal_analysis.Analyzer) *AnalysisApi {
	return &AnalysisApi{logger: logger, analyzer: analyzer}
}

// @Router /api/analyze/text [post]
func (api *AnalysisApi) AnalyzeText(c *gin.Context) {
	start := time.Now()
	defer func() { api.logger.Benchmark("AnalysisApi.AnalyzeText", time.Since(start)) }()

	var req protocol.AnalyzeRequest
	if !internal_response.Bind(c, api.logger, &req) {
		return
	}
	result, err := api.analyzer.Analyze(c.Request.Context(), req.Messages)
	if err != nil {
		internal_response.Error(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Router /api/analyze/summary [post]
func (api *AnalysisApi) Summary(c *gin.Context) {
	var req protocol.AnalyzeRequest
	if !internal_response.Bind(c, api.logger, &req) {
		return
	}
	summary, err := api.analyzer.Summarize(c.Request.Context(), req.Messages)
	if err != nil {
		internal_response.Error(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, protocol.SummaryResponse{Summary: summary})
}

// @Router /api/analyze/suggest-response [post]
func (api *AnalysisApi) SuggestResponse(c *gin.Context) {
	var req protocol.SuggestRequest
	if !internal_response.Bind(c, api.logger, &req) {
		return
	}
	suggestion, err := api.analyzer.SuggestResponse(c.Request.Context(), req.Messages, req.LastMessage)
	if err != nil {
		internal_response.Error(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, protocol.SuggestionResponse{Suggestion: suggestion})
}

// @Router /api/analyze/whisper [post]
func (api *AnalysisApi) Whisper(c *gin.Context) {
	var req protocol.WhisperRequest
	if !internal_response.Bind(c, api.logger, &req) {
		return
	}
	answer, err := api.analyzer.Whisper(c.Request.Context(), req.WhisperText, req.Messages)
	if err != nil {
		internal_response.Error(c, api.logger, err)
		return
	}
	c.JSON(http.StatusOK, protocol.WhisperResponse{Response: answer})
}
