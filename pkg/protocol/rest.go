// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

// Request and response bodies of the REST endpoints.

type CreateSessionRequest struct {
	Title   string `json:"title" binding:"required"`
	Summary string `json:"summary"`
}

type UpdateSessionRequest struct {
	Title   *string `json:"title,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

type CreateTopicRequest struct {
	SessionID int64  `json:"sessionId" binding:"required"`
	Label     string `json:"topic" binding:"required"`
	Weight    int    `json:"weight"`
}

type UpdateActionItemRequest struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type DetectedTopic struct {
	Label  string `json:"topic"`
	Weight int    `json:"weight"`
}

type DetectedActionItem struct {
	Text string `json:"text"`
}

type Analysis struct {
	Topics             []DetectedTopic      `json:"topics"`
	ActionItems        []DetectedActionItem `json:"actionItems"`
	SuggestedQuestions []string             `json:"suggestedQuestions"`
}

type AnalyzeRequest struct {
	Messages []Message `json:"messages" binding:"required"`
}

type SuggestRequest struct {
	Messages    []Message `json:"messages"`
	LastMessage string    `json:"lastMessage"`
}

type WhisperRequest struct {
	WhisperText string    `json:"whisperText" binding:"required"`
	Messages    []Message `json:"messages,omitempty"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type SuggestionResponse struct {
	Suggestion string `json:"suggestion"`
}

type WhisperResponse struct {
	Response string `json:"response"`
}
