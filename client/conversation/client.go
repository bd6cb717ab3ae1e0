// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_conversation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

// Client talks to the conversation server's REST surface. It covers the
// storage endpoints and the analysis endpoints.
type Client struct {
	logger commons.Logger
	rest   *resty.Client
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

func WithRetry(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

func New(baseURL string, logger commons.Logger, opts ...Option) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	for _, opt := range opts {
		opt(rest)
	}
	return &Client{logger: logger, rest: rest}
}

// =============================================================================
// Sessions
// =============================================================================

func (c *Client) CreateSession(ctx context.Context, title string) (protocol.Session, error) {
	var out protocol.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, protocol.CreateSessionRequest{Title: title}, &out, "create session")
	return out, err
}

func (c *Client) GetSession(ctx context.Context, id int64) (protocol.Session, error) {
	var out protocol.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/{id}", idParam(id), nil, &out, "get session")
	return out, err
}

func (c *Client) ListSessions(ctx context.Context) ([]protocol.Session, error) {
	var out []protocol.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, nil, &out, "list sessions")
	return out, err
}

func (c *Client) UpdateSession(ctx context.Context, id int64, req protocol.UpdateSessionRequest) (protocol.Session, error) {
	var out protocol.Session
	err := c.do(ctx, http.MethodPatch, "/api/sessions/{id}", idParam(id), req, &out, "update session")
	return out, err
}

// UpdateSummary writes summary back to the session record.
func (c *Client) UpdateSummary(ctx context.Context, id int64, summary string) error {
	_, err := c.UpdateSession(ctx, id, protocol.UpdateSessionRequest{Summary: &summary})
	return err
}

// =============================================================================
// Messages, Topics, Action Items
// =============================================================================

func (c *Client) CreateMessage(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	var out protocol.Message
	err := c.do(ctx, http.MethodPost, "/api/messages", nil, msg, &out, "create message")
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, sessionID int64) ([]protocol.Message, error) {
	var out []protocol.Message
	err := c.do(ctx, http.MethodGet, "/api/sessions/{id}/messages", idParam(sessionID), nil, &out, "list messages")
	return out, err
}

func (c *Client) AddTopic(ctx context.Context, sessionID int64, label string, weight int) (protocol.Topic, error) {
	var out protocol.Topic
	req := protocol.CreateTopicRequest{SessionID: sessionID, Label: label, Weight: weight}
	err := c.do(ctx, http.MethodPost, "/api/topics", nil, req, &out, "add topic")
	return out, err
}

func (c *Client) ListTopics(ctx context.Context, sessionID int64) ([]protocol.Topic, error) {
	var out []protocol.Topic
	err := c.do(ctx, http.MethodGet, "/api/sessions/{id}/topics", idParam(sessionID), nil, &out, "list topics")
	return out, err
}

func (c *Client) CreateActionItem(ctx context.Context, item protocol.ActionItem) (protocol.ActionItem, error) {
	var out protocol.ActionItem
	err := c.do(ctx, http.MethodPost, "/api/action-items", nil, item, &out, "create action item")
	return out, err
}

func (c *Client) UpdateActionItem(ctx context.Context, id int64, req protocol.UpdateActionItemRequest) (protocol.ActionItem, error) {
	var out protocol.ActionItem
	err := c.do(ctx, http.MethodPatch, "/api/action-items/{id}", idParam(id), req, &out, "update action item")
	return out, err
}

func (c *Client) ListActionItems(ctx context.Context, sessionID int64) ([]protocol.ActionItem, error) {
	var out []protocol.ActionItem
	err := c.do(ctx, http.MethodGet, "/api/sessions/{id}/action-items", idParam(sessionID), nil, &out, "list action items")
	return out, err
}

// Snapshot fetches a session with all of its entities.
func (c *Client) Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error) {
	var snap protocol.Snapshot
	var err error
	if snap.Session, err = c.GetSession(ctx, sessionID); err != nil {
		return snap, err
	}
	if snap.Messages, err = c.ListMessages(ctx, sessionID); err != nil {
		return snap, err
	}
	if snap.Topics, err = c.ListTopics(ctx, sessionID); err != nil {
		return snap, err
	}
	snap.ActionItems, err = c.ListActionItems(ctx, sessionID)
	return snap, err
}

// =============================================================================
// Analysis
// =============================================================================

func (c *Client) Summarize(ctx context.Context, messages []protocol.Message) (string, error) {
	var out protocol.SummaryResponse
	err := c.do(ctx, http.MethodPost, "/api/analyze/summary", nil, protocol.AnalyzeRequest{Messages: nonNil(messages)}, &out, "summary")
	return out.Summary, err
}

func (c *Client) Analyze(ctx context.Context, messages []protocol.Message) (protocol.Analysis, error) {
	var out protocol.Analysis
	err := c.do(ctx, http.MethodPost, "/api/analyze/text", nil, protocol.AnalyzeRequest{Messages: nonNil(messages)}, &out, "analyze")
	return out, err
}

func (c *Client) SuggestResponse(ctx context.Context, messages []protocol.Message, lastMessage string) (string, error) {
	var out protocol.SuggestionResponse
	req := protocol.SuggestRequest{Messages: messages, LastMessage: lastMessage}
	err := c.do(ctx, http.MethodPost, "/api/analyze/suggest-response", nil, req, &out, "suggest response")
	return out.Suggestion, err
}

func (c *Client) Whisper(ctx context.Context, text string, messages []protocol.Message) (string, error) {
	var out protocol.WhisperResponse
	req := protocol.WhisperRequest{WhisperText: text, Messages: messages}
	err := c.do(ctx, http.MethodPost, "/api/analyze/whisper", nil, req, &out, "whisper")
	return out.Response, err
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, result interface{}, operation string) error {
	start := time.Now()
	defer func() { c.logger.Benchmark("conversation."+operation, time.Since(start)) }()

	var failure protocol.ErrorResponse
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure)
	if params != nil {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Errorf("conversation: %s %s failed: %v", method, path, err)
		return convo_errors.NewStorageFailed(operation, err)
	}
	if resp.IsError() {
		return responseError(operation, resp.StatusCode(), failure)
	}
	return nil
}

// responseError rebuilds the server's error. Responses without a code count
// as a storage failure.
func responseError(operation string, status int, failure protocol.ErrorResponse) error {
	code := convo_errors.ErrorCode(failure.Code)
	if code == "" {
		code = convo_errors.ErrStorageFailed
	}
	msg := failure.Message
	if msg == "" {
		msg = fmt.Sprintf("%s failed with status %d", operation, status)
	}
	return &convo_errors.ConvoError{Code: code, Status: status, Message: msg}
}

func idParam(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

func nonNil(messages []protocol.Message) []protocol.Message {
	if messages == nil {
		return []protocol.Message{}
	}
	return messages
}
