// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package client_mcp exposes stored sessions to MCP clients over stdio.
package client_mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	client_coordinator "github.com/intelliconvo/client/coordinator"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

// Sessions is the read side of the conversation server the tools need.
type Sessions interface {
	ListSessions(ctx context.Context) ([]protocol.Session, error)
	Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error)
	Whisper(ctx context.Context, text string, messages []protocol.Message) (string, error)
}

type Handlers struct {
	sessions Sessions
	logger   commons.Logger
}

func NewHandlers(sessions Sessions, logger commons.Logger) *Handlers {
	return &Handlers{sessions: sessions, logger: logger}
}

var (
	listToolDef = mcp.NewTool("session_list",
		mcp.WithDescription("List recorded conversation sessions, newest first."),
	)
	getToolDef = mcp.NewTool("session_get",
		mcp.WithDescription("Fetch one session with its transcript, topics and action items."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	exportToolDef = mcp.NewTool("session_export",
		mcp.WithDescription("Render a session as text, markdown or json."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("format", mcp.Enum("text", "markdown", "json"), mcp.Description("Output format, markdown by default")),
		mcp.WithBoolean("include_topics", mcp.Description("Include detected topics")),
	)
	whisperToolDef = mcp.NewTool("session_whisper",
		mcp.WithDescription("Ask the conversation assistant a question about a session."),
		mcp.WithNumber("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question")),
	)
)

func NewServer(sessions Sessions, logger commons.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer("intelliconvo", version, server.WithToolCapabilities(true))
	h := NewHandlers(sessions, logger)
	s.AddTool(listToolDef, h.HandleList)
	s.AddTool(getToolDef, h.HandleGet)
	s.AddTool(exportToolDef, h.HandleExport)
	s.AddTool(whisperToolDef, h.HandleWhisper)
	return s
}

// Run serves the tools on stdin/stdout until the input closes.
func Run(sessions Sessions, logger commons.Logger, version string) error {
	return server.ServeStdio(NewServer(sessions, logger, version))
}

type sessionRequest struct {
	SessionID     int64  `json:"session_id"`
	Format        string `json:"format,omitempty"`
	IncludeTopics bool   `json:"include_topics,omitempty"`
	Question      string `json:"question,omitempty"`
}

func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := h.sessions.ListSessions(ctx)
	if err != nil {
		return h.errorResult(err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"sessions": sessions})
}

func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeSession(req)
	if err != nil {
		return h.errorResult(err), nil
	}
	snap, err := h.sessions.Snapshot(ctx, input.SessionID)
	if err != nil {
		return h.errorResult(err), nil
	}
	return mcp.NewToolResultJSON(snap.Frame())
}

func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeSession(req)
	if err != nil {
		return h.errorResult(err), nil
	}
	snap, err := h.sessions.Snapshot(ctx, input.SessionID)
	if err != nil {
		return h.errorResult(err), nil
	}
	opts := client_coordinator.DefaultExportOptions()
	if input.Format != "" {
		opts.Format = client_coordinator.ExportFormat(input.Format)
	}
	opts.IncludeTopics = input.IncludeTopics
	out, err := opts.Render(viewOf(snap))
	if err != nil {
		return h.errorResult(err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (h *Handlers) HandleWhisper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeSession(req)
	if err != nil {
		return h.errorResult(err), nil
	}
	if input.Question == "" {
		return h.errorResult(convo_errors.NewInvalidRequest("question is required")), nil
	}
	snap, err := h.sessions.Snapshot(ctx, input.SessionID)
	if err != nil {
		return h.errorResult(err), nil
	}
	answer, err := h.sessions.Whisper(ctx, input.Question, snap.Messages)
	if err != nil {
		return h.errorResult(convo_errors.NewAnalysisFailed("whisper", err)), nil
	}
	return mcp.NewToolResultText(answer), nil
}

func viewOf(snap protocol.Snapshot) client_coordinator.View {
	return client_coordinator.View{
		Session:     snap.Session,
		Messages:    snap.Messages,
		Topics:      snap.Topics,
		ActionItems: snap.ActionItems,
		Summary:     snap.Session.Summary,
	}
}

func decodeSession(req mcp.CallToolRequest) (sessionRequest, error) {
	input, err := decode[sessionRequest](req)
	if err != nil {
		return input, err
	}
	if input.SessionID <= 0 {
		return input, convo_errors.NewInvalidRequest("session_id must be a positive integer")
	}
	return input, nil
}

// decode maps tool arguments onto a typed request.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, convo_errors.NewInvalidRequest(fmt.Sprintf("marshal args: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, convo_errors.NewInvalidRequest(fmt.Sprintf("unmarshal args: %v", err))
	}
	return result, nil
}

func (h *Handlers) errorResult(err error) *mcp.CallToolResult {
	payload := map[string]any{"code": "INTERNAL", "message": "an internal error occurred"}
	var cErr *convo_errors.ConvoError
	if convo_errors.As(err, &cErr) {
		payload = map[string]any{"code": cErr.Code, "message": cErr.Message, "status": cErr.Status}
	} else {
		h.logger.Errorf("mcp: %v", err)
	}
	content, _ := json.Marshal(map[string]any{"error": payload})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}
