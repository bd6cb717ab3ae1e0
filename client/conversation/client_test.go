package client_conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

type recorded struct {
	method string
	path   string
	body   map[string]interface{}
}

func newServer(t *testing.T, routes map[string]func(w http.ResponseWriter, body map[string]interface{})) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: body})

		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"route not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, commons.NewNopLogger(), WithTimeout(2*time.Second)), &calls
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Storage
// =============================================================================

func TestClient_CreateSession(t *testing.T) {
	client, calls := newServer(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /api/sessions": func(w http.ResponseWriter, body map[string]interface{}) {
			writeJSON(w, http.StatusCreated, protocol.Session{ID: 11, Title: body["title"].(string)})
		},
	})

	session, err := client.CreateSession(context.Background(), "Weekly sync")
	require.NoError(t, err)
	assert.Equal(t, int64(11), session.ID)
	assert.Equal(t, "Weekly sync", session.Title)
	require.Len(t, *calls, 1)
}

func TestClient_CreateMessageEchoesClientRef(t *testing.T) {
	client, calls := newServer(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /api/messages": func(w http.ResponseWriter, body map[string]interface{}) {
			writeJSON(w, http.StatusCreated, map[string]interface{}{
				"id": 5, "sessionId": body["sessionId"], "text": body["text"],
				"speakerType": "self", "clientRef": body["clientRef"],
			})
		},
	})

	msg, err := client.CreateMessage(context.Background(), protocol.Message{
		SessionID: 3, Text: "ship it", SpeakerType: protocol.SpeakerSelf, ClientRef: "ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.ID)
	assert.Equal(t, "ref-1", msg.ClientRef)
	assert.Equal(t, "ship it", (*calls)[0].body["text"])
}

func TestClient_PathParams(t *testing.T) {
	ok := func(v interface{}) func(http.ResponseWriter, map[string]interface{}) {
		return func(w http.ResponseWriter, _ map[string]interface{}) { writeJSON(w, http.StatusOK, v) }
	}
	client, calls := newServer(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"GET /api/sessions/9":              ok(protocol.Session{ID: 9, Title: "t"}),
		"GET /api/sessions/9/messages":     ok([]protocol.Message{{ID: 1, SessionID: 9, Text: "a"}}),
		"GET /api/sessions/9/topics":       ok([]protocol.Topic{{ID: 2, SessionID: 9, Label: "budget"}}),
		"GET /api/sessions/9/action-items": ok([]protocol.ActionItem{{ID: 3, SessionID: 9, Text: "send deck"}}),
		"PATCH /api/action-items/3":        ok(protocol.ActionItem{ID: 3, SessionID: 9, Text: "send deck", Completed: true}),
		"PATCH /api/sessions/9":            ok(protocol.Session{ID: 9, Summary: "done"}),
	})
	ctx := context.Background()

	snap, err := client.Snapshot(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), snap.Session.ID)
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, "budget", snap.Topics[0].Label)
	assert.Equal(t, "send deck", snap.ActionItems[0].Text)

	done := true
	item, err := client.UpdateActionItem(ctx, 3, protocol.UpdateActionItemRequest{Completed: &done})
	require.NoError(t, err)
	assert.True(t, item.Completed)

	require.NoError(t, client.UpdateSummary(ctx, 9, "done"))
	last := (*calls)[len(*calls)-1]
	assert.Equal(t, "done", last.body["summary"])
	assert.NotContains(t, last.body, "title")
}

func TestClient_Errors(t *testing.T) {
	client, _ := newServer(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"GET /api/sessions/404": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Message: "session 404 not found", Code: "NOT_FOUND"})
		},
		"POST /api/topics": func(w http.ResponseWriter, _ map[string]interface{}) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		code   convo_errors.ErrorCode
		status int
	}{
		{"coded not found", func() error { _, err := client.GetSession(ctx, 404); return err }, convo_errors.ErrNotFound, 404},
		{"bare 500", func() error { _, err := client.AddTopic(ctx, 1, "x", 1); return err }, convo_errors.ErrStorageFailed, 500},
		{"unrouted", func() error { _, err := client.ListSessions(ctx); return err }, convo_errors.ErrStorageFailed, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, convo_errors.Is(err, tt.code), "got %v", err)
			assert.Equal(t, tt.status, convo_errors.StatusOf(err))
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	client := New("http://127.0.0.1:1", commons.NewNopLogger(), WithTimeout(200*time.Millisecond))
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, convo_errors.Is(err, convo_errors.ErrStorageFailed))
}

// =============================================================================
// Analysis
// =============================================================================

func TestClient_Analysis(t *testing.T) {
	client, calls := newServer(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /api/analyze/summary": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeJSON(w, http.StatusOK, protocol.SummaryResponse{Summary: "short"})
		},
		"POST /api/analyze/text": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeJSON(w, http.StatusOK, protocol.Analysis{
				Topics:             []protocol.DetectedTopic{{Label: "pricing", Weight: 3}},
				SuggestedQuestions: []string{"What is the budget?"},
			})
		},
		"POST /api/analyze/suggest-response": func(w http.ResponseWriter, body map[string]interface{}) {
			writeJSON(w, http.StatusOK, protocol.SuggestionResponse{Suggestion: "reply to " + body["lastMessage"].(string)})
		},
		"POST /api/analyze/whisper": func(w http.ResponseWriter, body map[string]interface{}) {
			writeJSON(w, http.StatusOK, protocol.WhisperResponse{Response: "re: " + body["whisperText"].(string)})
		},
	})
	ctx := context.Background()

	summary, err := client.Summarize(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "short", summary)
	assert.Equal(t, []interface{}{}, (*calls)[0].body["messages"])

	analysis, err := client.Analyze(ctx, []protocol.Message{{Text: "pricing"}})
	require.NoError(t, err)
	assert.Equal(t, "pricing", analysis.Topics[0].Label)
	assert.Equal(t, []string{"What is the budget?"}, analysis.SuggestedQuestions)

	suggestion, err := client.SuggestResponse(ctx, nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply to hello", suggestion)

	answer, err := client.Whisper(ctx, "who is Bob?", nil)
	require.NoError(t, err)
	assert.Equal(t, "re: who is Bob?", answer)
}
