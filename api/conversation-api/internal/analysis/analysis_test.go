package internal_analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

func msgs(texts ...string) []protocol.Message {
	out := make([]protocol.Message, 0, len(texts))
	for i, t := range texts {
		out = append(out, protocol.Message{ID: int64(i + 1), Text: t, SpeakerType: protocol.SpeakerOther})
	}
	return out
}

// =============================================================================
// Keyword analyzer
// =============================================================================

func TestKeywordAnalyzer_Summarize(t *testing.T) {
	k := NewKeywordAnalyzer(commons.NewNopLogger())
	tests := []struct {
		name     string
		messages []protocol.Message
		want     string
	}{
		{"empty", nil, ""},
		{"two messages", msgs("hi", "hello"), summaryStarted},
		{"interview", msgs("hi", "we moved to microservices", "ok"), summaryInterview},
		{"case sensitive", msgs("hi", "Docker everywhere", "ok"), "Conversation with 3 exchanges. Multiple topics discussed including development, infrastructure, and project experience."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.Summarize(context.Background(), tt.messages)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordAnalyzer_Analyze(t *testing.T) {
	k := NewKeywordAnalyzer(commons.NewNopLogger())
	got, err := k.Analyze(context.Background(), msgs("We run Docker on AWS", "please share the documentation"))
	require.NoError(t, err)

	labels := map[string]int{}
	for _, tp := range got.Topics {
		labels[tp.Label] = tp.Weight
	}
	assert.Equal(t, 5, labels["Kubernetes"])
	assert.Equal(t, 4, labels["Docker"])
	assert.Equal(t, 3, labels["AWS"])
	assert.NotContains(t, labels, "React")
	require.Len(t, got.ActionItems, 1)
	assert.Equal(t, "Share migration case study documentation", got.ActionItems[0].Text)
	assert.Len(t, got.SuggestedQuestions, 3)

	empty, err := k.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Topics)
	assert.NotNil(t, empty.Topics, "encodes as [] not null")
}

func TestKeywordAnalyzer_SuggestAndWhisper(t *testing.T) {
	k := NewKeywordAnalyzer(commons.NewNopLogger())
	ctx := context.Background()

	s, _ := k.SuggestResponse(ctx, nil, "What was the biggest CHALLENGE?")
	assert.Equal(t, suggestionChallenge, s)
	s, _ = k.SuggestResponse(ctx, nil, "tell me about your experience")
	assert.Equal(t, suggestionExperience, s)
	s, _ = k.SuggestResponse(ctx, nil, "hello")
	assert.Equal(t, suggestionDefault, s)

	w, _ := k.Whisper(ctx, "Help me", nil)
	assert.Equal(t, whisperHelp, w)
	w, _ = k.Whisper(ctx, "tricky question", nil)
	assert.Equal(t, whisperQuestion, w)
	w, _ = k.Whisper(ctx, "technical stuff", nil)
	assert.Equal(t, whisperTechnical, w)
	w, _ = k.Whisper(ctx, "?", nil)
	assert.Equal(t, whisperDefault, w)
}

func TestNewAnalyzer(t *testing.T) {
	a, err := NewAnalyzer(config.AnalysisConfig{Provider: "keyword"}, commons.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "keyword", a.Name())

	a, err = NewAnalyzer(config.AnalysisConfig{Provider: "openai", ApiKey: "k"}, commons.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Name())

	_, err = NewAnalyzer(config.AnalysisConfig{Provider: "magic"}, commons.NewNopLogger())
	assert.Error(t, err)
}

// =============================================================================
// OpenAI analyzer against a fake completions endpoint
// =============================================================================

func completionServer(t *testing.T, status int, content string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		prompts = append(prompts, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		resp := map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func newTestOpenAI(srv *httptest.Server) Analyzer {
	return NewOpenAIAnalyzer(config.AnalysisConfig{Provider: "openai", ApiKey: "test"}, commons.NewNopLogger(),
		option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
}

func TestOpenAIAnalyzer_Summarize(t *testing.T) {
	srv, prompts := completionServer(t, http.StatusOK, "  A short talk about Docker.  ")
	a := newTestOpenAI(srv)

	got, err := a.Summarize(context.Background(), msgs("we use docker"))
	require.NoError(t, err)
	assert.Equal(t, "A short talk about Docker.", got)
	require.Len(t, *prompts, 1)
	assert.Contains(t, (*prompts)[0], "we use docker")
	assert.Contains(t, (*prompts)[0], "gpt-4o-mini")
}

func TestOpenAIAnalyzer_AnalyzeParsesFencedJSON(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, "```json\n{\"topics\":[{\"topic\":\"Go\",\"weight\":0}],\"actionItems\":[{\"text\":\"send notes\"}],\"suggestedQuestions\":[\"why?\"]}\n```")
	a := newTestOpenAI(srv)

	got, err := a.Analyze(context.Background(), msgs("let's talk go"))
	require.NoError(t, err)
	require.Len(t, got.Topics, 1)
	assert.Equal(t, "Go", got.Topics[0].Label)
	assert.Equal(t, 1, got.Topics[0].Weight, "weights are clamped to at least 1")
	assert.Equal(t, "send notes", got.ActionItems[0].Text)
}

func TestOpenAIAnalyzer_FailureIsAnalysisFailed(t *testing.T) {
	srv, _ := completionServer(t, http.StatusInternalServerError, "")
	a := newTestOpenAI(srv)

	_, err := a.SuggestResponse(context.Background(), msgs("hi"), "hi")
	require.Error(t, err)
	assert.True(t, convo_errors.Is(err, convo_errors.ErrAnalysisFailed))

	srv2, _ := completionServer(t, http.StatusOK, "not json at all")
	_, err = newTestOpenAI(srv2).Analyze(context.Background(), msgs("hi"))
	assert.True(t, convo_errors.Is(err, convo_errors.ErrAnalysisFailed))
}
