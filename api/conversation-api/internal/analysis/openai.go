// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

const (
	systemSummarize = "You summarize live conversations. Reply with two or three plain sentences, no preamble."
	systemAnalyze   = `You extract structure from a live conversation. Reply with JSON only, shaped as {"topics":[{"topic":string,"weight":1-5}],"actionItems":[{"text":string}],"suggestedQuestions":[string]}.`
	systemSuggest   = "You help the user answer the last thing said in a conversation. Reply with a short suggested answer in first person."
	systemWhisper   = "You are a discreet assistant whispering advice to the user during a live conversation. Reply in one or two sentences."
)

type openaiAnalyzer struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
	logger  commons.Logger
}

func NewOpenAIAnalyzer(cfg config.AnalysisConfig, logger commons.Logger, opts ...option.RequestOption) Analyzer {
	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &openaiAnalyzer{
		client:  openai.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.ApiKey)}, opts...)...),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

func (o *openaiAnalyzer) Name() string { return "openai" }

func transcript(messages []protocol.Message) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := "Other"
		if m.SpeakerType == protocol.SpeakerSelf {
			speaker = "Me"
		}
		if m.SpeakerName != nil && *m.SpeakerName != "" {
			speaker = *m.SpeakerName
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Text)
	}
	return b.String()
}

func (o *openaiAnalyzer) complete(ctx context.Context, op, system, user string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: o.model,
	})
	if err != nil {
		return "", convo_errors.NewAnalysisFailed(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", convo_errors.NewAnalysisFailed(op, fmt.Errorf("empty completion"))
	}
	o.logger.Benchmark("OpenAIAnalyzer."+op, time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *openaiAnalyzer) Summarize(ctx context.Context, messages []protocol.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	return o.complete(ctx, "summarize", systemSummarize, transcript(messages))
}

func (o *openaiAnalyzer) Analyze(ctx context.Context, messages []protocol.Message) (protocol.Analysis, error) {
	if len(messages) == 0 {
		return protocol.Analysis{Topics: []protocol.DetectedTopic{}, ActionItems: []protocol.DetectedActionItem{}, SuggestedQuestions: []string{}}, nil
	}
	content, err := o.complete(ctx, "analyze", systemAnalyze, transcript(messages))
	if err != nil {
		return protocol.Analysis{}, err
	}
	var analysis protocol.Analysis
	if err := json.Unmarshal([]byte(extractJSON(content)), &analysis); err != nil {
		return protocol.Analysis{}, convo_errors.NewAnalysisFailed("analyze", fmt.Errorf("decode model output: %w", err))
	}
	for i := range analysis.Topics {
		if analysis.Topics[i].Weight < 1 {
			analysis.Topics[i].Weight = 1
		}
	}
	return analysis, nil
}

func (o *openaiAnalyzer) SuggestResponse(ctx context.Context, messages []protocol.Message, lastMessage string) (string, error) {
	user := transcript(messages) + "\nLast message: " + lastMessage
	return o.complete(ctx, "suggest response", systemSuggest, user)
}

func (o *openaiAnalyzer) Whisper(ctx context.Context, whisperText string, messages []protocol.Message) (string, error) {
	user := transcript(messages) + "\nQuestion from the user: " + whisperText
	return o.complete(ctx, "whisper", systemWhisper, user)
}

// extractJSON trims code fences or chatter around the first JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
