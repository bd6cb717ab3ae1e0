// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

const (
	summaryStarted   = "Conversation started. Awaiting more dialogue to generate summary."
	summaryInterview = "Job interview for a senior developer position. The candidate has 5+ years of full-stack development experience with React and Node.js, and currently leads a team at TechSolutions. They have 3 years of experience with containerization (Docker, Kubernetes) and have led a migration from monolithic to microservices architecture. The interviewer is probing for specific examples of challenges faced during the migration."

	suggestionDefault    = "I don't have a specific suggestion for that question."
	suggestionChallenge  = "The biggest challenge during our microservices migration was maintaining system stability while incrementally transitioning services. We approached this by:\n\n• Creating a detailed dependency map to identify transition order\n• Implementing an API gateway pattern for routing\n• Using feature flags to control traffic between old and new services\n• Establishing comprehensive monitoring and alerting\n\nThis approach reduced downtime and allowed us to roll back quickly when issues arose."
	suggestionExperience = "My experience includes leading a team of 5 developers on a major microservices migration project. We successfully decomposed a monolithic application into 12 independent services, resulting in:\n\n• 40% improvement in deployment frequency\n• 60% reduction in mean time to recovery\n• Significant enhancement in our ability to scale individual components\n\nI've worked extensively with Docker, Kubernetes, and AWS ECS for orchestration."

	whisperDefault   = "I'll need more context to help you with that."
	whisperHelp      = "Try to provide specific examples from your experience that demonstrate the skills mentioned in the job description."
	whisperQuestion  = "When faced with a challenging question, take a moment to pause and structure your thoughts. Use the STAR method: Situation, Task, Action, Result."
	whisperTechnical = "For technical questions, demonstrate your depth of knowledge by explaining not just what you did, but why certain technical decisions were made and their trade-offs."
)

type keywordRule struct {
	keywords []string
	topics   []protocol.DetectedTopic
}

var keywordRules = []keywordRule{
	{[]string{"microservice", "service"}, []protocol.DetectedTopic{{Label: "Microservices", Weight: 5}}},
	{[]string{"kubernetes", "container", "docker"}, []protocol.DetectedTopic{{Label: "Kubernetes", Weight: 5}, {Label: "Docker", Weight: 4}}},
	{[]string{"react", "frontend", "ui"}, []protocol.DetectedTopic{{Label: "React", Weight: 3}}},
	{[]string{"node", "backend", "server"}, []protocol.DetectedTopic{{Label: "Node.js", Weight: 3}}},
	{[]string{"aws", "cloud"}, []protocol.DetectedTopic{{Label: "AWS", Weight: 3}}},
	{[]string{"lead", "team", "manage"}, []protocol.DetectedTopic{{Label: "Team Leadership", Weight: 3}}},
}

var suggestedQuestions = []string{
	"Could you elaborate on the technical challenges you faced?",
	"How did you measure the success of this project?",
	"What would you do differently next time?",
}

// keywordAnalyzer is a deterministic placeholder: substring matches over
// the joined history, no model involved.
type keywordAnalyzer struct {
	logger commons.Logger
}

func NewKeywordAnalyzer(logger commons.Logger) Analyzer {
	return &keywordAnalyzer{logger: logger}
}

func (k *keywordAnalyzer) Name() string { return "keyword" }

func joinText(messages []protocol.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (k *keywordAnalyzer) Summarize(ctx context.Context, messages []protocol.Message) (string, error) {
	switch {
	case len(messages) == 0:
		return "", nil
	case len(messages) <= 2:
		return summaryStarted, nil
	}
	// case sensitive on purpose: only lower-case mentions count
	if containsAny(joinText(messages), "microservice", "kubernetes", "docker") {
		return summaryInterview, nil
	}
	return fmt.Sprintf("Conversation with %d exchanges. Multiple topics discussed including development, infrastructure, and project experience.", len(messages)), nil
}

func (k *keywordAnalyzer) Analyze(ctx context.Context, messages []protocol.Message) (protocol.Analysis, error) {
	text := strings.ToLower(joinText(messages))
	analysis := protocol.Analysis{
		Topics:             []protocol.DetectedTopic{},
		ActionItems:        []protocol.DetectedActionItem{},
		SuggestedQuestions: append([]string(nil), suggestedQuestions...),
	}
	for _, rule := range keywordRules {
		if containsAny(text, rule.keywords...) {
			analysis.Topics = append(analysis.Topics, rule.topics...)
		}
	}
	if containsAny(text, "document", "documentation", "share") {
		analysis.ActionItems = append(analysis.ActionItems, protocol.DetectedActionItem{Text: "Share migration case study documentation"})
	}
	return analysis, nil
}

func (k *keywordAnalyzer) SuggestResponse(ctx context.Context, messages []protocol.Message, lastMessage string) (string, error) {
	last := strings.ToLower(lastMessage)
	switch {
	case strings.Contains(last, "challenge"):
		return suggestionChallenge, nil
	case strings.Contains(last, "experience"):
		return suggestionExperience, nil
	}
	return suggestionDefault, nil
}

func (k *keywordAnalyzer) Whisper(ctx context.Context, whisperText string, messages []protocol.Message) (string, error) {
	text := strings.ToLower(whisperText)
	switch {
	case strings.Contains(text, "help"):
		return whisperHelp, nil
	case strings.Contains(text, "question"):
		return whisperQuestion, nil
	case strings.Contains(text, "technical"):
		return whisperTechnical, nil
	}
	return whisperDefault, nil
}
