// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_analysis

import (
	"context"
	"fmt"

	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

// Analyzer derives summary, topics, action items and suggestions from the
// full message history. Implementations are best effort.
type Analyzer interface {
	Name() string
	Summarize(ctx context.Context, messages []protocol.Message) (string, error)
	Analyze(ctx context.Context, messages []protocol.Message) (protocol.Analysis, error)
	SuggestResponse(ctx context.Context, messages []protocol.Message, lastMessage string) (string, error)
	Whisper(ctx context.Context, whisperText string, messages []protocol.Message) (string, error)
}

func NewAnalyzer(cfg config.AnalysisConfig, logger commons.Logger) (Analyzer, error) {
	switch cfg.Provider {
	case "", "keyword":
		return NewKeywordAnalyzer(logger), nil
	case "openai":
		return NewOpenAIAnalyzer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider %q", cfg.Provider)
	}
}
