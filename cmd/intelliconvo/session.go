// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	client_channel "github.com/intelliconvo/client/channel"
	client_coordinator "github.com/intelliconvo/client/coordinator"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

// liveSession is a connected channel plus the coordinator driving it.
type liveSession struct {
	channel     *client_channel.Channel
	coordinator *client_coordinator.Coordinator
}

func openSession(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (*liveSession, error) {
	url, err := client_channel.WebsocketURL(cfg.Client.ServerURL, cfg.WebSocket.Path)
	if err != nil {
		return nil, err
	}
	clk := clock.New()
	ch := client_channel.New(client_channel.Config{
		URL:                  url,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Client.ReconnectDelay,
	}, client_channel.WebsocketDialer{ReadLimit: cfg.WebSocket.ReadLimit}, clk, logger)

	rest := restClient(cfg, logger)
	coordCfg := client_coordinator.DefaultConfig()
	coordCfg.AnalysisTimeout = cfg.Analysis.Timeout
	coord := client_coordinator.New(coordCfg, rest, rest, ch, clk, logger)

	if err := ch.Connect(ctx); err != nil {
		// the channel keeps retrying on its own; local work still proceeds
		logger.Warnf("session channel: %v", err)
	}
	return &liveSession{channel: ch, coordinator: coord}, nil
}

func (s *liveSession) Close() {
	s.coordinator.Close()
	s.channel.Close()
}

// printChanges writes one line per view change until dispose is called.
func printChanges(w io.Writer, c *client_coordinator.Coordinator) (dispose func()) {
	kinds := []client_coordinator.ChangeKind{
		client_coordinator.ChangeSession,
		client_coordinator.ChangeMessage,
		client_coordinator.ChangeTopic,
		client_coordinator.ChangeActionItem,
		client_coordinator.ChangeSummary,
		client_coordinator.ChangeSuggestion,
		client_coordinator.ChangeConnection,
	}
	disposers := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		disposers = append(disposers, c.Subscribe(k, func(ch client_coordinator.Change) {
			if line := describe(ch); line != "" {
				fmt.Fprintln(w, line)
			}
		}))
	}
	return func() {
		for _, d := range disposers {
			d()
		}
	}
}

func describe(ch client_coordinator.Change) string {
	switch ch.Kind {
	case client_coordinator.ChangeSession:
		if ch.Session != nil {
			return fmt.Sprintf("session %d: %s", ch.Session.ID, ch.Session.Title)
		}
	case client_coordinator.ChangeMessage:
		if m := ch.Message; m != nil {
			who := "you"
			if m.SpeakerType == protocol.SpeakerOther {
				who = "other"
			}
			if m.SpeakerName != nil && *m.SpeakerName != "" {
				who = *m.SpeakerName
			}
			return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("15:04:05"), who, m.Text)
		}
	case client_coordinator.ChangeTopic:
		if t := ch.Topic; t != nil {
			return fmt.Sprintf("topic %s (%d)", t.Label, t.Weight)
		}
	case client_coordinator.ChangeActionItem:
		if a := ch.ActionItem; a != nil {
			mark := " "
			if a.Completed {
				mark = "x"
			}
			return fmt.Sprintf("action [%s] %s", mark, a.Text)
		}
	case client_coordinator.ChangeSummary:
		return "summary: " + ch.Summary
	case client_coordinator.ChangeSuggestion:
		var b strings.Builder
		if ch.Suggestion != "" {
			b.WriteString("suggestion: " + ch.Suggestion)
		}
		for _, q := range ch.Questions {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("  ? " + q)
		}
		return b.String()
	case client_coordinator.ChangeConnection:
		if ch.Connected {
			return "-- connected"
		}
		return "-- disconnected"
	}
	return ""
}
