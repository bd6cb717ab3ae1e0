// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

type ExportFormat string

const (
	ExportText     ExportFormat = "text"
	ExportMarkdown ExportFormat = "markdown"
	ExportJSON     ExportFormat = "json"
)

type ExportOptions struct {
	Format             ExportFormat
	IncludeTranscript  bool
	IncludeSummary     bool
	IncludeActionItems bool
	IncludeTopics      bool
}

func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:             ExportMarkdown,
		IncludeTranscript:  true,
		IncludeSummary:     true,
		IncludeActionItems: true,
	}
}

// Export renders the current view.
func (c *Coordinator) Export(opts ExportOptions) ([]byte, error) {
	return opts.Render(c.View())
}

func (opts ExportOptions) Render(v View) ([]byte, error) {
	switch opts.Format {
	case ExportText:
		return opts.renderText(v), nil
	case ExportMarkdown, "":
		return opts.renderMarkdown(v), nil
	case ExportJSON:
		return opts.renderJSON(v)
	}
	return nil, convo_errors.NewInvalidRequest(fmt.Sprintf("unsupported export format %q", opts.Format))
}

func speaker(m protocol.Message) string {
	if m.SpeakerName != nil && *m.SpeakerName != "" {
		return *m.SpeakerName
	}
	if m.SpeakerType == protocol.SpeakerOther {
		return "Other"
	}
	return "You"
}

func (opts ExportOptions) renderText(v View) []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, v.Session.Title)
	if opts.IncludeSummary && v.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", v.Summary)
	}
	if opts.IncludeTopics && len(v.Topics) > 0 {
		fmt.Fprintln(&b, "\nTopics:")
		for _, t := range v.Topics {
			fmt.Fprintf(&b, "  %s (%d)\n", t.Label, t.Weight)
		}
	}
	if opts.IncludeActionItems && len(v.ActionItems) > 0 {
		fmt.Fprintln(&b, "\nAction items:")
		for _, a := range v.ActionItems {
			mark := " "
			if a.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s\n", mark, a.Text)
		}
	}
	if opts.IncludeTranscript && len(v.Messages) > 0 {
		fmt.Fprintln(&b, "\nTranscript:")
		for _, m := range v.Messages {
			fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), speaker(m), m.Text)
		}
	}
	return b.Bytes()
}

func (opts ExportOptions) renderMarkdown(v View) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", v.Session.Title)
	if opts.IncludeSummary && v.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", v.Summary)
	}
	if opts.IncludeTopics && len(v.Topics) > 0 {
		b.WriteString("\n## Topics\n\n")
		for _, t := range v.Topics {
			fmt.Fprintf(&b, "- %s (%d)\n", t.Label, t.Weight)
		}
	}
	if opts.IncludeActionItems && len(v.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n\n")
		for _, a := range v.ActionItems {
			mark := " "
			if a.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, a.Text)
		}
	}
	if opts.IncludeTranscript && len(v.Messages) > 0 {
		b.WriteString("\n## Transcript\n\n")
		for _, m := range v.Messages {
			fmt.Fprintf(&b, "**%s** _%s_: %s\n\n", speaker(m), m.Timestamp.Format("15:04:05"), m.Text)
		}
	}
	return []byte(b.String())
}

type jsonExport struct {
	Session     protocol.Session      `json:"session"`
	Summary     string                `json:"summary,omitempty"`
	Topics      []protocol.Topic      `json:"topics,omitempty"`
	ActionItems []protocol.ActionItem `json:"actionItems,omitempty"`
	Messages    []protocol.Message    `json:"messages,omitempty"`
}

func (opts ExportOptions) renderJSON(v View) ([]byte, error) {
	out := jsonExport{Session: v.Session}
	if opts.IncludeSummary {
		out.Summary = v.Summary
	}
	if opts.IncludeTopics {
		out.Topics = v.Topics
	}
	if opts.IncludeActionItems {
		out.ActionItems = v.ActionItems
	}
	if opts.IncludeTranscript {
		out.Messages = v.Messages
	}
	return json.MarshalIndent(out, "", "  ")
}
