// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_coordinator

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
	"github.com/intelliconvo/pkg/utils"
)

type refreshJob struct {
	epoch     uint64
	gen       uint64
	sessionID int64
	messages  []protocol.Message
}

// refresh asks the analysis collaborator for summary, detections and a
// suggested reply over the full history. It never blocks the caller. A
// failed part keeps its previous value; a result older than one already
// applied is dropped.
func (c *Coordinator) refresh() {
	c.mu.Lock()
	if c.closed || len(c.view.messages) == 0 {
		c.mu.Unlock()
		return
	}
	c.refreshGen++
	job := refreshJob{
		epoch:     c.epoch,
		gen:       c.refreshGen,
		sessionID: c.sessionID,
		messages:  append([]protocol.Message(nil), c.view.messages...),
	}
	c.tasks.Add(1)
	c.mu.Unlock()

	utils.Go(context.Background(), c.logger, func(ctx context.Context) {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(ctx, c.cfg.AnalysisTimeout)
		defer cancel()
		c.runRefresh(ctx, job)
	})
}

func (c *Coordinator) runRefresh(ctx context.Context, job refreshJob) {
	start := time.Now()
	defer func() { c.logger.Benchmark("Coordinator.refresh", time.Since(start)) }()

	var g errgroup.Group
	g.Go(func() error { return c.refreshSummary(ctx, job) })
	g.Go(func() error { return c.refreshAnalysis(ctx, job) })
	g.Go(func() error { return c.refreshSuggestion(ctx, job) })
	if err := g.Wait(); err != nil {
		c.logger.Debugf("coordinator: refresh %d finished with errors", job.gen)
	}
}

// current reports whether job still belongs to the viewed session.
func (c *Coordinator) current(job refreshJob) bool {
	return !c.closed && job.epoch == c.epoch
}

func (c *Coordinator) refreshSummary(ctx context.Context, job refreshJob) error {
	summary, err := c.analysis.Summarize(ctx, job.messages)
	if err != nil {
		err = convo_errors.NewAnalysisFailed("summary", err)
		c.logger.Warnf("coordinator: %v", err)
		return err
	}

	c.mu.Lock()
	if !c.current(job) || job.gen <= c.summaryGen {
		c.mu.Unlock()
		return nil
	}
	c.summaryGen = job.gen
	c.view.summary = summary
	c.view.session.Summary = summary
	sessionID := c.sessionID
	c.bus.Publish(ChangeSummary, Change{Kind: ChangeSummary, Summary: summary})
	c.mu.Unlock()

	if sessionID > 0 {
		if err := c.storage.UpdateSummary(ctx, sessionID, summary); err != nil {
			c.logger.Warnf("coordinator: write back summary of session %d failed: %v", sessionID, err)
		}
	}
	return nil
}

func (c *Coordinator) refreshSuggestion(ctx context.Context, job refreshJob) error {
	last := job.messages[len(job.messages)-1].Text
	suggestion, err := c.analysis.SuggestResponse(ctx, job.messages, last)
	if err != nil {
		err = convo_errors.NewAnalysisFailed("suggest response", err)
		c.logger.Warnf("coordinator: %v", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(job) || job.gen <= c.suggestionGen {
		return nil
	}
	c.suggestionGen = job.gen
	c.view.suggestion = suggestion
	c.bus.Publish(ChangeSuggestion, Change{Kind: ChangeSuggestion, Suggestion: suggestion})
	return nil
}

type topicDelta struct {
	label  string
	weight int
}

// refreshAnalysis stores what the analysis detected. Topic weights are
// absolute over the history, so only the growth since the last detection is
// submitted. Action items already present are skipped.
func (c *Coordinator) refreshAnalysis(ctx context.Context, job refreshJob) error {
	result, err := c.analysis.Analyze(ctx, job.messages)
	if err != nil {
		err = convo_errors.NewAnalysisFailed("analyze", err)
		c.logger.Warnf("coordinator: %v", err)
		return err
	}

	c.mu.Lock()
	if !c.current(job) || job.gen <= c.analysisGen {
		c.mu.Unlock()
		return nil
	}
	c.analysisGen = job.gen
	c.view.questions = append([]string(nil), result.SuggestedQuestions...)
	c.bus.Publish(ChangeSuggestion, Change{Kind: ChangeSuggestion, Suggestion: c.view.suggestion, Questions: c.view.questions})

	sessionID := c.sessionID
	if sessionID <= 0 {
		c.mu.Unlock()
		return nil
	}
	var topics []topicDelta
	for _, t := range result.Topics {
		key := protocol.TopicKey(t.Label)
		delta := t.Weight - c.view.topicWeight(t.Label) - c.topicInflight[key]
		if delta > 0 {
			c.topicInflight[key] += delta
			topics = append(topics, topicDelta{label: t.Label, weight: delta})
		}
	}
	var items []string
	for _, a := range result.ActionItems {
		key := strings.ToLower(strings.TrimSpace(a.Text))
		if key == "" || c.itemInflight[key] || c.view.hasActionItemText(a.Text) {
			continue
		}
		c.itemInflight[key] = true
		items = append(items, a.Text)
	}
	c.mu.Unlock()

	for _, t := range topics {
		c.submitTopic(ctx, job.epoch, sessionID, t)
	}
	for _, text := range items {
		c.submitDetectedItem(ctx, job.epoch, sessionID, text)
	}
	return nil
}

func (c *Coordinator) submitTopic(ctx context.Context, epoch uint64, sessionID int64, t topicDelta) {
	topic, err := c.storage.AddTopic(ctx, sessionID, t.label, t.weight)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.topicInflight[protocol.TopicKey(t.label)] -= t.weight
	if err != nil {
		c.logger.Warnf("coordinator: store topic %q failed: %v", t.label, err)
		c.provisional--
		local := c.view.addLocalTopic(t.label, t.weight, c.provisional)
		c.bus.Publish(ChangeTopic, Change{Kind: ChangeTopic, Topic: &local})
		return
	}
	if c.view.mergeTopic(topic, true) != mergeIgnored {
		c.bus.Publish(ChangeTopic, Change{Kind: ChangeTopic, Topic: &topic})
	}
}

func (c *Coordinator) submitDetectedItem(ctx context.Context, epoch uint64, sessionID int64, text string) {
	item, err := c.storage.CreateActionItem(ctx, protocol.ActionItem{SessionID: sessionID, Text: text})

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	delete(c.itemInflight, strings.ToLower(strings.TrimSpace(text)))
	if err != nil {
		c.logger.Warnf("coordinator: store action item %q failed: %v", text, err)
		c.provisional--
		item = protocol.ActionItem{ID: c.provisional, SessionID: sessionID, Text: text}
	}
	if c.view.mergeActionItem(item, false) != mergeIgnored {
		c.bus.Publish(ChangeActionItem, Change{Kind: ChangeActionItem, ActionItem: &item})
	}
}
