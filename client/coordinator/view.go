// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_coordinator

import (
	"strings"

	"github.com/intelliconvo/pkg/protocol"
)

// View is a point-in-time copy of the coordinator's projection.
type View struct {
	Session            protocol.Session
	Messages           []protocol.Message
	Topics             []protocol.Topic
	ActionItems        []protocol.ActionItem
	Summary            string
	Suggestion         string
	SuggestedQuestions []string
}

type mergeResult int

const (
	mergeIgnored mergeResult = iota
	mergeAdded
	mergeReplaced
)

// view holds the merged entities. Entities with a negative id exist only
// locally; their canonical id is not known yet.
type view struct {
	session     protocol.Session
	messages    []protocol.Message
	topics      []protocol.Topic
	actionItems []protocol.ActionItem
	summary     string
	suggestion  string
	questions   []string
}

func (v *view) copy() View {
	return View{
		Session:            v.session,
		Messages:           append([]protocol.Message(nil), v.messages...),
		Topics:             append([]protocol.Topic(nil), v.topics...),
		ActionItems:        append([]protocol.ActionItem(nil), v.actionItems...),
		Summary:            v.summary,
		Suggestion:         v.suggestion,
		SuggestedQuestions: append([]string(nil), v.questions...),
	}
}

func (v *view) reset(session protocol.Session) {
	*v = view{session: session, summary: session.Summary}
}

// =============================================================================
// Messages
// =============================================================================

// mergeMessage applies a message creation. A known id is ignored. A message
// carrying the client ref of a provisional entry replaces that entry.
func (v *view) mergeMessage(m protocol.Message) mergeResult {
	if m.ID != 0 && v.messageIndex(m.ID) >= 0 {
		return mergeIgnored
	}
	if m.ClientRef != "" {
		for i, existing := range v.messages {
			if existing.ClientRef == m.ClientRef && existing.ID < 0 {
				v.messages = append(v.messages[:i], v.messages[i+1:]...)
				v.insertMessage(m)
				return mergeReplaced
			}
		}
	}
	v.insertMessage(m)
	return mergeAdded
}

// insertMessage keeps messages ordered by timestamp; equal timestamps keep
// arrival order.
func (v *view) insertMessage(m protocol.Message) {
	i := len(v.messages)
	for i > 0 && v.messages[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	v.messages = append(v.messages, protocol.Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = m
}

func (v *view) messageIndex(id int64) int {
	for i, m := range v.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (v *view) setMessageSession(clientRef string, sessionID int64) {
	for i := range v.messages {
		if v.messages[i].ClientRef == clientRef {
			v.messages[i].SessionID = sessionID
		}
	}
}

// =============================================================================
// Topics
// =============================================================================

// mergeTopic applies a topic from the server. A known id only changes on an
// update; a known label is always an update, never a second topic.
func (v *view) mergeTopic(t protocol.Topic, update bool) mergeResult {
	if i := v.topicIndex(t.ID); i >= 0 {
		if !update {
			return mergeIgnored
		}
		v.topics[i] = t
		return mergeReplaced
	}
	if i := v.topicLabelIndex(t.Label); i >= 0 {
		v.topics[i] = t
		return mergeReplaced
	}
	v.topics = append(v.topics, t)
	return mergeAdded
}

// addLocalTopic records a detection storage did not accept.
func (v *view) addLocalTopic(label string, weight int, provisionalID int64) protocol.Topic {
	if i := v.topicLabelIndex(label); i >= 0 {
		v.topics[i].Weight += weight
		return v.topics[i]
	}
	t := protocol.Topic{ID: provisionalID, SessionID: v.session.ID, Label: label, Weight: weight}
	v.topics = append(v.topics, t)
	return t
}

func (v *view) topicIndex(id int64) int {
	for i, t := range v.topics {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (v *view) topicLabelIndex(label string) int {
	key := protocol.TopicKey(label)
	for i, t := range v.topics {
		if protocol.TopicKey(t.Label) == key {
			return i
		}
	}
	return -1
}

func (v *view) topicWeight(label string) int {
	if i := v.topicLabelIndex(label); i >= 0 {
		return v.topics[i].Weight
	}
	return 0
}

// =============================================================================
// Action Items
// =============================================================================

func (v *view) mergeActionItem(a protocol.ActionItem, update bool) mergeResult {
	if i := v.actionItemIndex(a.ID); i >= 0 {
		if !update {
			return mergeIgnored
		}
		v.actionItems[i] = a
		return mergeReplaced
	}
	v.actionItems = append(v.actionItems, a)
	return mergeAdded
}

func (v *view) actionItemIndex(id int64) int {
	for i, a := range v.actionItems {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (v *view) hasActionItemText(text string) bool {
	text = strings.TrimSpace(text)
	for _, a := range v.actionItems {
		if strings.EqualFold(strings.TrimSpace(a.Text), text) {
			return true
		}
	}
	return false
}

// mergeSnapshot folds a session_data snapshot into the view. The snapshot
// is canonical for topics and action items.
func (v *view) mergeSnapshot(s protocol.Snapshot) (messagesAdded bool) {
	v.session = s.Session
	if v.summary == "" {
		v.summary = s.Session.Summary
	}
	for _, m := range s.Messages {
		if v.mergeMessage(m) == mergeAdded {
			messagesAdded = true
		}
	}
	for _, t := range s.Topics {
		v.mergeTopic(t, true)
	}
	for _, a := range s.ActionItems {
		v.mergeActionItem(a, true)
	}
	return messagesAdded
}
