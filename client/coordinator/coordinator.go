// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package client_coordinator owns one live session view. It merges what the
// local capture pipeline produces with what the session channel relays, and
// keeps summary, suggestions and detections current through the analysis
// collaborator.
package client_coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	client_capture "github.com/intelliconvo/client/capture"
	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/observer"
	"github.com/intelliconvo/pkg/protocol"
	"github.com/intelliconvo/pkg/utils"
)

var ErrCoordinatorClosed = errors.New("session coordinator closed")

// Storage is the subset of the conversation server the coordinator writes to.
type Storage interface {
	CreateSession(ctx context.Context, title string) (protocol.Session, error)
	UpdateSummary(ctx context.Context, sessionID int64, summary string) error
	Snapshot(ctx context.Context, sessionID int64) (protocol.Snapshot, error)
	CreateMessage(ctx context.Context, msg protocol.Message) (protocol.Message, error)
	AddTopic(ctx context.Context, sessionID int64, label string, weight int) (protocol.Topic, error)
	CreateActionItem(ctx context.Context, item protocol.ActionItem) (protocol.ActionItem, error)
	UpdateActionItem(ctx context.Context, id int64, req protocol.UpdateActionItemRequest) (protocol.ActionItem, error)
}

type Analysis interface {
	Summarize(ctx context.Context, messages []protocol.Message) (string, error)
	Analyze(ctx context.Context, messages []protocol.Message) (protocol.Analysis, error)
	SuggestResponse(ctx context.Context, messages []protocol.Message, lastMessage string) (string, error)
	Whisper(ctx context.Context, text string, messages []protocol.Message) (string, error)
}

type Channel interface {
	Subscribe(t protocol.MessageType, fn func(protocol.Frame)) (dispose func())
	JoinSession(sessionID int64) bool
	Send(t protocol.MessageType, frame protocol.Frame) bool
}

type Recorder interface {
	Subscribe(kind client_capture.EventKind, fn func(client_capture.Event)) (dispose func())
}

// =============================================================================
// Changes
// =============================================================================

type ChangeKind int

const (
	ChangeSession ChangeKind = iota
	ChangeMessage
	ChangeTopic
	ChangeActionItem
	ChangeSummary
	ChangeSuggestion
	ChangeConnection
)

// Change describes one update of the view. Only the field matching Kind is
// set.
type Change struct {
	Kind       ChangeKind
	Session    *protocol.Session
	Message    *protocol.Message
	Topic      *protocol.Topic
	ActionItem *protocol.ActionItem
	Summary    string
	Suggestion string
	Questions  []string
	Connected  bool
}

// =============================================================================
// Coordinator
// =============================================================================

type Config struct {
	// Title names sessions created on first audio or first local message.
	Title           func(now time.Time) string
	AnalysisTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Title:           func(now time.Time) string { return "Conversation " + now.Format("Jan 2, 2006 3:04 PM") },
		AnalysisTimeout: 30 * time.Second,
	}
}

type Coordinator struct {
	cfg      Config
	storage  Storage
	analysis Analysis
	channel  Channel
	clock    clock.Clock
	logger   commons.Logger
	bus      *observer.Bus[ChangeKind, Change]

	mu          sync.Mutex
	view        view
	sessionID   int64
	creating    bool
	pending     []protocol.Message // local messages waiting for a session id
	provisional int64

	// epoch changes when the view switches sessions; refreshGen orders
	// analysis results within an epoch
	epoch         uint64
	refreshGen    uint64
	summaryGen    uint64
	analysisGen   uint64
	suggestionGen uint64
	topicInflight map[string]int
	itemInflight  map[string]bool

	disposers []func()
	tasks     sync.WaitGroup
	closed    bool
}

func New(cfg Config, storage Storage, analysis Analysis, channel Channel, clk clock.Clock, logger commons.Logger) *Coordinator {
	if cfg.Title == nil {
		cfg.Title = DefaultConfig().Title
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultConfig().AnalysisTimeout
	}
	c := &Coordinator{
		cfg:           cfg,
		storage:       storage,
		analysis:      analysis,
		channel:       channel,
		clock:         clk,
		logger:        logger,
		bus:           observer.NewAsync[ChangeKind, Change](),
		topicInflight: make(map[string]int),
		itemInflight:  make(map[string]bool),
	}
	c.disposers = append(c.disposers,
		channel.Subscribe(protocol.TypeConnectionStatus, c.onConnectionStatus),
		channel.Subscribe(protocol.TypeSessionData, c.onSessionData),
		channel.Subscribe(protocol.TypeNewMessage, c.onNewMessage),
		channel.Subscribe(protocol.TypeNewTopic, func(f protocol.Frame) { c.onTopic(f, false) }),
		channel.Subscribe(protocol.TypeUpdatedTopic, func(f protocol.Frame) { c.onTopic(f, true) }),
		channel.Subscribe(protocol.TypeNewActionItem, func(f protocol.Frame) { c.onActionItem(f, false) }),
		channel.Subscribe(protocol.TypeUpdatedActionItem, func(f protocol.Frame) { c.onActionItem(f, true) }),
		channel.Subscribe(protocol.TypeError, c.onError),
	)
	return c
}

// AttachRecorder creates the session on the first recorded chunk when there
// is none yet.
func (c *Coordinator) AttachRecorder(rec Recorder) {
	dispose := rec.Subscribe(client_capture.EventChunkAvailable, c.onChunk)
	c.mu.Lock()
	c.disposers = append(c.disposers, dispose)
	c.mu.Unlock()
}

func (c *Coordinator) Subscribe(kind ChangeKind, fn func(Change)) (dispose func()) {
	return c.bus.Subscribe(kind, fn)
}

// Flush waits for delivery of every change published so far.
func (c *Coordinator) Flush() {
	c.bus.Flush()
}

// Wait blocks until background work (session creation, analysis refresh)
// started so far has finished.
func (c *Coordinator) Wait() {
	c.tasks.Wait()
}

func (c *Coordinator) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.copy()
}

// Close detaches from the channel and recorder and waits for background work.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	c.tasks.Wait()
	c.bus.Close()
}

// =============================================================================
// Session lifecycle
// =============================================================================

// StartSession creates a session in storage and joins it. Local messages
// buffered so far are flushed into it.
func (c *Coordinator) StartSession(ctx context.Context, title string) (protocol.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Session{}, ErrCoordinatorClosed
	}
	if c.sessionID > 0 {
		s := c.view.session
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()
	return c.createSession(ctx, title)
}

// JoinSession switches the view to an existing session. The view is reset
// and refilled from storage and the channel snapshot.
func (c *Coordinator) JoinSession(ctx context.Context, sessionID int64) error {
	if sessionID <= 0 {
		return convo_errors.NewInvalidRequest("session id must be positive")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.sessionID = sessionID
	c.epoch++
	c.topicInflight = make(map[string]int)
	c.itemInflight = make(map[string]bool)
	c.view.reset(protocol.Session{ID: sessionID})
	// messages typed before any session existed move into this one
	pending := c.pending
	c.pending = nil
	for _, m := range pending {
		m.SessionID = sessionID
		c.view.mergeMessage(m)
	}
	c.mu.Unlock()

	if !c.channel.JoinSession(sessionID) {
		c.logger.Warnf("coordinator: %v", convo_errors.NewTransportDisconnected(nil))
	}
	c.flush(ctx, sessionID, pending)

	snap, err := c.storage.Snapshot(ctx, sessionID)
	if err != nil {
		c.logger.Warnf("coordinator: snapshot of session %d failed: %v", sessionID, err)
		return err
	}
	c.applySnapshot(snap)
	return nil
}

// ensureSession creates the session unless one exists or is being created.
func (c *Coordinator) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sessionID > 0 || c.creating || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.creating = true
	c.mu.Unlock()
	_, err := c.finishCreate(ctx, c.cfg.Title(c.clock.Now()))
	return err
}

func (c *Coordinator) createSession(ctx context.Context, title string) (protocol.Session, error) {
	c.mu.Lock()
	if c.creating {
		c.mu.Unlock()
		return protocol.Session{}, convo_errors.NewInvalidRequest("session creation already in progress")
	}
	c.creating = true
	c.mu.Unlock()
	if title == "" {
		title = c.cfg.Title(c.clock.Now())
	}
	return c.finishCreate(ctx, title)
}

// finishCreate runs with creating set. On success it joins the new session
// and flushes the buffered messages into it.
func (c *Coordinator) finishCreate(ctx context.Context, title string) (protocol.Session, error) {
	session, err := c.storage.CreateSession(ctx, title)

	c.mu.Lock()
	c.creating = false
	if err != nil {
		buffered := len(c.pending)
		c.mu.Unlock()
		c.logger.Errorf("coordinator: create session failed, %d messages stay buffered: %v", buffered, err)
		return protocol.Session{}, err
	}
	if c.sessionID > 0 {
		// joined another session while creating
		c.mu.Unlock()
		return session, nil
	}
	c.sessionID = session.ID
	c.view.session = session
	pending := c.pending
	c.pending = nil
	for _, m := range pending {
		c.view.setMessageSession(m.ClientRef, session.ID)
	}
	s := session
	c.bus.Publish(ChangeSession, Change{Kind: ChangeSession, Session: &s})
	c.mu.Unlock()

	c.logger.Infof("coordinator: created session %d %q", session.ID, session.Title)
	if !c.channel.JoinSession(session.ID) {
		c.logger.Debugf("coordinator: channel not connected, session %d joins on reconnect", session.ID)
	}
	c.flush(ctx, session.ID, pending)
	c.refresh()
	return session, nil
}

func (c *Coordinator) flush(ctx context.Context, sessionID int64, pending []protocol.Message) {
	for _, m := range pending {
		m.SessionID = sessionID
		c.submitMessage(ctx, m)
	}
}

// =============================================================================
// Local operations
// =============================================================================

// AddMessage appends a locally transcribed utterance. It appears in the view
// immediately under a provisional id. Without a session the message is
// buffered and a session is created. A storage error is returned but the
// message stays in the view.
func (c *Coordinator) AddMessage(ctx context.Context, text string, speaker protocol.SpeakerType, speakerName *string) (protocol.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.Message{}, convo_errors.NewInvalidRequest("message text is empty")
	}
	if speaker == "" {
		speaker = protocol.SpeakerSelf
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Message{}, ErrCoordinatorClosed
	}
	c.provisional--
	msg := protocol.Message{
		ID:          c.provisional,
		SessionID:   c.sessionID,
		Text:        text,
		SpeakerType: speaker,
		SpeakerName: speakerName,
		Timestamp:   c.clock.Now(),
		ClientRef:   uuid.NewString(),
	}
	c.view.mergeMessage(msg)
	local := msg
	c.bus.Publish(ChangeMessage, Change{Kind: ChangeMessage, Message: &local})
	hasSession := c.sessionID > 0
	if !hasSession {
		c.pending = append(c.pending, msg)
	}
	c.mu.Unlock()
	c.refresh()

	if !hasSession {
		return msg, c.ensureSession(ctx)
	}
	return c.submitMessage(ctx, msg)
}

// submitMessage stores msg. When storage fails it falls back to relaying the
// message over the channel, where the server stores it.
func (c *Coordinator) submitMessage(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	req := msg
	req.ID = 0
	saved, err := c.storage.CreateMessage(ctx, req)
	if err != nil {
		c.logger.Warnf("coordinator: store message %s failed: %v", msg.ClientRef, err)
		if c.channel.Send(protocol.TypeNewMessage, protocol.Frame{Message: &req}) {
			c.logger.Infof("coordinator: message %s relayed over the channel", msg.ClientRef)
		}
		return msg, err
	}
	if saved.ClientRef == "" {
		saved.ClientRef = msg.ClientRef
	}

	c.mu.Lock()
	if saved.SessionID == c.sessionID && c.view.mergeMessage(saved) == mergeReplaced {
		m := saved
		c.bus.Publish(ChangeMessage, Change{Kind: ChangeMessage, Message: &m})
	}
	c.mu.Unlock()
	return saved, nil
}

// AddActionItem records a manually entered action item.
func (c *Coordinator) AddActionItem(ctx context.Context, text string, sourceMessageID *int64) (protocol.ActionItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.ActionItem{}, convo_errors.NewInvalidRequest("action item text is empty")
	}
	if err := c.ensureSession(ctx); err != nil {
		return c.addLocalActionItem(text, sourceMessageID), err
	}
	sessionID := c.SessionID()
	if sessionID <= 0 {
		return c.addLocalActionItem(text, sourceMessageID), convo_errors.NewInvalidRequest("session is being created")
	}

	item, err := c.storage.CreateActionItem(ctx, protocol.ActionItem{SessionID: sessionID, SourceMessageID: sourceMessageID, Text: text})
	if err != nil {
		c.logger.Warnf("coordinator: store action item failed: %v", err)
		return c.addLocalActionItem(text, sourceMessageID), err
	}
	c.applyActionItem(item, false)
	return item, nil
}

func (c *Coordinator) addLocalActionItem(text string, sourceMessageID *int64) protocol.ActionItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provisional--
	item := protocol.ActionItem{ID: c.provisional, SessionID: c.sessionID, SourceMessageID: sourceMessageID, Text: text}
	c.view.mergeActionItem(item, false)
	a := item
	c.bus.Publish(ChangeActionItem, Change{Kind: ChangeActionItem, ActionItem: &a})
	return item
}

// ToggleActionItem flips the completed flag. Items without a canonical id
// or rejected by storage are toggled locally.
func (c *Coordinator) ToggleActionItem(ctx context.Context, id int64) (protocol.ActionItem, error) {
	c.mu.Lock()
	i := c.view.actionItemIndex(id)
	if i < 0 {
		c.mu.Unlock()
		return protocol.ActionItem{}, convo_errors.NewNotFound("action item", id)
	}
	toggled := c.view.actionItems[i]
	toggled.Completed = !toggled.Completed
	c.mu.Unlock()

	if id < 0 {
		c.applyActionItem(toggled, true)
		return toggled, nil
	}
	completed := toggled.Completed
	item, err := c.storage.UpdateActionItem(ctx, id, protocol.UpdateActionItemRequest{Completed: &completed})
	if err != nil {
		c.logger.Warnf("coordinator: update action item %d failed: %v", id, err)
		c.applyActionItem(toggled, true)
		return toggled, err
	}
	c.applyActionItem(item, true)
	return item, nil
}

// Whisper asks the assistant an ad-hoc question about the conversation.
func (c *Coordinator) Whisper(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", convo_errors.NewInvalidRequest("whisper text is empty")
	}
	messages := c.View().Messages
	answer, err := c.analysis.Whisper(ctx, text, messages)
	if err != nil {
		err = convo_errors.NewAnalysisFailed("whisper", err)
		c.logger.Warnf("coordinator: %v", err)
		return "", err
	}
	return answer, nil
}

// =============================================================================
// Inbound
// =============================================================================

func (c *Coordinator) onChunk(client_capture.Event) {
	c.mu.Lock()
	start := c.sessionID == 0 && !c.creating && !c.closed
	if start {
		c.tasks.Add(1)
	}
	c.mu.Unlock()
	if !start {
		return
	}
	utils.Go(context.Background(), c.logger, func(ctx context.Context) {
		defer c.tasks.Done()
		c.ensureSession(ctx)
	})
}

// onConnectionStatus rejoins the current session after every reconnect.
func (c *Coordinator) onConnectionStatus(f protocol.Frame) {
	connected := f.Connected != nil && *f.Connected
	c.mu.Lock()
	sessionID := c.sessionID
	c.bus.Publish(ChangeConnection, Change{Kind: ChangeConnection, Connected: connected})
	c.mu.Unlock()

	if connected && sessionID > 0 {
		c.logger.Debugf("coordinator: rejoining session %d", sessionID)
		c.channel.JoinSession(sessionID)
	}
}

func (c *Coordinator) onSessionData(f protocol.Frame) {
	if f.Session == nil {
		return
	}
	c.applySnapshot(protocol.Snapshot{
		Session:     *f.Session,
		Messages:    f.Messages,
		Topics:      f.Topics,
		ActionItems: f.ActionItems,
	})
}

func (c *Coordinator) applySnapshot(snap protocol.Snapshot) {
	c.mu.Lock()
	if snap.Session.ID != c.sessionID {
		c.mu.Unlock()
		return
	}
	added := c.view.mergeSnapshot(snap)
	s := c.view.session
	c.bus.Publish(ChangeSession, Change{Kind: ChangeSession, Session: &s})
	c.mu.Unlock()
	if added {
		c.refresh()
	}
}

func (c *Coordinator) onNewMessage(f protocol.Frame) {
	if f.Message == nil {
		return
	}
	c.mu.Lock()
	if c.sessionID == 0 || f.Message.SessionID != c.sessionID {
		c.mu.Unlock()
		return
	}
	result := c.view.mergeMessage(*f.Message)
	if result != mergeIgnored {
		m := *f.Message
		c.bus.Publish(ChangeMessage, Change{Kind: ChangeMessage, Message: &m})
	}
	c.mu.Unlock()
	if result == mergeAdded {
		c.refresh()
	}
}

func (c *Coordinator) onTopic(f protocol.Frame, update bool) {
	if f.Topic == nil {
		return
	}
	c.applyTopic(*f.Topic, update)
}

func (c *Coordinator) applyTopic(t protocol.Topic, update bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == 0 || t.SessionID != c.sessionID {
		return
	}
	if c.view.mergeTopic(t, update) != mergeIgnored {
		c.bus.Publish(ChangeTopic, Change{Kind: ChangeTopic, Topic: &t})
	}
}

func (c *Coordinator) onActionItem(f protocol.Frame, update bool) {
	if f.ActionItem == nil {
		return
	}
	c.applyActionItem(*f.ActionItem, update)
}

func (c *Coordinator) applyActionItem(a protocol.ActionItem, update bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != 0 && a.SessionID != 0 && a.SessionID != c.sessionID {
		return
	}
	if c.view.mergeActionItem(a, update) != mergeIgnored {
		c.bus.Publish(ChangeActionItem, Change{Kind: ChangeActionItem, ActionItem: &a})
	}
}

func (c *Coordinator) onError(f protocol.Frame) {
	c.logger.Warnf("coordinator: server error: %s", f.Error)
}
