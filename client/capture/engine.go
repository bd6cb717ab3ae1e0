// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package client_capture records microphone audio into chunks, publishes
// visualization frames and finalizes recordings into WAV audio.
package client_capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	client_device "github.com/intelliconvo/client/device"
	internal_analyser "github.com/intelliconvo/client/internal/analyser"
	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/observer"
)

var ErrEngineClosed = errors.New("capture engine closed")

// =============================================================================
// State
// =============================================================================

type Status string

const (
	StatusInactive  Status = "inactive"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
)

type MonitorState struct {
	Active   bool
	DeviceID *string
}

// RecorderState is replaced wholesale on every transition; a copy handed
// out by State never changes.
type RecorderState struct {
	Status      Status
	AudioChunks [][]byte
	StartTime   *time.Time
	PauseTime   *time.Time
	Monitor     MonitorState
}

// Recording is a finalized piece of audio. Ref resolves through
// Engine.Audio until revoked.
type Recording struct {
	Audio    []byte
	Ref      string
	Duration time.Duration
}

// =============================================================================
// Events
// =============================================================================

type EventKind int

const (
	EventStatusChanged EventKind = iota
	EventVisualizationFrame
	EventMonitorVisualizationFrame
	EventChunkAvailable
	EventRecordingFinalized
)

type Event struct {
	Kind      EventKind
	Status    Status
	Frame     []byte
	Chunk     []byte
	Recording *Recording
}

// =============================================================================
// Engine
// =============================================================================

type Config struct {
	ChunkInterval time.Duration
	FrameInterval time.Duration
	ReplayWindow  time.Duration
	Encoding      Encoding
}

func DefaultConfig() Config {
	return Config{
		ChunkInterval: 100 * time.Millisecond,
		FrameInterval: 16 * time.Millisecond,
		ReplayWindow:  60 * time.Second,
		Encoding:      EncodingLinear16,
	}
}

type Engine struct {
	cfg     Config
	devices client_device.MediaDevices
	clock   clock.Clock
	logger  commons.Logger
	bus     *observer.Bus[EventKind, Event]

	// op serializes lifecycle operations; it is held across device
	// acquisition but never taken by producers or observers' delivery.
	op sync.Mutex

	mu        sync.Mutex
	closed    bool
	state     RecorderState
	format    client_device.Format
	stream    client_device.Stream
	gen       uint64
	stopTimer []func()
	tail      []byte
	analyser  *internal_analyser.Analyser

	monitor          client_device.Stream
	monitorGen       uint64
	stopMonitorTimer func()
	monitorAnalyser  *internal_analyser.Analyser

	refs map[string][]byte

	// take counts Start calls; with the chunk count it identifies what the
	// cached replay was built from.
	take      uint64
	replayKey replayKey
	replay    *Recording
}

type replayKey struct {
	take   uint64
	chunks int
}

func NewEngine(cfg Config, devices client_device.MediaDevices, clk clock.Clock, logger commons.Logger) *Engine {
	def := DefaultConfig()
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = def.ChunkInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = def.ReplayWindow
	}
	if cfg.Encoding == "" {
		cfg.Encoding = def.Encoding
	}
	return &Engine{
		cfg:     cfg,
		devices: devices,
		clock:   clk,
		logger:  logger,
		bus:     observer.NewAsync[EventKind, Event](),
		state:   RecorderState{Status: StatusInactive},
		refs:    make(map[string][]byte),
	}
}

// Subscribe registers fn for one event kind. Delivery is asynchronous and
// ordered; fn may call back into the engine.
func (e *Engine) Subscribe(kind EventKind, fn func(Event)) (dispose func()) {
	return e.bus.Subscribe(kind, fn)
}

// Flush waits until every event emitted so far was delivered. Do not call it
// from an event handler.
func (e *Engine) Flush() {
	e.bus.Flush()
}

// State returns a copy of the current recorder state.
func (e *Engine) State() RecorderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.AudioChunks = s.AudioChunks[:len(s.AudioChunks):len(s.AudioChunks)]
	return s
}

// Devices lists audio inputs and outputs.
func (e *Engine) Devices(ctx context.Context) ([]client_device.DeviceInfo, error) {
	devices, err := e.devices.Enumerate(ctx)
	if err != nil {
		return nil, convo_errors.NewDeviceUnavailable("", err)
	}
	out := devices[:0:0]
	for _, d := range devices {
		if d.Kind == client_device.KindInput || d.Kind == client_device.KindOutput {
			out = append(out, d)
		}
	}
	return out, nil
}

// Start begins a new recording from deviceID ("" for the default input).
// An active recording is stopped first. On failure the engine stays
// inactive.
func (e *Engine) Start(ctx context.Context, deviceID string) error {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	closed, active := e.closed, e.state.Status != StatusInactive
	e.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}
	if active {
		if _, err := e.stopLocked(); err != nil {
			e.logger.Warnf("capture: stopping previous recording: %v", err)
		}
	}

	stream, err := e.devices.Acquire(ctx, deviceID)
	if err != nil {
		e.logger.Errorf("capture: unable to acquire %q: %v", deviceID, err)
		return convo_errors.NewDeviceUnavailable(deviceID, err)
	}

	now := e.clock.Now()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		stream.Close()
		return ErrEngineClosed
	}
	e.gen++
	e.take++
	gen := e.gen
	e.stream = stream
	e.format = stream.Format()
	e.tail = nil
	e.analyser = internal_analyser.New()
	e.state = RecorderState{
		Status:    StatusRecording,
		StartTime: &now,
		Monitor:   e.state.Monitor,
	}
	monitor := e.state.Monitor
	needMonitor := monitor.Active && monitor.DeviceID != nil && e.monitor == nil
	e.mu.Unlock()

	e.logger.Infof("capture: recording from %s (%d Hz, %d ch)", stream.DeviceID(), e.format.SampleRate, e.format.Channels)
	e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusRecording})

	stopChunks := e.clock.Every(e.cfg.ChunkInterval, func() { e.produceChunk(gen) })
	stopFrames := e.clock.Every(e.cfg.FrameInterval, func() { e.produceFrame(gen) })
	e.mu.Lock()
	e.stopTimer = []func(){stopChunks, stopFrames}
	e.mu.Unlock()

	if needMonitor {
		if err := e.startMonitor(ctx, *monitor.DeviceID); err != nil {
			e.logger.Warnf("capture: monitor stream not started: %v", err)
		}
	}
	return nil
}

// Pause suspends capture. Only valid while recording.
func (e *Engine) Pause() {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if e.state.Status != StatusRecording {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	next := e.state
	next.Status = StatusPaused
	next.PauseTime = &now
	e.state = next
	e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusPaused})
	e.mu.Unlock()
}

// Resume continues a paused recording, shifting StartTime by the pause so
// the duration excludes it.
func (e *Engine) Resume() {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if e.state.Status != StatusPaused {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	next := e.state
	if next.StartTime != nil && next.PauseTime != nil {
		shifted := next.StartTime.Add(now.Sub(*next.PauseTime))
		next.StartTime = &shifted
	}
	next.Status = StatusRecording
	next.PauseTime = nil
	e.state = next
	e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusRecording})
	e.mu.Unlock()
}

// Stop finalizes the recording and releases the input stream before it
// returns. From inactive it returns an empty Recording.
func (e *Engine) Stop() (Recording, error) {
	e.op.Lock()
	defer e.op.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() (Recording, error) {
	now := e.clock.Now()
	e.mu.Lock()
	if e.state.Status == StatusInactive {
		e.mu.Unlock()
		return Recording{}, nil
	}
	e.gen++
	var duration time.Duration
	if e.state.StartTime != nil {
		end := now
		if e.state.PauseTime != nil {
			end = *e.state.PauseTime
		}
		duration = end.Sub(*e.state.StartTime)
	}
	chunks := e.state.AudioChunks
	format := e.format
	stream := e.stream
	stoppers := e.stopTimer
	e.stream = nil
	e.stopTimer = nil
	e.state = RecorderState{
		Status:      StatusInactive,
		AudioChunks: chunks,
		Monitor:     e.state.Monitor,
	}
	e.mu.Unlock()

	for _, stop := range stoppers {
		stop()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			e.logger.Warnf("capture: closing stream %s: %v", stream.ID(), err)
		}
	}

	audio, err := createWAVFile(joinChunks(chunks), format, e.cfg.Encoding)
	if err != nil {
		e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusInactive})
		return Recording{}, fmt.Errorf("finalize recording: %w", err)
	}
	rec := Recording{Audio: audio, Ref: e.register(audio), Duration: duration}
	e.logger.Infof("capture: recording finalized, %d chunks, %s", len(chunks), duration)

	e.bus.Publish(EventRecordingFinalized, Event{Kind: EventRecordingFinalized, Recording: &rec})
	e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusInactive})
	return rec, nil
}

// ReplayLastMinute finalizes the trailing replay window of the accumulated
// chunks without touching the recorder state. Until another chunk arrives it
// returns the same Recording; a newer replay revokes the previous Ref.
func (e *Engine) ReplayLastMinute() Recording {
	e.mu.Lock()
	chunks := e.state.AudioChunks
	format := e.format
	key := replayKey{take: e.take, chunks: len(chunks)}
	if rec, ok := e.cachedReplayLocked(key); ok {
		e.mu.Unlock()
		return rec
	}
	e.mu.Unlock()
	if len(chunks) == 0 || format.BytesPerSecond() == 0 {
		return Recording{}
	}

	limit := int(e.cfg.ReplayWindow.Seconds() * float64(format.BytesPerSecond()))
	start, size := len(chunks), 0
	for start > 0 && size+len(chunks[start-1]) <= limit {
		start--
		size += len(chunks[start])
	}
	pcm := joinChunks(chunks[start:])
	duration := time.Duration(float64(len(pcm)) / float64(format.BytesPerSecond()) * float64(time.Second))
	if duration > e.cfg.ReplayWindow {
		duration = e.cfg.ReplayWindow
	}
	audio, err := createWAVFile(pcm, format, e.cfg.Encoding)
	if err != nil {
		e.logger.Errorf("capture: replay: %v", err)
		return Recording{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// a concurrent call may have built the same replay meanwhile
	if rec, ok := e.cachedReplayLocked(key); ok {
		return rec
	}
	if e.replay != nil {
		delete(e.refs, e.replay.Ref)
	}
	rec := Recording{Audio: audio, Ref: "audio:" + uuid.NewString(), Duration: duration}
	e.refs[rec.Ref] = audio
	cached := rec
	e.replay, e.replayKey = &cached, key
	return rec
}

func (e *Engine) cachedReplayLocked(key replayKey) (Recording, bool) {
	if e.replay == nil || e.replayKey != key {
		return Recording{}, false
	}
	if _, ok := e.refs[e.replay.Ref]; !ok {
		return Recording{}, false
	}
	return *e.replay, true
}

// SetMonitorMode toggles the monitor overlay. Enabling with a device
// acquires the new stream before releasing the previous one; on failure the
// previous monitor keeps running.
func (e *Engine) SetMonitorMode(ctx context.Context, active bool, deviceID string) error {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	current := e.state.Monitor
	running := e.monitor != nil
	e.mu.Unlock()

	same := current.Active == active &&
		((current.DeviceID == nil && deviceID == "") || (current.DeviceID != nil && *current.DeviceID == deviceID))
	if same && (running || !active || deviceID == "") {
		return nil
	}

	if active && deviceID != "" {
		return e.startMonitor(ctx, deviceID)
	}
	e.swapMonitor(nil, MonitorState{Active: active})
	return nil
}

func (e *Engine) startMonitor(ctx context.Context, deviceID string) error {
	stream, err := e.devices.Acquire(ctx, deviceID)
	if err != nil {
		return convo_errors.NewDeviceUnavailable(deviceID, err)
	}
	if !e.swapMonitor(stream, MonitorState{Active: true, DeviceID: &deviceID}) {
		stream.Close()
		return ErrEngineClosed
	}
	return nil
}

// swapMonitor installs stream (nil to clear) and releases the previous
// monitor stream.
func (e *Engine) swapMonitor(stream client_device.Stream, state MonitorState) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.monitorGen++
	gen := e.monitorGen
	previous, stopPrevious := e.monitor, e.stopMonitorTimer
	e.monitor = stream
	e.stopMonitorTimer = nil
	next := e.state
	next.Monitor = state
	e.state = next
	if stream != nil {
		e.monitorAnalyser = internal_analyser.New()
	}
	e.mu.Unlock()

	if stopPrevious != nil {
		stopPrevious()
	}
	if previous != nil {
		previous.Close()
	}
	if stream != nil {
		stop := e.clock.Every(e.cfg.FrameInterval, func() { e.produceMonitorFrame(gen) })
		e.mu.Lock()
		if e.monitorGen == gen {
			e.stopMonitorTimer = stop
			e.mu.Unlock()
		} else {
			e.mu.Unlock()
			stop()
		}
	}
	return true
}

// Audio resolves a recording reference.
func (e *Engine) Audio(ref string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	audio, ok := e.refs[ref]
	return audio, ok
}

// Revoke releases a recording reference.
func (e *Engine) Revoke(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.refs, ref)
}

// Close releases every stream and reference and stops event delivery after
// the final status change was delivered.
func (e *Engine) Close() {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.monitorGen++
	streams := []client_device.Stream{e.stream, e.monitor}
	stoppers := append(e.stopTimer, e.stopMonitorTimer)
	e.stream, e.monitor = nil, nil
	e.stopTimer, e.stopMonitorTimer = nil, nil
	e.state = RecorderState{Status: StatusInactive}
	e.refs = make(map[string][]byte)
	e.replay = nil
	e.mu.Unlock()

	for _, stop := range stoppers {
		if stop != nil {
			stop()
		}
	}
	for _, s := range streams {
		if s != nil {
			s.Close()
		}
	}
	e.bus.Publish(EventStatusChanged, Event{Kind: EventStatusChanged, Status: StatusInactive})
	e.bus.Close()
}

// =============================================================================
// Producers
// =============================================================================

func (e *Engine) chunkSize() int {
	frame := e.format.FrameSize()
	if frame == 0 {
		return 0
	}
	raw := int(e.cfg.ChunkInterval.Seconds() * float64(e.format.BytesPerSecond()))
	return (raw / frame) * frame
}

func (e *Engine) produceChunk(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state.Status != StatusRecording || e.stream == nil {
		e.mu.Unlock()
		return
	}
	stream := e.stream
	block := make([]byte, e.chunkSize())
	e.mu.Unlock()

	n, err := io.ReadFull(stream, block)
	if err != nil && n == 0 {
		e.logger.Debugf("capture: read from %s: %v", stream.ID(), err)
		return
	}
	block = block[:n]

	e.mu.Lock()
	if gen != e.gen || e.state.Status != StatusRecording {
		e.mu.Unlock()
		return
	}
	next := e.state
	next.AudioChunks = append(next.AudioChunks[:len(next.AudioChunks):len(next.AudioChunks)], block)
	e.state = next
	e.tail = block
	// published under the lock so no chunk event trails the stop transition
	e.bus.Publish(EventChunkAvailable, Event{Kind: EventChunkAvailable, Chunk: block})
	e.mu.Unlock()
}

func (e *Engine) produceFrame(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state.Status != StatusRecording {
		e.mu.Unlock()
		return
	}
	tail, channels, analyser := e.tail, e.format.Channels, e.analyser
	e.mu.Unlock()

	frame := analyser.Frame(tail, channels)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.gen && e.state.Status == StatusRecording {
		e.bus.Publish(EventVisualizationFrame, Event{Kind: EventVisualizationFrame, Frame: frame})
	}
}

func (e *Engine) produceMonitorFrame(gen uint64) {
	e.mu.Lock()
	if gen != e.monitorGen || e.monitor == nil {
		e.mu.Unlock()
		return
	}
	stream, analyser := e.monitor, e.monitorAnalyser
	e.mu.Unlock()

	format := stream.Format()
	block := make([]byte, internal_analyser.FFTSize*format.FrameSize())
	if _, err := io.ReadFull(stream, block); err != nil {
		e.logger.Debugf("capture: monitor read from %s: %v", stream.ID(), err)
		return
	}
	frame := analyser.Frame(block, format.Channels)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.monitorGen {
		e.bus.Publish(EventMonitorVisualizationFrame, Event{Kind: EventMonitorVisualizationFrame, Frame: frame})
	}
}

func (e *Engine) register(audio []byte) string {
	ref := "audio:" + uuid.NewString()
	e.mu.Lock()
	e.refs[ref] = audio
	e.mu.Unlock()
	return ref
}

func joinChunks(chunks [][]byte) []byte {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
