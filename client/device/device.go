// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package client_device is the hardware boundary of the capture engine. A
// device hands out PCM streams; every acquired stream must be closed.
package client_device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/intelliconvo/pkg/commons"
)

const BytesPerSample = 2 // LINEAR16

type Kind string

const (
	KindInput  Kind = "audioinput"
	KindOutput Kind = "audiooutput"
	KindVideo  Kind = "videoinput"
)

type DeviceInfo struct {
	DeviceID string `json:"deviceId"`
	Label    string `json:"label"`
	Kind     Kind   `json:"kind"`
}

// Format describes little endian signed 16 bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// FrameSize is the byte size of one sample across all channels.
func (f Format) FrameSize() int {
	return f.Channels * BytesPerSample
}

var (
	ErrPermissionDenied = errors.New("audio permission denied")
	ErrNoSuchDevice     = errors.New("no matching audio input")
	ErrStreamClosed     = errors.New("stream closed")
)

// Stream is one acquired input. Read never blocks on wall clock time; the
// caller paces it.
type Stream interface {
	io.Reader
	ID() string
	DeviceID() string
	Format() Format
	Close() error
}

// MediaDevices enumerates and acquires audio devices. An empty deviceID
// acquires the default input.
type MediaDevices interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Acquire(ctx context.Context, deviceID string) (Stream, error)
}

// SourceFactory opens a fresh PCM source for one acquisition.
type SourceFactory func() (io.Reader, Format, error)

type entry struct {
	info DeviceInfo
	open SourceFactory
}

// Registry is an in-process MediaDevices backed by registered sources.
type Registry struct {
	logger commons.Logger

	mu      sync.Mutex
	entries []entry
	denied  bool
	open    map[string]*stream
}

func NewRegistry(logger commons.Logger) *Registry {
	return &Registry{logger: logger, open: make(map[string]*stream)}
}

// Add registers a device. Input kinds need a factory.
func (r *Registry) Add(info DeviceInfo, open SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{info: info, open: open})
}

// Deny makes every later Enumerate and Acquire fail as a refused permission
// prompt would.
func (r *Registry) Deny(denied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied = denied
}

// Enumerate lists audio inputs and outputs only.
func (r *Registry) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.denied {
		return nil, ErrPermissionDenied
	}
	out := make([]DeviceInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if e.info.Kind == KindInput || e.info.Kind == KindOutput {
			out = append(out, e.info)
		}
	}
	return out, nil
}

func (r *Registry) Acquire(ctx context.Context, deviceID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.denied {
		r.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	var found *entry
	for i := range r.entries {
		e := &r.entries[i]
		if e.info.Kind != KindInput || e.open == nil {
			continue
		}
		if deviceID == "" || e.info.DeviceID == deviceID {
			found = e
			break
		}
	}
	r.mu.Unlock()
	if found == nil {
		if deviceID == "" {
			return nil, ErrNoSuchDevice
		}
		return nil, fmt.Errorf("%w: %q", ErrNoSuchDevice, deviceID)
	}

	src, format, err := found.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", found.info.DeviceID, err)
	}
	s := &stream{
		id:       uuid.NewString(),
		deviceID: found.info.DeviceID,
		format:   format,
		src:      src,
		release:  r.release,
	}
	r.mu.Lock()
	r.open[s.id] = s
	r.mu.Unlock()
	r.logger.Debugf("device %s acquired as stream %s", s.deviceID, s.id)
	return s, nil
}

// OpenStreams is the number of acquired streams not yet closed.
func (r *Registry) OpenStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

func (r *Registry) release(s *stream) {
	r.mu.Lock()
	delete(r.open, s.id)
	r.mu.Unlock()
	r.logger.Debugf("device %s released stream %s", s.deviceID, s.id)
}

type stream struct {
	id       string
	deviceID string
	format   Format
	release  func(*stream)

	mu     sync.Mutex
	src    io.Reader
	closed bool
}

func (s *stream) ID() string       { return s.id }
func (s *stream) DeviceID() string { return s.deviceID }
func (s *stream) Format() Format   { return s.format }

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	return s.src.Read(p)
}

// Close is idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	src := s.src
	s.mu.Unlock()

	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
	s.release(s)
	return nil
}
