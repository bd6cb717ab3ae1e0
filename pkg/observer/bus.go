// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package observer is a typed publish/subscribe bus keyed by an enumerated
// event kind. Subscribing returns a disposer that removes the handler.
package observer

import (
	"sync"
)

type subscriber[E any] struct {
	id uint64
	fn func(E)
}

// Bus fans events of kind K out to every handler subscribed to that kind.
//
// A synchronous bus calls handlers on the publishing goroutine. An async bus
// queues events without bound and delivers them from one worker goroutine,
// so emission order is preserved per subscriber and handlers may call back
// into the publisher without deadlocking.
type Bus[K comparable, E any] struct {
	mu     sync.RWMutex
	subs   map[K][]subscriber[E]
	nextID uint64

	async  bool
	qmu    sync.Mutex
	cond   *sync.Cond
	queue  []queued[K, E]
	closed bool
	done   chan struct{}
}

type queued[K comparable, E any] struct {
	kind  K
	event E
	flush chan struct{}
}

// New returns a synchronous bus.
func New[K comparable, E any]() *Bus[K, E] {
	return &Bus[K, E]{subs: make(map[K][]subscriber[E])}
}

// NewAsync returns a bus with ordered asynchronous delivery. Close must be
// called to stop its worker.
func NewAsync[K comparable, E any]() *Bus[K, E] {
	b := New[K, E]()
	b.async = true
	b.cond = sync.NewCond(&b.qmu)
	b.done = make(chan struct{})
	go b.run()
	return b
}

// Subscribe registers fn for kind. The returned dispose is idempotent.
func (b *Bus[K, E]) Subscribe(kind K, fn func(E)) (dispose func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s.id == id {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[kind]) == 0 {
				delete(b.subs, kind)
			}
		})
	}
}

// Publish delivers event to the current subscribers of kind.
func (b *Bus[K, E]) Publish(kind K, event E) {
	if !b.async {
		b.deliver(kind, event)
		return
	}
	b.qmu.Lock()
	defer b.qmu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, queued[K, E]{kind: kind, event: event})
	b.cond.Signal()
}

// Subscribers is the number of handlers for kind.
func (b *Bus[K, E]) Subscribers(kind K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Flush blocks until every event published before the call was delivered.
// It is a no-op for a synchronous bus.
func (b *Bus[K, E]) Flush() {
	if !b.async {
		return
	}
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return
	}
	marker := make(chan struct{})
	b.queue = append(b.queue, queued[K, E]{flush: marker})
	b.cond.Signal()
	b.qmu.Unlock()
	<-marker
}

// Close stops the async worker after the queued events were delivered.
func (b *Bus[K, E]) Close() {
	if !b.async {
		return
	}
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.qmu.Unlock()
	<-b.done
}

func (b *Bus[K, E]) run() {
	defer close(b.done)
	for {
		b.qmu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.qmu.Unlock()
			return
		}
		item := b.queue[0]
		b.queue[0] = queued[K, E]{}
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		if item.flush != nil {
			close(item.flush)
			continue
		}
		b.deliver(item.kind, item.event)
	}
}

func (b *Bus[K, E]) deliver(kind K, event E) {
	b.mu.RLock()
	list := make([]subscriber[E], len(b.subs[kind]))
	copy(list, b.subs[kind])
	b.mu.RUnlock()
	for _, s := range list {
		s.fn(event)
	}
}
