// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package clock abstracts wall-clock reads and timer scheduling so periodic
// producers and reconnect delays can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the capture engine and session channel.
type Clock interface {
	Now() time.Time
	// Every runs fn every d until the returned stop is called. stop does not
	// wait for an in-flight fn.
	Every(d time.Duration, fn func()) (stop func())
	// AfterFunc runs fn once after d. stop reports whether it prevented fn.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type realClock struct{}

// New returns the wall clock.
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (realClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
