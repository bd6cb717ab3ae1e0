// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package clock

import (
	"sync"
	"time"
)

type mockJob struct {
	due     time.Time
	period  time.Duration
	fn      func()
	seq     int
	stopped bool
}

// Mock is a manually advanced clock. Scheduled callbacks run synchronously
// on the goroutine calling Advance, in due-time order.
type Mock struct {
	mu   sync.Mutex
	now  time.Time
	jobs []*mockJob
	seq  int
}

func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Every(d time.Duration, fn func()) func() {
	job := m.schedule(d, d, fn)
	return func() { m.cancel(job) }
}

func (m *Mock) AfterFunc(d time.Duration, fn func()) func() bool {
	job := m.schedule(d, 0, fn)
	return func() bool { return m.cancel(job) }
}

// Pending is the number of scheduled, not yet cancelled jobs.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Advance moves time forward by d, firing every job that falls due.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		job := m.nextDue(target)
		if job == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if job.due.After(m.now) {
			m.now = job.due
		}
		if job.period > 0 {
			job.due = job.due.Add(job.period)
		} else {
			m.remove(job)
		}
		fn := job.fn
		m.mu.Unlock()
		fn()
	}
}

func (m *Mock) schedule(d, period time.Duration, fn func()) *mockJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job := &mockJob{due: m.now.Add(d), period: period, fn: fn, seq: m.seq}
	m.jobs = append(m.jobs, job)
	return job
}

func (m *Mock) cancel(job *mockJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.stopped {
		return false
	}
	m.remove(job)
	return true
}

func (m *Mock) remove(job *mockJob) {
	job.stopped = true
	for i, j := range m.jobs {
		if j == job {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return
		}
	}
}

func (m *Mock) nextDue(target time.Time) *mockJob {
	var next *mockJob
	for _, j := range m.jobs {
		if j.due.After(target) {
			continue
		}
		if next == nil || j.due.Before(next.due) || (j.due.Equal(next.due) && j.seq < next.seq) {
			next = j
		}
	}
	return next
}
