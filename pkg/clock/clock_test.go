package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_EveryFiresInOrder(t *testing.T) {
	m := NewMock(time.Unix(0, 0))
	var fired []string
	stopA := m.Every(100*time.Millisecond, func() { fired = append(fired, "a") })
	m.Every(50*time.Millisecond, func() { fired = append(fired, "b") })

	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"b", "a", "b"}, fired)

	stopA()
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"b", "a", "b", "b", "b"}, fired)
	assert.Equal(t, time.Unix(0, 0).Add(200*time.Millisecond), m.Now())
}

func TestMock_AfterFunc(t *testing.T) {
	m := NewMock(time.Unix(0, 0))
	calls := 0
	m.AfterFunc(2*time.Second, func() { calls++ })
	stop := m.AfterFunc(time.Second, func() { calls += 10 })

	assert.True(t, stop())
	assert.False(t, stop(), "second stop reports nothing prevented")

	m.Advance(1999 * time.Millisecond)
	assert.Equal(t, 0, calls)
	m.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.Pending())
}

func TestMock_CallbackSchedulesFollowUp(t *testing.T) {
	m := NewMock(time.Unix(0, 0))
	var calls int
	var reschedule func()
	reschedule = func() {
		calls++
		if calls < 3 {
			m.AfterFunc(time.Second, reschedule)
		}
	}
	m.AfterFunc(time.Second, reschedule)
	m.Advance(10 * time.Second)
	assert.Equal(t, 3, calls)
}

func TestRealClock_EveryStops(t *testing.T) {
	c := New()
	var n atomic.Int32
	stop := c.Every(time.Millisecond, func() { n.Add(1) })
	assert.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)
	stop()
	stop()
	snapshot := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, n.Load(), snapshot+1)
}
