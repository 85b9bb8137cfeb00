package util

import (
	"sync/atomic"
	"time"

	"github.com/kpango/fastime"
)

// Clock is the time source used for every age and timestamp decision. It
// lets a test pin the node's notion of "now" the way setmocktime does.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return fastime.Now()
}

// RealClock returns a Clock backed by the cached system time.
func RealClock() Clock {
	return realClock{}
}

// MockClock is a settable Clock. While no mock time is set it follows the
// real clock.
type MockClock struct {
	mockUnix atomic.Int64
}

func NewMockClock() *MockClock {
	return &MockClock{}
}

// SetMockTime pins the clock to the given unix time. Zero returns the clock
// to real time.
func (c *MockClock) SetMockTime(unix int64) {
	c.mockUnix.Store(unix)
}

// MockTime returns the pinned unix time, or zero when the clock is real.
func (c *MockClock) MockTime() int64 {
	return c.mockUnix.Load()
}

func (c *MockClock) Now() time.Time {
	if unix := c.mockUnix.Load(); unix != 0 {
		return time.Unix(unix, 0)
	}

	return fastime.Now()
}
