package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	c := NewMockClock()
	assert.Zero(t, c.MockTime())
	assert.WithinDuration(t, time.Now(), c.Now(), 5*time.Second)

	sixtyDaysAgo := time.Now().Add(-60 * 24 * time.Hour).Unix()
	c.SetMockTime(sixtyDaysAgo)

	assert.Equal(t, sixtyDaysAgo, c.Now().Unix())
	assert.Equal(t, sixtyDaysAgo, c.MockTime())

	c.SetMockTime(0)
	assert.WithinDuration(t, time.Now(), c.Now(), 5*time.Second)
}

func TestRealClock(t *testing.T) {
	assert.WithinDuration(t, time.Now(), RealClock().Now(), 5*time.Second)
}
