package ulogger

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsImplementation(t *testing.T) {
	var buf bytes.Buffer

	l := New("legcy", WithWriter(&buf))
	_, ok := l.(*ZLoggerWrapper)
	assert.True(t, ok)

	l = New("legcy", WithLoggerType("test"))
	_, ok = l.(*TestLogger)
	assert.True(t, ok)

	l = New("legcy", WithLoggerType("gocore"))
	_, ok = l.(*GoCoreLogger)
	assert.True(t, ok)
}

func TestZeroLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	l := NewZeroLogger("chain", WithWriter(&buf), WithLevel("WARN"))
	assert.Equal(t, int(gocore.WARN), l.LogLevel())

	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	l.SetLogLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l.SetLogLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestZeroLoggerChildInheritsLevel(t *testing.T) {
	var buf bytes.Buffer

	parent := NewZeroLogger("node", WithWriter(&buf), WithLevel("ERROR"))
	child := parent.New("peer")

	child.Warnf("child warn")
	child.Errorf("child error")

	assert.NotContains(t, buf.String(), "child warn")
	assert.Contains(t, buf.String(), "child error")

	var other bytes.Buffer

	dup := parent.Duplicate(WithWriter(&other), WithLevel("DEBUG"))
	dup.Debugf("dup debug")

	assert.Contains(t, other.String(), "dup debug")
	assert.NotContains(t, buf.String(), "dup debug")
}

type recordingT struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {}
func (r *recordingT) FailNow()                                  {}
func (r *recordingT) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestErrorTestLogger(t *testing.T) {
	rt := &recordingT{}
	cancelled := false

	l := NewErrorTestLogger(rt, func() { cancelled = true })
	l.Infof("ignored")
	l.SkipCancelOnFail(true)
	l.Errorf("soft %s", "failure")

	require.Len(t, rt.lines, 1)
	assert.Contains(t, rt.lines[0], "ERR_LEVEL soft failure")
	assert.False(t, cancelled)

	l.SkipCancelOnFail(false)
	l.Errorf("hard failure")
	assert.True(t, cancelled)

	l.Shutdown()
	l.Errorf("after shutdown")
	assert.Len(t, rt.lines, 2)
}

func TestVerboseTestLogger(t *testing.T) {
	l := NewVerboseTestLogger(t)
	assert.Same(t, l, l.New("x"))
	assert.Same(t, l, l.Duplicate())
	l.Infof("verbose %s", "line")
}
