package ulogger

import (
	"sync"
	"testing"
)

// VerboseTestLogger writes every line to the test log. Lines logged after the
// test finished are dropped, peer goroutines may still be draining by then.
type VerboseTestLogger struct {
	t     testing.TB
	mutex sync.Mutex
	done  bool
}

func NewVerboseTestLogger(t testing.TB) *VerboseTestLogger {
	l := &VerboseTestLogger{t: t}

	t.Cleanup(func() {
		l.mutex.Lock()
		l.done = true
		l.mutex.Unlock()
	})

	return l
}

func (l *VerboseTestLogger) logf(level string, format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.done {
		return
	}

	l.t.Logf("["+level+"] "+format, args...)
}

func (l *VerboseTestLogger) LogLevel() int {
	return 0
}

func (l *VerboseTestLogger) SetLogLevel(level string) {}

func (l *VerboseTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.logf("DEBUG", format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.logf("INFO", format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.logf("WARN", format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.logf("ERROR", format, args...)
}

func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Fatalf("[FATAL] "+format, args...)
}
