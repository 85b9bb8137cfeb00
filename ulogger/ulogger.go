// Package ulogger wraps the loggers used across the node and the harness behind
// one small interface so services can be handed a test logger or a real one.
package ulogger

const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorBlue   = 34
	colorWhite  = 37
	colorBold   = 1
)

type Logger interface {
	LogLevel() int
	SetLogLevel(level string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string, options ...Option) Logger
	Duplicate(options ...Option) Logger
}

func New(service string, options ...Option) Logger {
	switch applyOptions(options).loggerType {
	case "gocore":
		return NewGoCoreLogger(service, options...)
	case "test":
		return &TestLogger{}
	default:
		return NewZeroLogger(service, options...)
	}
}

// TestLogger discards everything.
type TestLogger struct{}

func (l *TestLogger) LogLevel() int                 { return 0 }
func (l *TestLogger) SetLogLevel(string)            {}
func (l *TestLogger) Debugf(string, ...interface{}) {}
func (l *TestLogger) Infof(string, ...interface{})  {}
func (l *TestLogger) Warnf(string, ...interface{})  {}
func (l *TestLogger) Errorf(string, ...interface{}) {}
func (l *TestLogger) Fatalf(string, ...interface{}) {}
func (l *TestLogger) New(string, ...Option) Logger  { return l }
func (l *TestLogger) Duplicate(...Option) Logger    { return l }
