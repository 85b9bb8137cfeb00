package ulogger

import (
	"github.com/ordishs/gocore"
)

const defaultGoCoreService = "fprnt"

// GoCoreLogger writes through gocore, whose loggers are keyed by service
// name and fix their level on creation. Changing the level re-resolves the
// logger for the same service.
type GoCoreLogger struct {
	*gocore.Logger
	service   string
	skipFrame int
}

func NewGoCoreLogger(service string, options ...Option) *GoCoreLogger {
	if service == "" {
		service = defaultGoCoreService
	}

	opts := applyOptions(options)

	return &GoCoreLogger{
		Logger:    gocore.Log(service, gocore.NewLogLevelFromString(opts.logLevel)),
		service:   service,
		skipFrame: opts.skip,
	}
}

// New returns a logger for another service at the current level.
func (g *GoCoreLogger) New(service string, options ...Option) Logger {
	opts := applyOptions(options)

	return &GoCoreLogger{
		Logger:    gocore.Log(service, g.Logger.GetLogLevel()),
		service:   service,
		skipFrame: opts.skip,
	}
}

func (g *GoCoreLogger) Duplicate(options ...Option) Logger {
	opts := applyOptions(options)
	duplicate := &GoCoreLogger{Logger: g.Logger, service: g.service, skipFrame: g.skipFrame}

	if opts.logLevel != DefaultOptions().logLevel {
		duplicate.SetLogLevel(opts.logLevel)
	}

	if opts.skip != 0 {
		duplicate.skipFrame = opts.skip
	}

	return duplicate
}

func (g *GoCoreLogger) SetLogLevel(level string) {
	g.Logger = gocore.Log(g.service, gocore.NewLogLevelFromString(level))
}
