package ulogger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const callerWidth = 32

// levelColors mirrors the colours gocore uses for the same levels.
var levelColors = map[string]int{
	"debug": colorBlue,
	"info":  colorGreen,
	"warn":  colorYellow,
	"error": colorRed,
	"fatal": colorRed,
	"panic": colorRed,
}

var gocoreLevels = map[zerolog.Level]int{
	zerolog.DebugLevel: int(gocore.DEBUG),
	zerolog.InfoLevel:  int(gocore.INFO),
	zerolog.WarnLevel:  int(gocore.WARN),
	zerolog.ErrorLevel: int(gocore.ERROR),
	zerolog.FatalLevel: int(gocore.FATAL),
}

// ZLoggerWrapper adapts a zerolog.Logger to Logger. With PRETTY_LOGS (the
// default) lines are rendered for a console, otherwise as JSON.
type ZLoggerWrapper struct {
	zerolog.Logger
	service string
	w       io.Writer
}

func NewZeroLogger(service string, options ...Option) *ZLoggerWrapper {
	if service == "" {
		service = defaultGoCoreService
	}

	opts := applyOptions(options)

	var z *ZLoggerWrapper

	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		z = &ZLoggerWrapper{
			Logger:  newConsoleLogger(opts.writer, service).With().CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).Timestamp().Logger(),
			service: service,
			w:       opts.writer,
		}
	} else {
		z = &ZLoggerWrapper{
			Logger:  zerolog.New(opts.writer).With().Str("service", service).CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).Timestamp().Logger(),
			service: service,
			w:       opts.writer,
		}
	}

	z.SetLogLevel(opts.logLevel)

	return z
}

func newConsoleLogger(writer io.Writer, service string) zerolog.Logger {
	noColor := true
	if f, ok := writer.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	output := zerolog.ConsoleWriter{
		Out:        writer,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)

			color, ok := levelColors[level]
			if !ok {
				color = colorWhite
			}

			return "| " + colorize(strings.ToUpper(fmt.Sprintf("%-6s", level)), color, noColor) + "|"
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("| %-6s| %s", service, i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
		FormatCaller: func(i interface{}) string {
			caller, _ := i.(string)
			if caller == "" {
				return ""
			}

			return colorize(fmt.Sprintf("%-*s", callerWidth, shortCaller(caller, callerWidth)), colorBold, noColor)
		},
	}

	return zerolog.New(output)
}

// shortCaller trims a caller path to its trailing elements that fit in width.
func shortCaller(caller string, width int) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, caller); err == nil {
			caller = rel
		}
	}

	parts := strings.Split(filepath.ToSlash(caller), "/")
	short := parts[len(parts)-1]

	for i := len(parts) - 2; i >= 0; i-- {
		if len(short)+len(parts[i])+1 > width {
			break
		}

		short = parts[i] + "/" + short
	}

	return short
}

// New returns a logger for another service that keeps this logger's writer
// and level unless options override them.
func (z *ZLoggerWrapper) New(service string, options ...Option) Logger {
	inherited := []Option{WithWriter(z.w), WithLevel(z.GetLevel().String())}

	return NewZeroLogger(service, append(inherited, options...)...)
}

func (z *ZLoggerWrapper) Duplicate(options ...Option) Logger {
	opts := &Options{writer: z.w, logLevel: z.GetLevel().String()}
	for _, o := range options {
		o(opts)
	}

	d := z.Output(opts.writer)
	d.SetLogLevel(opts.logLevel)

	return d
}

// SetLogLevel accepts gocore or zerolog level names in any case. Unknown
// names fall back to info.
func (z *ZLoggerWrapper) SetLogLevel(logLevel string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel || level == zerolog.Disabled {
		level = zerolog.InfoLevel
	}

	z.Logger = z.Level(level)
}

// LogLevel reports the level on gocore's scale.
func (z *ZLoggerWrapper) LogLevel() int {
	if level, ok := gocoreLevels[z.GetLevel()]; ok {
		return level
	}

	return int(gocore.INFO)
}

func (z *ZLoggerWrapper) Debugf(format string, args ...interface{}) {
	z.Debug().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Infof(format string, args ...interface{}) {
	z.Info().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Warnf(format string, args ...interface{}) {
	z.Warn().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Errorf(format string, args ...interface{}) {
	z.Error().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Fatalf(format string, args ...interface{}) {
	z.Fatal().Msgf(format, args...)
}

// Output duplicates the current logger and sets w as its output.
func (z *ZLoggerWrapper) Output(w io.Writer) *ZLoggerWrapper {
	return &ZLoggerWrapper{z.Logger.Output(w), z.service, w}
}

// colorize wraps s in ANSI code c unless disabled, NO_COLOR is set or c is 0.
func colorize(s interface{}, c int, disabled bool) string {
	if disabled || c == 0 || os.Getenv("NO_COLOR") != "" {
		return fmt.Sprintf("%s", s)
	}

	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
