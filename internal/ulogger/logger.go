// Package ulogger wraps zerolog behind a small interface so call sites
// never need to import zerolog directly.
package ulogger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the logging surface used throughout the node.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	With(service string) Logger
}

// ZLogger adapts a zerolog.Logger to the Logger interface.
type ZLogger struct {
	zerolog.Logger
	service string
}

// New builds a Logger for the named service. When pretty is true, output is
// a human-readable console writer; otherwise plain JSON lines are emitted.
func New(service string, level string, pretty bool) *ZLogger {
	if service == "" {
		service = "ekehid"
	}

	var base zerolog.Logger
	if pretty {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	z := &ZLogger{Logger: base.With().Str("service", service).Logger(), service: service}
	z.setLevel(level)

	return z
}

func (z *ZLogger) setLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		z.Logger = z.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		z.Logger = z.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.Logger = z.Logger.Level(zerolog.ErrorLevel)
	default:
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	}
}

func (z *ZLogger) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msg(fmt.Sprintf(format, args...))
}

// With returns a child logger tagged with an additional service/component name.
func (z *ZLogger) With(service string) Logger {
	return &ZLogger{Logger: z.Logger.With().Str("component", service).Logger(), service: service}
}

// Nop returns a Logger that discards everything, for use in tests.
func Nop() Logger {
	return &ZLogger{Logger: zerolog.New(nil).Level(zerolog.Disabled), service: "nop"}
}
