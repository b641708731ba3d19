package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the global logger writing to stdout at the given level
func Init(level string, isService bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	log = newLogger(os.Stdout, isService)
	SetLogLevel(lvl)

	return nil
}

func newLogger(w io.Writer, isService bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel maps a configured level name onto a LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type zerologLogger struct {
	l zerolog.Logger
}

// Default returns a Logger backed by the global logger configured through Init.
func Default() Logger {
	return globalLogger{}
}

// New returns a Logger writing console output to w, independent of the global logger.
func New(w io.Writer) Logger {
	return &zerologLogger{l: newLogger(w, true)}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{l: zerolog.Nop()}
}

func (z *zerologLogger) Debug() *LogEvent { return &LogEvent{z.l.Debug()} }
func (z *zerologLogger) Info() *LogEvent  { return &LogEvent{z.l.Info()} }
func (z *zerologLogger) Warn() *LogEvent  { return &LogEvent{z.l.Warn()} }
func (z *zerologLogger) Error() *LogEvent { return &LogEvent{z.l.Error()} }

func (z *zerologLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(z.l.Error(), err)
}

type globalLogger struct{}

func (globalLogger) Debug() *LogEvent                         { return Debug() }
func (globalLogger) Info() *LogEvent                          { return Info() }
func (globalLogger) Warn() *LogEvent                          { return Warn() }
func (globalLogger) Error() *LogEvent                         { return Error() }
func (globalLogger) ErrorWithCode(err errors.Error) *LogEvent { return ErrorWithCode(err) }
