// Package logger provides module-scoped leveled loggers shared by every engine package.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// Level is the verbosity threshold applied to every module logger.
type Level int

const (
	// LevelDebug logs everything, including per-frame diagnostics.
	LevelDebug Level = iota
	// LevelInfo logs startup, timing reports and shutdown summaries.
	LevelInfo
	// LevelWarning logs recoverable problems such as a saturated readback pool.
	LevelWarning
	// LevelError logs failures only.
	LevelError
)

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
)

var leveledBackend logging.LeveledBackend

// Logger is the leveled logging surface used across the engine.
type Logger interface {
	Debug(v ...any)
	Debugf(format string, v ...any)

	Info(v ...any)
	Infof(format string, v ...any)

	Warning(v ...any)
	Warningf(format string, v ...any)

	Error(v ...any)
	Errorf(format string, v ...any)
}

var _ Logger = &logging.Logger{}

// New creates a logger for the named module. The module name is printed with every line.
//
// Parameters:
//   - module: a short identifier such as "trace" or "profiler"
//
// Returns:
//   - Logger: the module logger
func New(module string) Logger {
	return logging.MustGetLogger(module)
}

// SetSink redirects every module logger to the provided writer, keeping the current level.
//
// Parameters:
//   - sink: the destination for formatted log lines
func SetSink(sink io.Writer) {
	level := logging.INFO
	if leveledBackend != nil {
		level = leveledBackend.GetLevel("")
	}
	backend := logging.NewLogBackend(sink, "", 0)
	leveledBackend = logging.AddModuleLevel(logging.NewBackendFormatter(backend, format))
	leveledBackend.SetLevel(level, "")
	logging.SetBackend(leveledBackend)
}

// SetLevel sets the verbosity of every module logger.
//
// Parameters:
//   - level: the minimum level that will be written
func SetLevel(level Level) {
	var l logging.Level
	switch level {
	case LevelDebug:
		l = logging.DEBUG
	case LevelWarning:
		l = logging.WARNING
	case LevelError:
		l = logging.ERROR
	default:
		l = logging.INFO
	}
	leveledBackend.SetLevel(l, "")
}

// ParseLevel converts a case-insensitive level name into a Level.
//
// Parameters:
//   - name: one of debug, info, warning (or warn), error
//
// Returns:
//   - Level: the parsed level
//   - error: an error if the name is not recognised
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func init() {
	SetSink(os.Stderr)
	SetLevel(LevelInfo)
}
