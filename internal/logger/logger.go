// Package logger provides a minimal level-gated logger used throughout the
// server. It intentionally avoids structured logging frameworks: the core's
// log volume is low (per-call tracing at Debug, faults at Warn/Error) and a
// single package-level logger keeps call sites terse.
package logger

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level identifies a logging severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	current atomic.Int32
	std     = stdlog.New(os.Stdout, "", 0)
)

func init() {
	current.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level that will be emitted. Unrecognized values
// are ignored and leave the current level unchanged.
func SetLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		current.Store(int32(LevelDebug))
	case "INFO":
		current.Store(int32(LevelInfo))
	case "WARN", "WARNING":
		current.Store(int32(LevelWarn))
	case "ERROR":
		current.Store(int32(LevelError))
	}
}

func log(level Level, format string, v ...any) {
	if Level(current.Load()) > level {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, v...)
	std.Printf("[%s] [%s] %s", ts, level, msg)
}

func Debug(format string, v ...any) { log(LevelDebug, format, v...) }
func Info(format string, v ...any)  { log(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { log(LevelWarn, format, v...) }
func Error(format string, v ...any) { log(LevelError, format, v...) }
