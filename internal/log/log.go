// Package log is a small leveled key=value logger used across the service.
// Output goes to stderr, one line per entry:
//
//	2025-01-01T00:00:00.000Z [INFO] msg key=value ...
package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

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
	default:
		return "ERROR"
	}
}

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", 0)
	minLevel = LevelInfo
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

func Debug(msg string, kv ...any) { emit(LevelDebug, msg, kv) }

func Info(msg string, kv ...any) { emit(LevelInfo, msg, kv) }

func Warn(msg string, kv ...any) { emit(LevelWarn, msg, kv) }

// Error logs msg with err prepended as the first structured field.
func Error(msg string, err error, kv ...any) {
	emit(LevelError, msg, append([]any{"err", err}, kv...))
}

func emit(level Level, msg string, kv []any) {
	mu.Lock()
	enabled := level >= minLevel
	mu.Unlock()
	if !enabled {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	// kv comes in pairs; a trailing odd value is dropped.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(fmt.Sprint(kv[i+1]))
	}

	logger.Println(b.String())
}
