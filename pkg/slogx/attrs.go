package slogx

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyEngine is the key for the scripting engine kind.
	KeyEngine = "engine"
	// KeyTask is the key for a task id.
	KeyTask = "task"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
// A nil error is rendered as an empty string rather than panicking.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName creates a slog.Attr with the provided logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Engine creates a slog.Attr naming the scripting engine kind.
func Engine(kind string) slog.Attr {
	return slog.String(KeyEngine, kind)
}

// Task creates a slog.Attr carrying a task id.
func Task(id uuid.UUID) slog.Attr {
	return slog.String(KeyTask, id.String())
}

// Recovered turns a value obtained from recover() into an attribute.
func Recovered(v any) slog.Attr {
	if err, ok := v.(error); ok {
		return Error(err)
	}
	return slog.String("panic", fmt.Sprint(v))
}
