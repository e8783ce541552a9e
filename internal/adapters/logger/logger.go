// Package logger implements a logging adapter using log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	mu     sync.RWMutex
}

// New creates a new Logger writing text records to stderr.
func New() *Logger {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a new Logger writing text records to w.
func NewWithWriter(w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	return &Logger{
		logger: slog.New(newHandler(w, level)),
		level:  level,
	}
}

func newHandler(w io.Writer, level *slog.LevelVar) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
}

// SetOutput updates the logger's output destination. The level is kept.
func (l *Logger) SetOutput(w io.Writer) {
	handler := newHandler(w, l.level)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = slog.New(handler)
}

// SetLevel changes the minimum level that is written.
func (l *Logger) SetLevel(level domain.LogLevel) {
	l.level.Set(slog.Level(level))
}

func (l *Logger) current() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}

// Debug logs a diagnostic message.
func (l *Logger) Debug(msg string) {
	l.current().Debug(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.current().Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.current().Warn(msg)
}

// Error logs an error message with its zerr metadata as attributes.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	zerr.Log(context.Background(), l.current(), err)
}

var _ ports.Logger = (*Logger)(nil)
