package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// loggerPtr mirrors internal/gpu's and dataset's atomic-pointer no-op
// default logging pattern (SPEC_FULL §A).
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger installs the logger used for pipeline lifecycle events (device
// acquired) and warnings (device unavailable, random-init fallback, render
// errors).
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}
