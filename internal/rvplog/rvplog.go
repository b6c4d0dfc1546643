// Package rvplog is the process-wide logging sink required by the
// vendor SDK model: foreign library code expects a single
// log(level, msg) entry point with no context pointer. The active
// *slog.Logger is held behind an atomic pointer so tests can swap it
// out (see Set) without touching every call site.
package rvplog

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Set installs a new logger as the process-wide sink. Tests use this
// to capture output or silence it entirely.
func Set(l *slog.Logger) {
	current.Store(l)
}

// L returns the active logger.
func L() *slog.Logger {
	return current.Load()
}
