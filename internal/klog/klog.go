// Package klog is the kernel-wide structured logging sink.
//
// It carries the same package-level, RWMutex-guarded global logger shape
// as eventloop/logging.go's SetStructuredLogger/getGlobalLogger pair, but
// the logger itself is a real github.com/joeycumines/logiface instance
// (fanned out through the slog adapter in
// github.com/joeycumines/logiface-slog) rather than the teacher's
// hand-rolled Logger/LogEntry interface. Every kernel subsystem logs
// through the package-level helpers below instead of fmt/log, exactly as
// the teacher's design comment mandates ("Logging is an infrastructure
// cross-cutting concern").
package klog

import (
	"log/slog"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

var (
	globalMu     sync.RWMutex
	globalLogger *logiface.Logger[*islog.Event]
)

func init() {
	globalLogger = logiface.New[*islog.Event](
		islog.WithSlogHandler(slog.NewJSONHandler(os.Stderr, nil)),
	)
}

// SetLogger replaces the package-level logger. Kernel bring-up code calls
// this once during boot to point at whatever slog.Handler the embedding
// application wants (JSON to a console sink, text to a UART, discard in
// tests).
func SetLogger(l *logiface.Logger[*islog.Event]) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// NewWithHandler is a convenience constructor used by SetLogger callers.
func NewWithHandler(handler slog.Handler) *logiface.Logger[*islog.Event] {
	return logiface.New[*islog.Event](islog.WithSlogHandler(handler))
}

func get() *logiface.Logger[*islog.Event] {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug, Info, Warning and Err return fluent builders at the matching
// level, mirroring the Logger facade shape without re-exporting the
// generic type parameter at every call site.
func Debug() *logiface.Builder[*islog.Event]   { return get().Debug() }
func Info() *logiface.Builder[*islog.Event]    { return get().Info() }
func Warning() *logiface.Builder[*islog.Event] { return get().Warning() }
func Err() *logiface.Builder[*islog.Event]     { return get().Err() }

// Panic logs at the Crit level then panics, matching the kernel's fatal
// "log + halt" policy from spec §7: assertion failure, unhandled trap,
// recursive mutex acquisition and similar conditions all route through
// this one function so there is exactly one place that turns a kernel
// invariant violation into a process-ending panic.
func Panic(msg string, fields func(b *logiface.Builder[*islog.Event])) {
	b := get().Crit()
	if fields != nil {
		fields(b)
	}
	b.Log(msg)
	panic(msg)
}

// PanicErr is the common case of Panic: a fatal condition attributable
// to a single error.
func PanicErr(msg string, err error) {
	Panic(msg, func(b *logiface.Builder[*islog.Event]) {
		b.Err(err)
	})
}
