package kcall

import (
	"github.com/joeycumines/go-catrate"

	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/internal/klog"
	"github.com/joeycumines/go-microkernel/kernel"
)

// Handler services one SysCallId for one calling Process.
type Handler func(proc *kernel.Process, args Args) int64

// DebugSink is where DebugPutc/DebugLog write, satisfied by
// console.Sink without kcall importing console — only the debug/test
// syscall range needs a sink at all.
type DebugSink interface {
	WriteAll(p []byte) error
}

// Dispatcher routes syscall numbers to registered Handlers and encodes
// every outcome into the ABI's signed 64-bit return convention (spec
// §6/§7: non-negative on success, -Kind on failure).
type Dispatcher struct {
	sched   *kernel.Scheduler
	cfg     kconfig.Config
	sink    DebugSink
	limiter *catrate.Limiter

	handlers map[SysCallId]Handler
}

// NewDispatcher constructs a Dispatcher for sched, registering the
// object-facing calls and, if enabled, the debug range rate-limited via
// go-catrate per cfg.DebugLogRate (spec §6: "a per-process window
// limits how often DebugLog/DebugPutc may be invoked, so a buggy or
// hostile process cannot flood kernel logging").
func NewDispatcher(sched *kernel.Scheduler, cfg kconfig.Config, sink DebugSink) *Dispatcher {
	d := &Dispatcher{sched: sched, cfg: cfg, sink: sink, handlers: make(map[SysCallId]Handler)}
	d.registerObjectCalls()
	if cfg.DebugSyscallsEnabled {
		d.limiter = catrate.NewLimiter(cfg.DebugLogRate)
		d.registerDebugCalls()
	}
	return d
}

// Register installs or overrides the Handler for id.
func (d *Dispatcher) Register(id SysCallId, h Handler) {
	d.handlers[id] = h
}

// Dispatch is the syscall entry point: it looks up id's Handler and
// runs it, returning Unimplemented for an unregistered or (when debug
// syscalls are disabled) debug-range id.
func (d *Dispatcher) Dispatch(proc *kernel.Process, id SysCallId, args Args) int64 {
	h, ok := d.handlers[id]
	if !ok {
		return kerr.ABICode(kerr.Unimplemented)
	}
	return h(proc, args)
}

// allowDebug enforces the debug-call rate limit, keyed per-Process so
// one runaway process cannot exhaust another's debug budget.
func (d *Dispatcher) allowDebug(proc *kernel.Process) bool {
	if d.limiter == nil {
		return false
	}
	_, ok := d.limiter.Allow(proc)
	return ok
}

func statusOK(resultHint int64) int64 {
	if resultHint < 0 {
		// A handler's own positive payload can never collide with the
		// negative -Kind encoding; this only guards against a handler
		// bug that returns a raw negative number directly.
		klog.Warning().Log("kcall: handler returned a raw negative value, coercing to Internal")
		return kerr.ABICode(kerr.Internal)
	}
	return resultHint
}
