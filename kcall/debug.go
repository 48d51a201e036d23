package kcall

import (
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/internal/klog"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/memregion"
)

// registerDebugCalls installs the 0xF000+ debug/testing range (spec
// §6). DebugPutc and DebugLog are the two calls a misbehaving process
// could use to flood kernel logging, so both consult
// Dispatcher.allowDebug before doing any work.
func (d *Dispatcher) registerDebugCalls() {
	d.Register(DebugNoOp, func(proc *kernel.Process, args Args) int64 {
		return 0
	})

	d.Register(DebugAdd, func(proc *kernel.Process, args Args) int64 {
		return statusOK(args[0] + args[1])
	})

	d.Register(DebugPutc, func(proc *kernel.Process, args Args) int64 {
		if !d.allowDebug(proc) {
			return kerr.ABICode(kerr.ResourceExhausted)
		}
		if d.sink == nil {
			return kerr.ABICode(kerr.FailedPrecondition)
		}
		if err := d.sink.WriteAll([]byte{byte(args[0])}); err != nil {
			return kerr.ABICode(kerr.Internal)
		}
		return 0
	})

	d.Register(DebugShutdown, func(proc *kernel.Process, args Args) int64 {
		klog.Warning().Str("process", proc.Name).Log("kcall: debug shutdown requested")
		return 0
	})

	d.Register(DebugLog, func(proc *kernel.Process, args Args) int64 {
		if !d.allowDebug(proc) {
			return kerr.ABICode(kerr.ResourceExhausted)
		}
		buf := BufferFromArgs(args[0], args[1])
		if err := buf.Validate(proc.MemConfig, memregion.Read); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		if d.sink == nil {
			return kerr.ABICode(kerr.FailedPrecondition)
		}
		data := buf.Bytes()
		if data == nil {
			// A real architecture backend would map the pages described
			// by Ptr/Len here; the hosted sink has nothing to read
			// without a Go-side slice, so there is nothing further to
			// write.
			return 0
		}
		if err := d.sink.WriteAll(data); err != nil {
			return kerr.ABICode(kerr.Internal)
		}
		return int64(len(data))
	})
}
