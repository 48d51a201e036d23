package kcall_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-microkernel/arch/sim"
	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/kcall"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/kobject"
	"github.com/joeycumines/go-microkernel/memregion"
)

type byteSink struct {
	mu  bytes.Buffer
	err error
}

func (b *byteSink) WriteAll(p []byte) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Write(p)
	return nil
}

func newTestKernel(t *testing.T, cfg kconfig.Config) (*kernel.Scheduler, *kernel.Process) {
	t.Helper()
	cap := sim.New()
	sched := kernel.NewScheduler(cap, cfg)
	proc := kernel.NewProcess("kernel", memregion.Config{}, true)
	proc.Handles = kobject.NewHandleTable(cfg.MaxHandlesPerProcess)
	return sched, proc
}

func TestDebugAddSucceeds(t *testing.T) {
	cfg := kconfig.Resolve()
	sched, proc := newTestKernel(t, cfg)
	d := kcall.NewDispatcher(sched, cfg, nil)

	got := d.Dispatch(proc, kcall.DebugAdd, kcall.Args{2, 3, 0, 0})
	require.Equal(t, int64(5), got)
}

func TestDebugPutcRateLimited(t *testing.T) {
	cfg := kconfig.Resolve(kconfig.WithDebugLogRate(map[time.Duration]int{time.Second: 1}))
	sched, proc := newTestKernel(t, cfg)
	sink := &byteSink{}
	d := kcall.NewDispatcher(sched, cfg, sink)

	first := d.Dispatch(proc, kcall.DebugPutc, kcall.Args{'A', 0, 0, 0})
	require.Equal(t, int64(0), first)

	second := d.Dispatch(proc, kcall.DebugPutc, kcall.Args{'B', 0, 0, 0})
	require.Negative(t, second, "second debug call within the same window should be rejected")
}

func TestUnregisteredSyscallIsUnimplemented(t *testing.T) {
	cfg := kconfig.Resolve(kconfig.WithDebugSyscalls(false))
	sched, proc := newTestKernel(t, cfg)
	d := kcall.NewDispatcher(sched, cfg, nil)

	got := d.Dispatch(proc, kcall.DebugNoOp, kcall.Args{})
	require.Negative(t, got)
}

func TestDebugLogRejectsBufferOutsideMemoryRegions(t *testing.T) {
	cfg := kconfig.Resolve()
	sched, proc := newTestKernel(t, cfg)
	sink := &byteSink{}
	d := kcall.NewDispatcher(sched, cfg, sink)

	// proc.MemConfig is the empty Config from newTestKernel: no region
	// grants any access, so any non-empty buffer must be rejected
	// (spec §4.4's fail-closed posture), regardless of the process's
	// own privilege level.
	msg := []byte("leak me")
	buf := kcall.NewBuffer(msg)

	got := d.Dispatch(proc, kcall.DebugLog, kcall.Args{int64(buf.Ptr), int64(buf.Len), 0, 0})
	require.Equal(t, kerr.ABICode(kerr.PermissionDenied), got)
	require.Empty(t, sink.mu.String(), "rejected buffer must never reach the sink")
}

func TestSysObjectWaitOnTicker(t *testing.T) {
	cfg := kconfig.Resolve()
	sched, proc := newTestKernel(t, cfg)
	d := kcall.NewDispatcher(sched, cfg, nil)

	ticker := kobject.NewTicker(sched, 1)
	ht := proc.Handles.(*kobject.HandleTable)
	handle, err := ht.Insert(ticker)
	require.NoError(t, err)
	ticker.Start()
	defer ticker.Stop()

	// The ticker's deadline lives on the scheduler's timer queue, which
	// only Scheduler.Tick processes.
	tickSource := sim.NewTicker(sched.Tick)
	defer tickSource.Stop()

	done := make(chan int64, 1)
	sched.NewThread("waiter", proc, func() {
		active := d.Dispatch(proc, kcall.SysObjectWait, kcall.Args{int64(handle), int64(kobject.SignalReadable), 0, 0})
		done <- active
	}).Start()

	go sched.Boot(proc)

	select {
	case active := <-done:
		require.Equal(t, int64(kobject.SignalReadable), active)
	case <-time.After(2 * time.Second):
		t.Fatal("SysObjectWait never returned")
	}
}
