package ksync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-microkernel/arch/sim"
	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/ksync"
	"github.com/joeycumines/go-microkernel/memregion"
)

func newTestKernel(t *testing.T) (*kernel.Scheduler, *kernel.Process) {
	t.Helper()
	cap := sim.New()
	cfg := kconfig.Resolve(kconfig.WithTimesliceTicks(1))
	sched := kernel.NewScheduler(cap, cfg)
	proc := kernel.NewProcess("kernel", memregion.Config{}, true)
	return sched, proc
}

// TestMutexMutualExclusion is seed scenario S1: two threads incrementing
// a shared counter through a Mutex[int] must never interleave.
func TestMutexMutualExclusion(t *testing.T) {
	sched, proc := newTestKernel(t)
	m := ksync.NewMutex(sched, 0)

	const itersPerThread = 50
	done := make(chan struct{}, 2)

	worker := func() {
		for i := 0; i < itersPerThread; i++ {
			g := m.Lock()
			*g.Get()++
			g.Unlock()
			sched.Yield()
		}
		done <- struct{}{}
	}

	sched.NewThread("w1", proc, worker).Start()
	sched.NewThread("w2", proc, worker).Start()
	go sched.Boot(proc)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not complete")
		}
	}

	g := m.Lock()
	require.Equal(t, 2*itersPerThread, *g.Get())
	g.Unlock()
}

// TestEventAutoResetSingleWake is based on seed scenario S2: three Set
// calls on an AutoReset event release three waiters, each exactly once.
func TestEventAutoResetSingleWake(t *testing.T) {
	sched, proc := newTestKernel(t)
	ev := ksync.NewEvent(sched, ksync.AutoReset)

	const numWaiters = 3
	woke := make(chan int, numWaiters)

	for i := 0; i < numWaiters; i++ {
		idx := i
		sched.NewThread("waiter", proc, func() {
			require.NoError(t, ev.Wait())
			woke <- idx
		}).Start()
	}

	releaser := sched.NewThread("releaser", proc, func() {
		for i := 0; i < numWaiters; i++ {
			sched.Yield()
			sched.Yield()
			ev.Set()
		}
	})
	releaser.Start()

	go sched.Boot(proc)

	seen := map[int]bool{}
	for i := 0; i < numWaiters; i++ {
		select {
		case idx := <-woke:
			require.False(t, seen[idx], "waiter woken twice")
			seen[idx] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d/%d waiters woken", len(seen), numWaiters)
		}
	}
}
