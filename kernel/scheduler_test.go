package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-microkernel/arch/sim"
	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/memregion"
)

func newTestScheduler(t *testing.T) (*kernel.Scheduler, *kernel.Process) {
	t.Helper()
	cap := sim.New()
	cfg := kconfig.Resolve(kconfig.WithTimesliceTicks(1))
	sched := kernel.NewScheduler(cap, cfg)
	proc := kernel.NewProcess("kernel", memregion.Config{}, true)
	return sched, proc
}

func TestYieldRoundRobin(t *testing.T) {
	sched, proc := newTestScheduler(t)

	var order []string
	done := make(chan struct{})

	a := sched.NewThread("a", proc, func() {
		order = append(order, "a1")
		sched.Yield()
		order = append(order, "a2")
	})
	b := sched.NewThread("b", proc, func() {
		order = append(order, "b1")
		sched.Yield()
		order = append(order, "b2")
		close(done)
	})
	a.Start()
	b.Start()

	go sched.Boot(proc)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not complete round robin in time")
	}
}

func TestWaitLockWakeOne(t *testing.T) {
	sched, proc := newTestScheduler(t)
	wl := kernel.NewWaitLock[int](sched, 0)

	woken := make(chan struct{})
	started := make(chan struct{})

	sched.NewThread("waiter", proc, func() {
		g := wl.Lock()
		close(started)
		err := g.Wait()
		g.Unlock()
		require.NoError(t, err)
		close(woken)
	}).Start()

	waker := sched.NewThread("waker", proc, func() {
		<-started
		// Busy-wait cooperatively until the waiter has actually parked.
		for {
			g := wl.Lock()
			empty := g.Empty()
			g.Unlock()
			if !empty {
				break
			}
			sched.Yield()
		}
		g := wl.Lock()
		res := g.WakeOne()
		g.Unlock()
		require.Equal(t, kernel.Woke, res)
	})
	waker.Start()

	go sched.Boot(proc)

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestWaitLockWaitUntilDeadlineExceeded(t *testing.T) {
	sched, proc := newTestScheduler(t)
	wl := kernel.NewWaitLock[int](sched, 0)

	sim.SetTickPeriod(time.Millisecond)
	ticker := sim.NewTicker(sched.Tick)
	defer ticker.Stop()

	result := make(chan error, 1)
	sched.NewThread("waiter", proc, func() {
		g := wl.Lock()
		deadline, ok := sched.Capability().Now().Add(5)
		require.True(t, ok)
		err := g.WaitUntil(deadline)
		g.Unlock()
		result <- err
	}).Start()

	go sched.Boot(proc)

	select {
	case err := <-result:
		require.Error(t, err)
		var st *kerr.Status
		require.ErrorAs(t, err, &st)
		require.Equal(t, kerr.DeadlineExceeded, st.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("wait_until never returned")
	}

	// The waiter must have been fully dequeued, not left dangling on the
	// wait queue behind the timer that unparked it.
	g := wl.Lock()
	require.True(t, g.Empty())
	g.Unlock()
}
