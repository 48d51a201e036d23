// Package kobject implements the kernel objects of spec §3 ("Kernel
// object") and §4.6 ("Handle table"): a signal-bearing ObjectBase that
// every waitable object embeds, a Ticker built on it, the
// ChannelInitiator/ChannelHandler transaction protocol, and the
// per-process HandleTable.
//
// It imports kernel (for Scheduler/WaitLock) but kernel never imports
// it back — Process only knows HandleTable through the narrow
// kernel.HandleTable interface it declares itself, so there is no
// import cycle.
package kobject

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/kernel"
)

// Signals is the bitmask of conditions a kernel object can be waited on
// for (spec §3 "Kernel object... active_signals bitmask").
type Signals uint32

const (
	SignalReadable Signals = 1 << iota
	SignalWritable
	SignalClosed
	SignalError
	SignalCustom0
	SignalCustom1
)

// ObjectBase is the {active_signals, waiters} pair every kernel object
// embeds (spec §3). Waiters block on a subset of signals via Wait and
// are re-evaluated against the whole mask on every Signal, the same
// condition-loop-over-a-shared-wait-queue shape ksync.Mutex uses.
type ObjectBase struct {
	wl *kernel.WaitLock[Signals]
}

// NewObjectBase constructs an ObjectBase with the given initial active
// signal set.
func NewObjectBase(sched *kernel.Scheduler, initial Signals) *ObjectBase {
	return &ObjectBase{wl: kernel.NewWaitLock[Signals](sched, initial)}
}

// Active returns the currently active signal set.
func (o *ObjectBase) Active() Signals {
	g := o.wl.Lock()
	defer g.Unlock()
	return *g.Get()
}

// Signal sets and clears bits in the active signal set, waking every
// waiter so each can re-check its own interest mask against the new
// state (spec §3: signal changes are broadcast, not targeted, because
// different waiters may be interested in different bits).
func (o *ObjectBase) Signal(set, clear Signals) {
	g := o.wl.Lock()
	v := g.Get()
	*v = (*v &^ clear) | set
	g.WakeAll()
	g.Unlock()
}

// Wait blocks until at least one bit in interest is active, returning
// the active set at that point. interest == 0 returns immediately.
func (o *ObjectBase) Wait(interest Signals) Signals {
	v, _ := o.waitUntil(interest, 0, false)
	return v
}

// WaitUntil blocks until interest is satisfied or deadline elapses.
func (o *ObjectBase) WaitUntil(interest Signals, deadline arch.Instant) (Signals, error) {
	return o.waitUntil(interest, deadline, true)
}

func (o *ObjectBase) waitUntil(interest Signals, deadline arch.Instant, hasDeadline bool) (Signals, error) {
	g := o.wl.Lock()
	defer g.Unlock()
	for {
		v := *g.Get()
		if interest == 0 || v&interest != 0 {
			return v, nil
		}
		var err error
		if hasDeadline {
			err = g.WaitUntil(deadline)
		} else {
			err = g.Wait()
		}
		if err != nil {
			return *g.Get(), err
		}
	}
}
