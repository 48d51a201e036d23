package kobject

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/ktimer"
)

// Ticker is a periodic, waitable kernel object: it raises
// SignalReadable on the scheduler's timer queue every period, and the
// signal is cleared by Acknowledge, not by the fire callback, so a
// consumer that is briefly descheduled still observes a pending tick
// instead of losing it.
type Ticker struct {
	base   *ObjectBase
	sched  *kernel.Scheduler
	period arch.Duration
	entry  *ktimer.Entry
}

// NewTicker constructs a Ticker with the given period, in scheduler
// ticks. Call Start to arm it.
func NewTicker(sched *kernel.Scheduler, period arch.Duration) *Ticker {
	return &Ticker{base: NewObjectBase(sched, 0), sched: sched, period: period}
}

// Start arms the ticker's first deadline.
func (t *Ticker) Start() {
	now := t.sched.Capability().Now()
	deadline, ok := now.Add(t.period)
	if !ok {
		return
	}
	t.entry = &ktimer.Entry{Deadline: deadline, Callback: t.fire}
	t.sched.Timers().Schedule(t.entry)
}

func (t *Ticker) fire(now arch.Instant, e *ktimer.Entry) (arch.Instant, bool) {
	t.base.Signal(SignalReadable, 0)
	next, ok := now.Add(t.period)
	if !ok {
		return 0, false
	}
	return next, true
}

// Wait blocks until the next tick fires.
func (t *Ticker) Wait() {
	t.base.Wait(SignalReadable)
}

// SignalWait implements the generic kernel-object wait call used by
// kcall's SysObjectWait: it blocks until any bit in interest is active
// and returns the active set observed.
func (t *Ticker) SignalWait(interest Signals) Signals {
	return t.base.Wait(interest)
}

// WaitUntil blocks until the next tick fires or deadline elapses.
func (t *Ticker) WaitUntil(deadline arch.Instant) error {
	_, err := t.base.WaitUntil(SignalReadable, deadline)
	return err
}

// Acknowledge clears the pending tick signal.
func (t *Ticker) Acknowledge() {
	t.base.Signal(0, SignalReadable)
}

// Stop cancels the ticker's pending deadline. Safe to call even if the
// ticker already fired or was never started.
func (t *Ticker) Stop() {
	if t.entry != nil {
		t.entry.Cancel()
	}
}

// Close implements Object so Ticker can live in a HandleTable.
func (t *Ticker) Close() error {
	t.Stop()
	t.base.Signal(SignalClosed, SignalReadable)
	return nil
}
