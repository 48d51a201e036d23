// Package ksync implements the kernel's higher-level synchronization
// primitives — Event and Mutex[T] — on top of kernel.WaitLock, per spec
// §4.3's "Wait-queue lock" building block and its two named consumers.
package ksync

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/kernel"
)

// ResetMode selects an Event's post-wake behavior (spec §4.3 "Event").
type ResetMode int

const (
	// AutoReset clears the signal for exactly one waiter per Set call:
	// at most one waiter wakes per signal.
	AutoReset ResetMode = iota
	// ManualReset leaves the signal set until explicitly Reset, waking
	// every current and future waiter until then.
	ManualReset
)

type eventState struct {
	mode   ResetMode
	signal bool
}

// Event is a boolean wait primitive with Auto or Manual reset semantics.
type Event struct {
	wl *kernel.WaitLock[eventState]
}

// NewEvent constructs an unsignaled Event.
func NewEvent(sched *kernel.Scheduler, mode ResetMode) *Event {
	return &Event{wl: kernel.NewWaitLock[eventState](sched, eventState{mode: mode})}
}

// Set signals the event. Under AutoReset this wakes exactly one waiter
// (or leaves the signal pending for the next Wait if there are none
// currently queued); under ManualReset it wakes every current waiter
// and leaves the signal set for any future Wait to return immediately.
func (e *Event) Set() {
	g := e.wl.Lock()
	defer g.Unlock()
	st := g.Get()
	st.signal = true
	if st.mode == ManualReset {
		g.WakeAll()
		return
	}
	if g.WakeOne() == kernel.QueueEmpty {
		return
	}
	// A waiter was handed the signal directly; AutoReset must not leave
	// it pending for the next Wait call too.
	st.signal = false
}

// Reset clears the event's pending signal, in either reset mode (an
// AutoReset event's signal left pending by a Set with no waiter is
// cleared too).
func (e *Event) Reset() {
	g := e.wl.Lock()
	defer g.Unlock()
	g.Get().signal = false
}

// Wait blocks until the event is signaled.
func (e *Event) Wait() error {
	return e.wait(0, false)
}

// WaitUntil blocks until the event is signaled or deadline elapses.
func (e *Event) WaitUntil(deadline arch.Instant) error {
	return e.wait(deadline, true)
}

func (e *Event) wait(deadline arch.Instant, hasDeadline bool) error {
	g := e.wl.Lock()
	st := g.Get()
	if st.signal {
		if st.mode == AutoReset {
			st.signal = false
		}
		g.Unlock()
		return nil
	}
	var err error
	if hasDeadline {
		err = g.WaitUntil(deadline)
	} else {
		err = g.Wait()
	}
	g.Unlock()
	return err
}
