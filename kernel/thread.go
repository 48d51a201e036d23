// Package kernel implements the scheduler core (spec §4.2), the
// wait-queue lock (§4.3), and the Thread/Process data model (§3).
//
// The package is deliberately flat and tightly coupled — Thread,
// Process, Scheduler and WaitLock all live here — mirroring
// eventloop's own single-package layout for its Loop/state
// machine/registry, rather than splitting scheduler-adjacent concerns
// across packages that would only create import cycles for no benefit.
package kernel

import (
	"sync/atomic"

	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/ktimer"
)

// Instant and Duration re-export arch's checked monotonic tick types so
// callers of this package never need to import arch directly.
type (
	Instant  = arch.Instant
	Duration = arch.Duration
)

// State is a Thread's position in the state machine of spec §4.2.
type State int

const (
	stateCreated State = iota
	Ready
	Running
	Waiting
	Exited
)

func (s State) String() string {
	switch s {
	case stateCreated:
		return "Created"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

var nextThreadID atomic.Uint64

// Thread is the unit of scheduling (spec §3 "Thread"). All fields below
// the dashed line are mutated only while the owning Scheduler's lock is
// held, per §3's "Mutated only under the scheduler lock" invariant.
type Thread struct {
	ID      uint64
	Name    string
	Process *Process

	archState arch.ThreadState
	sched     *Scheduler

	// ---- scheduler-lock-protected below ----

	state          State
	ticksRemaining int

	// Intrusive ready-queue link fields (spec §9: nodes are fields
	// inside Thread, never a separately allocated wrapper).
	readyNext, readyPrev *Thread

	// Intrusive wait-queue link fields; a Thread is on at most one wait
	// queue at a time (spec §3 "Wait queue").
	waitNext, waitPrev *Thread
	waitOn             waitQueueOwner

	// timer is this Thread's in-flight wait_until/sleep_until deadline,
	// or nil if the current wait has no deadline.
	timer *ktimer.Entry

	// waitResult is set by whichever path unparks the thread: nil for
	// a normal wake, a *kerr.Status{Kind: DeadlineExceeded} for a timed
	// out wait.
	waitResult error
}

// waitQueueOwner is implemented by WaitLock[T] (via a non-generic
// adapter) so a Thread can record, and a timeout callback can
// recognise, which wait queue it is currently parked on without the
// Thread type itself being generic.
type waitQueueOwner interface {
	removeWaitLocked(t *Thread)
}

// State returns the thread's current scheduler state. Safe to call from
// any goroutine; the caller should not assume the value stays current
// beyond the call (spec: mutated only under the scheduler lock).
func (t *Thread) State() State { return t.state }

// Scheduler returns the Scheduler this thread was registered with.
func (t *Thread) Scheduler() *Scheduler { return t.sched }

// CheckPoint cooperatively honors a pending timeslice-expiry preemption
// request. Thread bodies that run CPU-bound loops without otherwise
// calling into a blocking kernel primitive must call this periodically
// for round-robin fairness to take effect — see the package doc of
// arch/sim for why hosted Go cannot preempt a goroutine asynchronously
// at an arbitrary instruction.
func (t *Thread) CheckPoint() {
	t.sched.CheckPoint()
}
