package spinlock

import "sync/atomic"

// PreemptDisableCount is the process-wide preempt-disable counter (spec
// §4.1/§9: "All process-wide state... is expressed as a process-lifetime
// singleton"). Every Typed guard increments it on acquire and decrements
// on release; Scheduler.CheckPoint consults CanPreempt before switching
// away from the running thread on an expired timeslice.
var PreemptDisableCount atomic.Int32

// CanPreempt reports whether the scheduler may currently preempt the
// running thread (no Typed spinlock guard is held).
func CanPreempt() bool {
	return PreemptDisableCount.Load() == 0
}

// Typed wraps a value of type T behind a Bare spinlock. Unlike a plain
// Bare, a Typed lock must never be recursively acquired by the same
// logical thread — spec §4.1 makes this a documented precondition, not a
// runtime-checked one, since the bare lock has no notion of "owner" to
// check against; arch/sim's single-runnable-thread invariant is what
// actually prevents self-deadlock in the hosted simulation.
type Typed[T any] struct {
	lock  Bare
	value T
}

// NewTyped constructs a Typed spinlock around an initial value.
func NewTyped[T any](value T) *Typed[T] {
	return &Typed[T]{value: value}
}

// TypedGuard grants exclusive access to the wrapped value for as long as
// it is held.
type TypedGuard[T any] struct {
	bare *Guard
	ts   *Typed[T]
}

// Lock acquires the typed spinlock, disables interrupts via the
// underlying Bare lock, and increments PreemptDisableCount.
func (t *Typed[T]) Lock() *TypedGuard[T] {
	g := t.lock.Lock()
	PreemptDisableCount.Add(1)
	return &TypedGuard[T]{bare: g, ts: t}
}

// TryLock is the non-blocking variant of Lock.
func (t *Typed[T]) TryLock() (*TypedGuard[T], bool) {
	g, ok := t.lock.TryLock()
	if !ok {
		return nil, false
	}
	PreemptDisableCount.Add(1)
	return &TypedGuard[T]{bare: g, ts: t}, true
}

// Get returns a pointer to the protected value for the duration the
// guard is held.
func (g *TypedGuard[T]) Get() *T {
	return &g.ts.value
}

// Unlock releases the guard and decrements PreemptDisableCount.
func (g *TypedGuard[T]) Unlock() {
	g.bare.Unlock()
	PreemptDisableCount.Add(-1)
}
