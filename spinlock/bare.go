// Package spinlock implements the kernel's lowest-level mutual exclusion
// primitive (spec §4.1): a bare, interrupt-disabling critical section on
// a uniprocessor, and a typed wrapper that additionally tracks the
// per-CPU preempt-disable count.
//
// On real Cortex-M/RV32 silicon, "lock" means "disable interrupts"
// (CPSID/mstatus.MIE) and "unlock" means "restore the prior interrupt
// enable state" — there is nothing else to contend with on a single
// hart. Hosted Go has no such flag to flip, so Bare models the same
// contract (exclusive critical section, scoped release, prior-state
// restoration) with a real mutex plus an explicit "interrupts disabled"
// bit; arch/sim's tick source cooperates by calling Scheduler.Tick,
// which takes the scheduler's own Bare lock. This is the one
// hosted-simulation compromise the module makes; see DESIGN.md.
package spinlock

import "sync"

// Bare is an interrupt-disabling critical section. The zero value is an
// unlocked spinlock with interrupts enabled.
type Bare struct {
	mu       sync.Mutex
	disabled bool
}

// Guard is returned by TryLock/Lock. Unlock restores interrupts to
// exactly the state they were in before Lock was called, and is safe to
// call exactly once; calling it twice is a programmer error, matching
// the "no poisoning on panic" / "a panic inside a critical section
// terminates the kernel" policy of spec §4.1 (Unlock does not defend
// against double-release).
type Guard struct {
	lock *Bare
	prev bool
}

// TryLock attempts to acquire the spinlock without blocking. It returns
// (nil, false) if already held.
func (b *Bare) TryLock() (*Guard, bool) {
	if !b.mu.TryLock() {
		return nil, false
	}
	prev := b.disabled
	b.disabled = true
	return &Guard{lock: b, prev: prev}, true
}

// Lock acquires the spinlock, spinning (blocking) on contention.
func (b *Bare) Lock() *Guard {
	b.mu.Lock()
	prev := b.disabled
	b.disabled = true
	return &Guard{lock: b, prev: prev}
}

// Unlock releases the guard, restoring the interrupt-enable state that
// was current when Lock/TryLock was called.
func (g *Guard) Unlock() {
	g.lock.disabled = g.prev
	g.lock.mu.Unlock()
}

// InterruptsDisabled reports whether this spinlock currently holds
// interrupts disabled. arch/sim's tick source does not consult it; a
// simulated tick waits for a critical section only by taking the lock.
func (b *Bare) InterruptsDisabled() bool {
	return b.disabled
}
