// Package arch defines the architecture capability set the scheduler
// depends on (spec §9: "Define a capability set {ThreadState,
// BareSpinLock, Clock, KernelContext} and pass it explicitly to
// scheduler operations rather than relying on ambient type parameters").
//
// The kernel package imports only this package, never a concrete
// architecture; arch/sim, arch/armcm and arch/riscv are separate
// packages implementing it. This fuses the two parallel arch-port
// layouts the original source carries (spec §9, Open Questions) into
// the single newer shape: one Capability interface parameterized over
// the target.
package arch

import (
	"time"

	"github.com/joeycumines/go-microkernel/memregion"
)

// Instant is a signed, checked-arithmetic monotonic tick count, per spec
// §3 ("Instant / Duration... arithmetic is checked; saturation never
// occurs silently").
type Instant int64

// Duration is a signed tick-count delta.
type Duration int64

// Add returns i+d and true, or the zero Instant and false on signed
// overflow.
func (i Instant) Add(d Duration) (Instant, bool) {
	r := i + Instant(d)
	if (d > 0 && r < i) || (d < 0 && r > i) {
		return 0, false
	}
	return r, true
}

// Sub returns the Duration between two Instants, checked for overflow.
func (i Instant) Sub(o Instant) (Duration, bool) {
	r := Duration(i - o)
	if (o > i && r > 0) || (o < i && r < 0) {
		return 0, false
	}
	return r, true
}

// Before reports whether i happens before o.
func (i Instant) Before(o Instant) bool { return i < o }

// Clock is the platform monotonic tick source (spec §2.4, §6 "Timer
// hardware"): SysTick on Arm, mtime/mtimecmp on RISC-V, a time.Ticker
// on arch/sim.
type Clock interface {
	// Now returns the current tick count.
	Now() Instant
	// TickPeriod is the wall-clock duration of one tick, derived from
	// the configured tick rate.
	TickPeriod() time.Duration
}

// ThreadState is the per-thread architecture handle: the saved register
// frame plus stack pointer of spec §3's Thread entity. Concrete
// architectures give this whatever shape their register bank needs;
// the scheduler only ever moves the handle around and passes it to
// ContextSwitch.
type ThreadState interface {
	// Bootstrap marks this ThreadState as the distinguished bootstrap
	// thread reusing the initial stack (spec §4.2 "Bootstrap").
	Bootstrap() bool
}

// KernelContext is the per-target context-switch and MPU/PMP
// programming capability (spec §4.2 "Context switch contract", §4.4).
type KernelContext interface {
	// ContextSwitch is invoked by the scheduler right after it has
	// released the scheduler lock; the lock is not held across the
	// switch, and the resumed thread reacquires it itself. It returns only once `old`'s ThreadState has been
	// selected to run again (or immediately, for the bootstrap "half
	// switch" described in spec §4.2). If next's owning process is
	// non-privileged, the implementation programs MPU/PMP from cfg
	// before returning control to it.
	ContextSwitch(old, next ThreadState, cfg memregion.Config, privileged bool)

	// ProgramMemoryConfig installs cfg into the hardware MPU/PMP ahead
	// of running a non-privileged thread. Exposed separately from
	// ContextSwitch so kernel objects that validate syscall buffers can
	// reason about "what is currently programmed" without switching.
	ProgramMemoryConfig(cfg memregion.Config) error
}

// Capability bundles the pieces the scheduler needs from one
// architecture port.
type Capability interface {
	Clock
	KernelContext
	// NewThreadState allocates a ThreadState for a new, not-yet-started
	// thread, wiring entry as the function the thread begins executing
	// once the scheduler first switches to it.
	NewThreadState(entry func(), stackSize int) ThreadState
	// NewBootstrapThreadState returns the distinguished ThreadState for
	// the bootstrap thread that re-uses the boot stack (spec §4.2).
	NewBootstrapThreadState() ThreadState
}
