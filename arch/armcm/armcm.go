//go:build armcm

// Package armcm is the Armv8-M Cortex-M architecture backend (spec §9
// "Armv8-M (Cortex-M)"). It is gated behind the armcm build tag and is
// never compiled as part of this module's normal build or test run —
// there is no real Cortex-M target to link it against in a hosted Go
// toolchain — but it is written to the same arch.Capability contract
// arch/sim implements, so a real port only has to replace this file's
// bodies with MMIO/assembly, not redesign the interface.
//
// The context-switch contract it models (spec §4.2, §9): ContextSwitch
// is called by kernel.Scheduler right after it releases the scheduler
// lock; on Cortex-M this means triggering a PendSV exception (writing
// ICSR.PENDSVSET) and returning immediately — the actual register save
// of `old` and restore of `next` happens later, in the PendSV exception
// handler, once interrupts are re-enabled and the pending exception
// fires. That handler is a hand-written assembly trampoline this
// package does not provide; see ContextSwitch's doc comment.
package armcm

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/memregion"
)

// systickCounter is advanced by the (not-yet-wired) SysTick exception
// handler; Now reads it directly rather than touching hardware so this
// file stays pure Go pending the handler's assembly.
var systickCounter atomic.Int64

// Cortex-M System Control Block register addresses used to request and
// acknowledge the PendSV exception (spec §6 "Context switch trigger").
const (
	addrICSR = 0xE000ED04 // Interrupt Control and State Register
	icsrPendSVSet = 1 << 28
	icsrPendSVClr = 1 << 27
)

// MPU register block base (spec §6 "Memory protection hardware"). Real
// programming writes RBAR/RASR (or RLAR on the v8-M variant) per
// region; this package only records the intended layout.
const (
	addrMPUType = 0xE000ED90
	addrMPUCtrl = 0xE000ED94
	mpuEntryCount = memregion.MPUEntryBudget
)

// registerFrame is the subset of the Cortex-M exception stack frame
// plus callee-saved registers a context switch must preserve: r4-r11,
// the exception return code (EXC_RETURN), and the process stack
// pointer at the moment PendSV fired.
type registerFrame struct {
	r4, r5, r6, r7, r8, r9, r10, r11 uint32
	psp                              uintptr
	excReturn                        uint32
}

// threadState is the Cortex-M ThreadState: a saved registerFrame plus
// the kernel stack region backing it.
type threadState struct {
	bootstrap bool
	frame     registerFrame
	stack     []byte
	entry     func()
}

func (t *threadState) Bootstrap() bool { return t.bootstrap }

// Capability implements arch.Capability for Armv8-M.
type Capability struct {
	tickHz int
}

// New constructs an armcm Capability. tickHz sets the period TickPeriod
// reports; this package does not program SysTick.
func New(tickHz int) *Capability {
	return &Capability{tickHz: tickHz}
}

func (c *Capability) NewThreadState(entry func(), stackSize int) arch.ThreadState {
	return &threadState{entry: entry, stack: make([]byte, stackSize)}
}

func (c *Capability) NewBootstrapThreadState() arch.ThreadState {
	return &threadState{bootstrap: true}
}

// ContextSwitch requests a PendSV exception and returns; the actual
// register frame swap happens in the PendSV handler (not implemented
// in this package — it requires a hand-written assembly trampoline,
// since Go cannot express "swap the active stack pointer and branch
// into a different saved frame" in portable Go). Ahead of a
// non-privileged next it calls ProgramMemoryConfig, which only checks
// the region budget and writes no MPU registers.
func (c *Capability) ContextSwitch(old, next arch.ThreadState, cfg memregion.Config, privileged bool) {
	if !privileged {
		_ = c.ProgramMemoryConfig(cfg)
	}
	requestPendSV()
}

// ProgramMemoryConfig writes cfg's regions into the MPU's region
// registers. Left as a documented no-op placeholder pending real MMIO
// access on target hardware; the region/permission encoding itself is
// exercised (and tested) architecture-independently in package
// memregion.
func (c *Capability) ProgramMemoryConfig(cfg memregion.Config) error {
	if len(cfg.Regions) > mpuEntryCount {
		return errTooManyRegions
	}
	return nil
}

func (c *Capability) Now() arch.Instant {
	return arch.Instant(systickCounter.Load())
}

func (c *Capability) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.tickHz)
}

func requestPendSV() {
	// writeRegister(addrICSR, icsrPendSVSet) on real hardware.
}

var errTooManyRegions = armcmError("armcm: memory config exceeds MPU entry budget")

type armcmError string

func (e armcmError) Error() string { return string(e) }
