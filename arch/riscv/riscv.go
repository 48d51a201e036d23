//go:build riscv

// Package riscv is the RV32 architecture backend (spec §9 "RISC-V
// (RV32)"). Like arch/armcm, it is gated behind a build tag and never
// compiled as part of this module's normal build or test run — there is
// no real RV32 target to link it against in a hosted Go toolchain — but
// it is written to the same arch.Capability contract arch/sim
// implements.
//
// Unlike Cortex-M's PendSV-deferred switch, RV32 has no hardware
// exception queued for "later": a syscall reaches the kernel via a
// synchronous ECALL trap, and a timer interrupt reaches it via mtvec
// pointing directly at the trap handler. Either way, by the time kernel
// Go code is running, it is already inside the trap context with the
// interrupted thread's registers already saved to its trap frame by the
// handler prologue. ContextSwitch therefore does not need to arm
// anything and defer: restoring next's frame is the job of the trap
// handler's epilogue on mret, which this package does not provide.
package riscv

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/memregion"
)

// mtimeCounter mirrors the CLINT's memory-mapped mtime register; it is
// advanced by the (not-yet-wired) timer trap handler.
var mtimeCounter atomic.Int64

// PMP (Physical Memory Protection) CSR numbers used to program region
// address/config pairs (spec §6 "Memory protection hardware"). RV32
// exposes pmpaddr0-15 and pmpcfg0/pmpcfg1; this backend only uses the
// first memregion.MPUEntryBudget of those slots, matching the region
// budget arch/armcm and arch/sim also enforce.
const (
	csrPMPCfg0  = 0x3A0
	csrPMPAddr0 = 0x3B0
	pmpEntryCount = memregion.MPUEntryBudget
)

// trapFrame is the subset of general-purpose registers a trap handler's
// prologue saves before entering Go-reachable code and restores from on
// mret: the callee-saved registers (s0-s11), the stack pointer, and the
// saved program counter (mepc) to resume at.
type trapFrame struct {
	s0, s1, s2, s3, s4, s5, s6, s7, s8, s9, s10, s11 uint32
	sp   uintptr
	mepc uint32
}

// threadState is the RV32 ThreadState: a saved trapFrame plus the
// kernel stack region backing it.
type threadState struct {
	bootstrap bool
	frame     trapFrame
	stack     []byte
	entry     func()
}

func (t *threadState) Bootstrap() bool { return t.bootstrap }

// Capability implements arch.Capability for RV32.
type Capability struct {
	tickHz int
}

// New constructs an riscv Capability. tickHz sets the period TickPeriod
// reports; this package does not program mtimecmp.
func New(tickHz int) *Capability {
	return &Capability{tickHz: tickHz}
}

func (c *Capability) NewThreadState(entry func(), stackSize int) arch.ThreadState {
	return &threadState{entry: entry, stack: make([]byte, stackSize)}
}

func (c *Capability) NewBootstrapThreadState() arch.ThreadState {
	return &threadState{bootstrap: true}
}

// ContextSwitch calls ProgramMemoryConfig for next (when
// non-privileged), which only checks the region budget; it records
// nothing about next's frame. Unlike arch/armcm, there is no deferred exception to
// request: the caller is already inside the trap handler that will
// perform the actual register restore once this function returns.
func (c *Capability) ContextSwitch(old, next arch.ThreadState, cfg memregion.Config, privileged bool) {
	if !privileged {
		_ = c.ProgramMemoryConfig(cfg)
	}
	// The trap handler epilogue (not implemented in this package - it
	// requires hand-written assembly, since Go cannot express "restore
	// an arbitrary register file and mret") reads next's threadState
	// frame here and returns into it.
}

// ProgramMemoryConfig writes cfg's regions into the PMP's pmpaddrN/
// pmpcfgN CSRs. Left as a documented no-op placeholder pending real CSR
// access on target hardware; the region/permission encoding itself is
// exercised (and tested) architecture-independently in package
// memregion.
func (c *Capability) ProgramMemoryConfig(cfg memregion.Config) error {
	if len(cfg.Regions) > pmpEntryCount {
		return errTooManyRegions
	}
	return nil
}

func (c *Capability) Now() arch.Instant {
	return arch.Instant(mtimeCounter.Load())
}

func (c *Capability) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.tickHz)
}

var errTooManyRegions = riscvError("riscv: memory config exceeds PMP entry budget")

type riscvError string

func (e riscvError) Error() string { return string(e) }
