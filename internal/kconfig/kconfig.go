// Package kconfig holds kernel bring-up configuration, following the
// functional-options shape of eventloop/options.go (LoopOption /
// loopOptionImpl / resolveLoopOptions), generalized from a single Loop's
// options to the whole kernel's boot-time configuration.
package kconfig

import "time"

// Config is the resolved, immutable configuration used for one kernel
// boot. Zero value is invalid; use Resolve.
type Config struct {
	// TickHz is the scheduler tick rate. Spec §4.2 specifies "≈100 Hz by
	// configuration".
	TickHz int

	// KernelStackSize is the per-thread kernel stack allocation size in
	// bytes, matching spec §6's KERNEL_STACK_SIZE_BYTES.
	KernelStackSize int

	// MaxHandlesPerProcess bounds the handle table capacity (spec §4.6:
	// "a per-process handle-indexed table").
	MaxHandlesPerProcess int

	// DebugSyscallsEnabled gates the 0xF000+ debug/testing syscall range
	// (spec §6).
	DebugSyscallsEnabled bool

	// DebugLogRate bounds how often a single process may invoke
	// DebugLog/DebugPutc, enforced via go-catrate in package kcall.
	DebugLogRate map[time.Duration]int

	// TimesliceTicks is the number of scheduler ticks a Running thread
	// is allowed before a round-robin preemption is requested (spec
	// §4.2 "quantized by the scheduler tick").
	TimesliceTicks int
}

// TickPeriod is the wall-clock period implied by TickHz.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// Option configures a Config, mirroring LoopOption's
// apply-function-wrapped-in-an-interface shape.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithTickHz overrides the default 100Hz scheduler tick rate.
func WithTickHz(hz int) Option {
	return optionFunc(func(c *Config) { c.TickHz = hz })
}

// WithKernelStackSize overrides the default per-thread stack size.
func WithKernelStackSize(n int) Option {
	return optionFunc(func(c *Config) { c.KernelStackSize = n })
}

// WithMaxHandlesPerProcess overrides the default handle table capacity.
func WithMaxHandlesPerProcess(n int) Option {
	return optionFunc(func(c *Config) { c.MaxHandlesPerProcess = n })
}

// WithDebugSyscalls toggles the debug/testing syscall range.
func WithDebugSyscalls(enabled bool) Option {
	return optionFunc(func(c *Config) { c.DebugSyscallsEnabled = enabled })
}

// WithDebugLogRate overrides the default debug-log rate limit windows.
func WithDebugLogRate(rates map[time.Duration]int) Option {
	return optionFunc(func(c *Config) { c.DebugLogRate = rates })
}

// WithTimesliceTicks overrides the default round-robin timeslice.
func WithTimesliceTicks(n int) Option {
	return optionFunc(func(c *Config) { c.TimesliceTicks = n })
}

// Resolve applies opts over the default configuration.
func Resolve(opts ...Option) Config {
	cfg := Config{
		TickHz:               100,
		KernelStackSize:      4096,
		MaxHandlesPerProcess: 64,
		DebugSyscallsEnabled: true,
		DebugLogRate: map[time.Duration]int{
			time.Second: 200,
			time.Minute: 4000,
		},
		TimesliceTicks: 4,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	return cfg
}
