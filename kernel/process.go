package kernel

import (
	"sync"

	"github.com/joeycumines/go-microkernel/memregion"
)

// HandleTable is the process-local object directory a Process owns.
// Defined here, not in kobject, so kernel never imports kobject —
// kobject imports kernel instead, avoiding a cycle while still letting
// Process carry a handle table reference.
type HandleTable interface {
	CloseAll()
}

// Process is the memory-protection and privilege boundary of spec §3
// ("Process"): a MemoryConfig, a privilege flag, and the set of Threads
// running inside it.
type Process struct {
	Name       string
	MemConfig  memregion.Config
	Privileged bool

	Handles HandleTable

	mu      sync.Mutex
	threads []*Thread
}

// NewProcess constructs a Process. Privileged processes (the kernel's
// own bootstrap/idle process) are never subject to MPU/PMP programming
// on context switch in or out (spec §4.4).
func NewProcess(name string, cfg memregion.Config, privileged bool) *Process {
	return &Process{Name: name, MemConfig: cfg, Privileged: privileged}
}

func (p *Process) addThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads = append(p.threads, t)
}

// Threads returns a snapshot of the threads currently registered to
// this process.
func (p *Process) Threads() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Thread, len(p.threads))
	copy(out, p.threads)
	return out
}
