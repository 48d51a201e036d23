package kobject

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-microkernel/internal/kerr"
)

// Object is anything a HandleTable can own: every kernel object
// (Ticker, Channel, future additions) satisfies it trivially.
type Object interface {
	Close() error
}

// Handle is an opaque per-process reference to an Object: a slot index
// in the low 32 bits plus a generation counter in the high 32 bits.
// The generation guards against a stale Handle (kept around past a
// Close/reuse of its slot) silently addressing a different, newer
// object — the concrete failure mode of a bare array-index handle that
// a generation counter exists to rule out.
type Handle uint64

func newHandle(idx int, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(uint32(idx)))
}

func (h Handle) index() int         { return int(uint32(h)) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

type handleSlot struct {
	obj        Object
	refcount   atomic.Int32
	generation uint32
	occupied   bool
}

// HandleTable is the process-local, bounded object directory of spec
// §4.6 ("a per-process handle-indexed table... O(1) lookup").
//
// This is a deliberate redesign away from eventloop/registry.go's
// handleRegistry, which backs its handle space with a Go map plus
// weak.Pointer-scavenged entries reaped by a background goroutine —
// exactly the kind of unbounded, GC-timing-dependent structure a
// kernel handle table cannot have (spec §9's capacity/latency
// requirements rule out both an unbounded map and GC-driven cleanup).
// HandleTable instead pre-sizes a fixed slot array up front, reuses
// freed slots from an explicit free list, and uses a generation
// counter instead of weak-pointer liveness checks to detect stale
// handles.
type HandleTable struct {
	mu       sync.Mutex
	slots    []handleSlot
	free     []int
	capacity int
}

// NewHandleTable constructs a table bounded to capacity live handles
// (spec's kconfig.MaxHandlesPerProcess).
func NewHandleTable(capacity int) *HandleTable {
	return &HandleTable{capacity: capacity}
}

// Insert adds obj to the table and returns its Handle. Returns
// ResourceExhausted once capacity live handles are held.
func (t *HandleTable) Insert(obj Object) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= t.capacity {
			return 0, kerr.New(kerr.ResourceExhausted, "handle table full")
		}
		idx = len(t.slots)
		t.slots = append(t.slots, handleSlot{})
	}

	slot := &t.slots[idx]
	slot.obj = obj
	slot.occupied = true
	slot.generation++
	slot.refcount.Store(1)
	return newHandle(idx, slot.generation), nil
}

// Get resolves h to its Object, incrementing its refcount. The caller
// must call Put when done referencing it. Returns NotFound for an
// unknown, closed, or stale (reused-slot) handle.
func (t *HandleTable) Get(h Handle) (Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, kerr.New(kerr.NotFound, "invalid handle")
	}
	slot := &t.slots[idx]
	if !slot.occupied || slot.generation != h.generation() {
		return nil, kerr.New(kerr.NotFound, "stale or closed handle")
	}
	slot.refcount.Add(1)
	return slot.obj, nil
}

// Put releases a reference obtained from Get.
func (t *HandleTable) Put(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return
	}
	slot := &t.slots[idx]
	if slot.occupied && slot.generation == h.generation() {
		slot.refcount.Add(-1)
	}
}

// Close releases the table's own reference to h and, once the
// refcount reaches zero, closes the underlying Object and returns its
// slot to the free list. Returns NotFound if h is unknown or already
// closed.
func (t *HandleTable) Close(h Handle) error {
	t.mu.Lock()
	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		t.mu.Unlock()
		return kerr.New(kerr.NotFound, "invalid handle")
	}
	slot := &t.slots[idx]
	if !slot.occupied || slot.generation != h.generation() {
		t.mu.Unlock()
		return kerr.New(kerr.NotFound, "stale or closed handle")
	}
	remaining := slot.refcount.Add(-1)
	var obj Object
	if remaining <= 0 {
		obj = slot.obj
		slot.obj = nil
		slot.occupied = false
		t.free = append(t.free, idx)
	}
	t.mu.Unlock()

	if obj != nil {
		return obj.Close()
	}
	return nil
}

// CloseAll closes every live handle, implementing kernel.HandleTable
// so Process can tear down a process's object set on exit without
// kernel importing kobject.
func (t *HandleTable) CloseAll() {
	t.mu.Lock()
	objs := make([]Object, 0, len(t.slots))
	for i := range t.slots {
		slot := &t.slots[i]
		if slot.occupied {
			objs = append(objs, slot.obj)
			slot.obj = nil
			slot.occupied = false
			t.free = append(t.free, i)
		}
	}
	t.mu.Unlock()

	for _, obj := range objs {
		_ = obj.Close()
	}
}
