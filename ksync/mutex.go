package ksync

import (
	"errors"

	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/internal/klog"
	"github.com/joeycumines/go-microkernel/kernel"
)

type mutexState[T any] struct {
	holder *kernel.Thread
	value  T
}

// Mutex[T] bundles mutual exclusion with a protected value T (spec
// §4.3 "Mutex[T]"), directly atop kernel.WaitLock rather than
// duplicating its wait-queue bookkeeping. Ownership is tracked so
// recursive acquisition by the same thread is diagnosed instead of
// deadlocking silently.
type Mutex[T any] struct {
	sched *kernel.Scheduler
	wl    *kernel.WaitLock[mutexState[T]]
}

// NewMutex constructs an unlocked Mutex guarding initial.
func NewMutex[T any](sched *kernel.Scheduler, initial T) *Mutex[T] {
	return &Mutex[T]{sched: sched, wl: kernel.NewWaitLock[mutexState[T]](sched, mutexState[T]{value: initial})}
}

// Guard is returned by Lock/LockUntil while the mutex is held.
type Guard[T any] struct {
	m     *Mutex[T]
	value *T
}

// Get returns a pointer to the protected value, valid only while the
// guard is held. Only the holding thread ever touches it (the
// simulated single-hart scheduler never runs two threads
// concurrently), so no further locking is needed here.
func (g *Guard[T]) Get() *T {
	return g.value
}

// Unlock marks the mutex free and wakes the longest-waiting thread, if
// any. Ownership is not handed over directly: the woken thread takes
// the mutex when it next runs, and if another thread has locked it in
// the meantime it waits again at the tail of the queue.
func (g *Guard[T]) Unlock() {
	ig := g.m.wl.Lock()
	ig.Get().holder = nil
	ig.WakeOne()
	ig.Unlock()
}

// errRecursiveAcquire is the sentinel reported (and logged, fatally)
// when a thread calls Lock/LockUntil on a mutex it already holds.
var errRecursiveAcquire = errors.New("ksync: recursive mutex acquisition")

// Lock acquires the mutex, blocking if it is held. A thread that
// already holds this mutex calling Lock again is a kernel programming
// error (spec §7 "recursive mutex acquisition") and halts the kernel
// rather than deadlocking silently.
func (m *Mutex[T]) Lock() *Guard[T] {
	g, err := m.tryAcquire(0, false)
	if err != nil {
		// Lock has no deadline: the only error tryAcquire can return
		// here is the recursion sentinel, already fatally logged.
		panic(err)
	}
	return g
}

// LockUntil acquires the mutex, blocking until deadline elapses if
// still unavailable. On timeout it returns a non-nil error; the
// waiting thread is simply removed from the wait queue with no other
// side effects (spec §4.3's "undo on timeout").
func (m *Mutex[T]) LockUntil(deadline arch.Instant) (*Guard[T], error) {
	return m.tryAcquire(deadline, true)
}

func (m *Mutex[T]) tryAcquire(deadline arch.Instant, hasDeadline bool) (*Guard[T], error) {
	// Current takes the scheduler lock itself, so it is read before
	// m.wl.Lock acquires that same lock.
	cur := m.sched.Current()
	ig := m.wl.Lock()
	st := ig.Get()
	if st.holder == cur && cur != nil {
		ig.Unlock()
		klog.PanicErr("ksync: recursive mutex acquisition by same thread", errRecursiveAcquire)
		return nil, errRecursiveAcquire
	}
	for st.holder != nil {
		var err error
		if hasDeadline {
			err = ig.WaitUntil(deadline)
		} else {
			err = ig.Wait()
		}
		if err != nil {
			ig.Unlock()
			return nil, err
		}
		st = ig.Get()
	}
	st.holder = cur
	value := &st.value
	ig.Unlock()
	return &Guard[T]{m: m, value: value}, nil
}
