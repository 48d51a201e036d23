package kernel

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/ktimer"
	"github.com/joeycumines/go-microkernel/spinlock"
)

// WaitLock bundles a FIFO wait queue with a protected value T behind the
// scheduler's own global spinlock, per spec §4.3: "a WaitLock[T] is a
// lock over a {WaitQueue, T} pair, using the same critical section as
// scheduling decisions so wake-one and ready-queue insertion are
// atomic with respect to each other." It is the building block ksync's
// Event and Mutex[T] are implemented on top of.
type WaitLock[T any] struct {
	sched *Scheduler
	value T

	waitHead, waitTail *Thread
}

// NewWaitLock constructs a WaitLock bound to sched's scheduler lock,
// with its protected value initialized to initial.
func NewWaitLock[T any](sched *Scheduler, initial T) *WaitLock[T] {
	return &WaitLock[T]{sched: sched, value: initial}
}

// WaitGuard is held while the scheduler lock is held on behalf of one
// WaitLock[T] critical section.
type WaitGuard[T any] struct {
	wl    *WaitLock[T]
	guard *spinlock.Guard
}

// Lock acquires the scheduler lock and grants access to the protected
// value plus Wait/Wake operations on this WaitLock's queue.
func (wl *WaitLock[T]) Lock() *WaitGuard[T] {
	return &WaitGuard[T]{wl: wl, guard: wl.sched.lock.Lock()}
}

// Get returns a pointer to the protected value, valid only while the
// guard is held.
func (g *WaitGuard[T]) Get() *T { return &g.wl.value }

// Unlock releases the scheduler lock.
func (g *WaitGuard[T]) Unlock() {
	g.guard.Unlock()
}

func (wl *WaitLock[T]) enqueueWaitLocked(t *Thread) {
	t.waitNext, t.waitPrev = nil, nil
	t.waitOn = wl
	if wl.waitTail == nil {
		wl.waitHead, wl.waitTail = t, t
		return
	}
	t.waitPrev = wl.waitTail
	wl.waitTail.waitNext = t
	wl.waitTail = t
}

// removeWaitLocked implements waitQueueOwner, used both by WakeOne's
// normal dequeue and by a deadline timer callback unparking a specific
// thread out of order.
func (wl *WaitLock[T]) removeWaitLocked(t *Thread) {
	if t.waitOn != wl {
		return
	}
	if t.waitPrev != nil {
		t.waitPrev.waitNext = t.waitNext
	} else {
		wl.waitHead = t.waitNext
	}
	if t.waitNext != nil {
		t.waitNext.waitPrev = t.waitPrev
	} else {
		wl.waitTail = t.waitPrev
	}
	t.waitNext, t.waitPrev, t.waitOn = nil, nil, nil
}

func (wl *WaitLock[T]) dequeueWaitLocked() *Thread {
	t := wl.waitHead
	if t == nil {
		return nil
	}
	wl.removeWaitLocked(t)
	return t
}

// Wait parks the calling thread on this WaitLock's queue with no
// deadline, releasing the scheduler lock across the park and
// reacquiring it once woken. It returns nil; WaitLock.Wait never times
// out.
func (g *WaitGuard[T]) Wait() error {
	return g.waitUntil(0, false)
}

// WaitUntil parks the calling thread until woken or until deadline
// elapses, whichever comes first. It returns a *kerr.Status with Kind
// DeadlineExceeded if the deadline elapsed first.
func (g *WaitGuard[T]) WaitUntil(deadline arch.Instant) error {
	return g.waitUntil(deadline, true)
}

func (g *WaitGuard[T]) waitUntil(deadline arch.Instant, hasDeadline bool) error {
	wl := g.wl
	s := wl.sched
	cur := s.current
	cur.state = Waiting
	wl.enqueueWaitLocked(cur)

	if hasDeadline {
		timer := &ktimer.Entry{Deadline: deadline, Callback: func(now arch.Instant, e *ktimer.Entry) (arch.Instant, bool) {
			sg := s.lock.Lock()
			if cur.state == Waiting && cur.timer == e {
				wl.removeWaitLocked(cur)
				cur.timer = nil
				cur.waitResult = kerr.New(kerr.DeadlineExceeded, "wait_until deadline exceeded")
				cur.state = Ready
				s.enqueueReadyLocked(cur)
			}
			sg.Unlock()
			return 0, false
		}}
		cur.timer = timer
		s.timers.Schedule(timer)
	}

	next := s.pickNextLocked()
	s.switchLocked(g.guard, next, false)

	// cur has been rescheduled: the scheduler lock was dropped across
	// the park, so it must be reacquired before touching shared state
	// again (spec §4.3: "wait drops the guard and, on return,
	// reacquires it").
	g.guard = s.lock.Lock()
	if cur.timer != nil {
		cur.timer.Cancel()
		cur.timer = nil
	}
	result := cur.waitResult
	cur.waitResult = nil
	return result
}

// WakeResult reports the outcome of a wake attempt.
type WakeResult int

const (
	// Woke indicates a waiter was dequeued and made Ready.
	Woke WakeResult = iota
	// QueueEmpty indicates there was no waiter to wake.
	QueueEmpty
)

// WakeOne dequeues and readies the longest-waiting thread on this
// WaitLock's queue, if any (spec §4.3 "wake_one").
func (g *WaitGuard[T]) WakeOne() WakeResult {
	t := g.wl.dequeueWaitLocked()
	if t == nil {
		return QueueEmpty
	}
	if t.timer != nil {
		t.timer.Cancel()
		t.timer = nil
	}
	t.waitResult = nil
	t.state = Ready
	g.wl.sched.enqueueReadyLocked(t)
	return Woke
}

// WakeAll wakes every waiter currently queued, returning the count
// woken (spec §4.3 "wake_all").
func (g *WaitGuard[T]) WakeAll() int {
	n := 0
	for g.WakeOne() == Woke {
		n++
	}
	return n
}

// Empty reports whether the wait queue currently has no waiters.
func (g *WaitGuard[T]) Empty() bool {
	return g.wl.waitHead == nil
}
