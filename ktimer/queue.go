// Package ktimer implements the kernel's timer queue (spec §4.5): a
// monotonically ordered intrusive list of {deadline, callback} entries
// processed on each scheduler tick.
//
// Entries are re-expressed as an intrusive doubly linked list per spec
// §9's explicit design note ("Nodes are fields inside Thread /
// TimerEntry... never copy nodes; dequeue returns the same pointer").
// This is a deliberate departure from eventloop/loop.go's timerHeap
// (container/heap over a slice of timer structs, copied on Push/Pop,
// reallocated as the backing slice grows) — a kernel timer queue must
// not allocate on the hot path and must let a caller hold a stable
// *Entry across Schedule/Cancel, so a heap-of-values is the wrong shape
// here even though it is the right one for a hosted event loop. No
// generic container in the examples pack offers embedded-field
// intrusive linking (every one of them — container/heap, container/list,
// the teacher's own ChunkedIngress — owns its node's memory); this is
// hand-rolled for that reason, not out of preference.
package ktimer

import (
	"sync"

	"github.com/joeycumines/go-microkernel/arch"
)

// Callback is invoked by Process once an Entry's deadline has elapsed.
// It receives the current time and the Entry itself (ownership returns
// to the callback). Returning (newDeadline, true) re-arms the entry in
// place; returning (_, false) consumes it.
type Callback func(now arch.Instant, e *Entry) (arch.Instant, bool)

// Entry is one timer-queue node. Deadline and Callback are set by the
// caller before Schedule; next/prev are owned by Queue.
type Entry struct {
	Deadline arch.Instant
	Callback Callback

	next, prev *Entry
	queue      *Queue
}

// Scheduled reports whether the entry is currently linked into a queue.
func (e *Entry) Scheduled() bool {
	return e.queue != nil
}

// Queue is a sorted intrusive list, earliest deadline at the head,
// guarded by its own mutex (spec §4.5: "clocks are never read under
// interrupts-disabled longer than constant time" — the queue lock is
// independent of the scheduler spinlock so Process can run callbacks
// without the tick handler's critical section held the whole time).
type Queue struct {
	mu   sync.Mutex
	head *Entry
}

// Schedule inserts e in deadline order. e must not already be scheduled
// on any queue.
func (q *Queue) Schedule(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(e)
}

func (q *Queue) insertLocked(e *Entry) {
	e.queue = q
	if q.head == nil || e.Deadline.Before(q.head.Deadline) {
		e.next, e.prev = q.head, nil
		if q.head != nil {
			q.head.prev = e
		}
		q.head = e
		return
	}
	cur := q.head
	for cur.next != nil && !e.Deadline.Before(cur.next.Deadline) {
		cur = cur.next
	}
	e.next = cur.next
	e.prev = cur
	if cur.next != nil {
		cur.next.prev = e
	}
	cur.next = e
}

// Cancel removes e from its queue in O(n). It is a no-op if e is not
// currently scheduled, matching the spec's "cancel(ptr) removes in
// O(n)" without requiring the caller to track membership separately.
func (e *Entry) Cancel() {
	if e.queue == nil {
		return
	}
	q := e.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(e)
}

func (q *Queue) removeLocked(e *Entry) {
	if e.queue != q {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		q.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.next, e.prev, e.queue = nil, nil, nil
}

// Head returns the smallest-deadline Entry, or nil if the queue is
// empty. Used by Testable Properties in §8: "Timer queue head always
// has the smallest deadline of all entries."
func (q *Queue) Head() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head
}

// Process pops and invokes every entry whose deadline is <= now,
// releasing the queue lock across each callback invocation so callbacks
// may themselves Schedule/Cancel timers (spec §4.5: "The queue lock is
// released across callback invocation").
func (q *Queue) Process(now arch.Instant) {
	for {
		q.mu.Lock()
		e := q.head
		if e == nil || now.Before(e.Deadline) {
			q.mu.Unlock()
			return
		}
		q.removeLocked(e)
		q.mu.Unlock()

		if newDeadline, rearm := e.Callback(now, e); rearm {
			e.Deadline = newDeadline
			q.Schedule(e)
		}
	}
}
