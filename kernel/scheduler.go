package kernel

import (
	"sync/atomic"

	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/internal/klog"
	"github.com/joeycumines/go-microkernel/ktimer"
	"github.com/joeycumines/go-microkernel/spinlock"
)

// Scheduler is the single run-queue scheduler of spec §4.2: one global
// spinlock guards the ready queue, every wait queue, and the
// current-thread pointer. There is exactly one Scheduler per
// simulated hart, matching the "single hart" assumption of spec §1.
type Scheduler struct {
	cap arch.Capability
	cfg kconfig.Config

	lock   spinlock.Bare
	timers ktimer.Queue

	current              *Thread
	readyHead, readyTail *Thread
	idle                 *Thread

	preemptRequested atomic.Bool
}

// NewScheduler constructs a Scheduler bound to a single architecture
// capability. cfg should come from kconfig.Resolve.
func NewScheduler(cap arch.Capability, cfg kconfig.Config) *Scheduler {
	return &Scheduler{cap: cap, cfg: cfg}
}

// Capability exposes the architecture capability this scheduler drives,
// for callers (kcall, kobject) that need Clock/KernelContext access.
func (s *Scheduler) Capability() arch.Capability { return s.cap }

// Config returns the resolved boot configuration.
func (s *Scheduler) Config() kconfig.Config { return s.cfg }

// Timers exposes the scheduler's timer queue to kernel objects (e.g.
// kobject.Ticker) that need to schedule their own periodic deadlines
// independent of Sleep/WaitLock.
func (s *Scheduler) Timers() *ktimer.Queue { return &s.timers }

// NewThread registers a new Thread under proc, wrapping entry so that
// returning from it exits the thread cleanly (spec §3 "Thread" /
// §4.2's Created->Ready->...->Exited state machine). The thread starts
// in the Created state; call Start to make it Ready.
func (s *Scheduler) NewThread(name string, proc *Process, entry func()) *Thread {
	t := &Thread{
		ID:      nextThreadID.Add(1),
		Name:    name,
		Process: proc,
		sched:   s,
		state:   stateCreated,
	}
	t.archState = s.cap.NewThreadState(func() {
		entry()
		s.exitCurrent()
	}, s.cfg.KernelStackSize)
	proc.addThread(t)
	return t
}

// newIdleThread installs the always-runnable idle thread. It never
// blocks: its body yields immediately, so it only ever consumes a
// quantum when no other thread is Ready (spec §4.2: "An always-Ready
// idle thread guarantees Ready is never empty").
func (s *Scheduler) newIdleThread(proc *Process) *Thread {
	t := &Thread{ID: nextThreadID.Add(1), Name: "idle", Process: proc, sched: s, state: stateCreated}
	t.archState = s.cap.NewThreadState(func() {
		for {
			s.Yield()
		}
	}, s.cfg.KernelStackSize)
	proc.addThread(t)
	return t
}

// Start transitions a Created thread to Ready and enqueues it.
func (t *Thread) Start() {
	s := t.sched
	guard := s.lock.Lock()
	t.state = Ready
	s.enqueueReadyLocked(t)
	guard.Unlock()
}

// Boot starts scheduling: it installs the idle thread on proc and makes
// the calling goroutine the bootstrap half of the first context switch
// into the first Ready thread (a user thread started before Boot, or
// else idle). The bootstrap half-switch does not park the caller, so
// Boot returns once that switch has been handed off; the calling
// goroutine is not a kernel thread afterwards. Mirrors spec §4.2's "system starts with a one-time
// bootstrap context switch out of the bootstrap stack".
func (s *Scheduler) Boot(idleProc *Process) {
	s.idle = s.newIdleThread(idleProc)
	s.idle.state = Ready
	s.enqueueReadyLocked(s.idle) // no contention yet; pre-lock setup

	bootstrap := s.cap.NewBootstrapThreadState()

	guard := s.lock.Lock()
	next := s.pickNextLocked()
	next.state = Running
	next.ticksRemaining = s.cfg.TimesliceTicks
	s.current = next
	cfg := next.Process.MemConfig
	priv := next.Process.Privileged
	guard.Unlock()

	s.cap.ContextSwitch(bootstrap, next.archState, cfg, priv)
}

// Current returns the thread currently selected to run, or nil before
// Boot.
func (s *Scheduler) Current() *Thread {
	guard := s.lock.Lock()
	defer guard.Unlock()
	return s.current
}

func (s *Scheduler) enqueueReadyLocked(t *Thread) {
	t.readyNext, t.readyPrev = nil, nil
	if s.readyTail == nil {
		s.readyHead, s.readyTail = t, t
		return
	}
	t.readyPrev = s.readyTail
	s.readyTail.readyNext = t
	s.readyTail = t
}

func (s *Scheduler) dequeueReadyLocked() *Thread {
	t := s.readyHead
	if t == nil {
		return nil
	}
	s.readyHead = t.readyNext
	if s.readyHead != nil {
		s.readyHead.readyPrev = nil
	} else {
		s.readyTail = nil
	}
	t.readyNext, t.readyPrev = nil, nil
	return t
}

// pickNextLocked pops the next Ready thread, falling back to idle if
// the ready queue is (momentarily) empty, e.g. while idle itself is
// being re-enqueued.
func (s *Scheduler) pickNextLocked() *Thread {
	if t := s.dequeueReadyLocked(); t != nil {
		return t
	}
	return s.idle
}

// switchLocked must be called with guard held for s.lock; it unlocks
// guard, performs the architecture context switch into next, and
// returns once this goroutine (the old thread) is rescheduled — unless
// exiting is true, in which case old is reported as nil and this call
// never blocks (the caller's goroutine is about to terminate).
func (s *Scheduler) switchLocked(guard *spinlock.Guard, next *Thread, exiting bool) {
	old := s.current
	next.state = Running
	next.ticksRemaining = s.cfg.TimesliceTicks
	s.current = next

	var oldArch arch.ThreadState
	if !exiting && old != nil {
		oldArch = old.archState
	}
	nextArch := next.archState
	cfg := next.Process.MemConfig
	priv := next.Process.Privileged
	guard.Unlock()

	s.cap.ContextSwitch(oldArch, nextArch, cfg, priv)
}

// Yield moves the Running thread to the ready tail and reschedules
// (spec §4.2 "yield unconditionally moves Running to the ready tail").
func (s *Scheduler) Yield() {
	guard := s.lock.Lock()
	cur := s.current
	cur.state = Ready
	s.enqueueReadyLocked(cur)
	next := s.pickNextLocked()
	s.switchLocked(guard, next, false)
}

// CheckPoint honors a pending timeslice-expiry preemption request, see
// Thread.CheckPoint. The request stays pending while a spinlock.Typed
// guard is held (spinlock.CanPreempt reports false).
func (s *Scheduler) CheckPoint() {
	if spinlock.CanPreempt() && s.preemptRequested.CompareAndSwap(true, false) {
		s.Yield()
	}
}

// exitCurrent transitions the Running thread to Exited and reschedules;
// the calling goroutine returns from this call only long enough to
// unwind the entry-function wrapper, never to run kernel code again.
func (s *Scheduler) exitCurrent() {
	guard := s.lock.Lock()
	cur := s.current
	cur.state = Exited
	if cur.timer != nil {
		cur.timer.Cancel()
		cur.timer = nil
	}
	next := s.pickNextLocked()
	s.switchLocked(guard, next, true)
}

// Tick is invoked once per simulated tick (normally by an arch/sim.Ticker
// the caller starts with sim.NewTicker(sched.Tick); Boot starts no tick
// source). It drains the timer queue and,
// if the Running thread's quantum has expired, requests a cooperative
// preemption honored at the next CheckPoint/suspension point.
func (s *Scheduler) Tick() {
	now := s.cap.Now()
	s.timers.Process(now)

	guard := s.lock.Lock()
	cur := s.current
	if cur == nil {
		guard.Unlock()
		return
	}
	cur.ticksRemaining--
	expired := cur.ticksRemaining <= 0
	guard.Unlock()

	if expired {
		s.preemptRequested.Store(true)
	}
}

// Sleep parks the calling thread until now+d has elapsed, the simplest
// consumer of the timer queue (spec §4.5, §5 "sleep_until").
func (s *Scheduler) Sleep(d arch.Duration) {
	deadline, ok := s.cap.Now().Add(d)
	if !ok {
		klog.PanicErr("kernel: sleep duration overflows Instant", kerr.New(kerr.OutOfRange, "sleep deadline overflow"))
	}
	s.SleepUntil(deadline)
}

// SleepUntil parks the calling thread until the given deadline using
// only a timer-queue entry, on no wait queue — sleeping threads never
// contend with any WaitLock's waiters.
func (s *Scheduler) SleepUntil(deadline arch.Instant) {
	guard := s.lock.Lock()
	cur := s.current
	cur.state = Waiting
	timer := &ktimer.Entry{Deadline: deadline, Callback: func(now arch.Instant, e *ktimer.Entry) (arch.Instant, bool) {
		sg := s.lock.Lock()
		if cur.state == Waiting && cur.timer == e {
			cur.timer = nil
			cur.state = Ready
			s.enqueueReadyLocked(cur)
		}
		sg.Unlock()
		return 0, false
	}}
	cur.timer = timer
	s.timers.Schedule(timer)
	next := s.pickNextLocked()
	s.switchLocked(guard, next, false)
}
