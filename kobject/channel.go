package kobject

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/kernel"
)

// transaction is the {send buffer, recv buffer} pair active between a
// channel's transact start and its completion (spec §4.6, GLOSSARY
// "Transaction (channel)"), mirroring channel.rs's Transaction struct
// minus the initiator back-reference — this Channel supports exactly
// one initiator/handler pair, so there is nothing to disambiguate.
type transaction struct {
	send []byte
	recv []byte
}

// channelCore is the handler-side exclusivity state of spec §4.6: "at
// most one in-flight transaction per channel", grounded directly on
// channel.rs's `active_transaction: Mutex<K, Option<Transaction<K>>>`
// living on ChannelHandlerObject.
type channelCore struct {
	tx     *transaction
	closed bool
}

// Channel is the synchronous request/response IPC primitive of spec
// §3/§4.6 ("Channel kernel object"). Handler and Initiator each carry
// their own ObjectBase, matching channel.rs's ChannelHandlerObject and
// ChannelInitiatorObject, which each embed a separate `base:
// ObjectBase<K>` — so either role's handle can independently be the
// target of object_wait/SysObjectWait.
type Channel struct {
	handler   *ChannelHandler
	initiator *ChannelInitiator
}

// NewChannel constructs an idle Channel with one handler view and one
// initiator view sharing it (spec §3: "Channel (initiator/handler
// pair)").
func NewChannel(sched *kernel.Scheduler) *Channel {
	core := kernel.NewWaitLock[channelCore](sched, channelCore{})
	h := &ChannelHandler{core: core, base: NewObjectBase(sched, 0)}
	i := &ChannelInitiator{core: core, handler: h, base: NewObjectBase(sched, 0)}
	h.initiator = i
	return &Channel{handler: h, initiator: i}
}

// Handler returns the server-side view of the channel.
func (c *Channel) Handler() *ChannelHandler { return c.handler }

// Initiator returns the caller-side view of the channel.
func (c *Channel) Initiator() *ChannelInitiator { return c.initiator }

var (
	errTransactionInFlight = kerr.New(kerr.Unavailable, "channel transaction already in flight")
	errNoActiveTransaction = kerr.New(kerr.FailedPrecondition, "no active channel transaction")
	errResponseTooLarge    = kerr.New(kerr.OutOfRange, "channel response exceeds recv buffer")
	errClosed              = kerr.New(kerr.Cancelled, "channel closed")
)

// ChannelHandler is the server side of a Channel (spec §3/§4.6
// "ChannelHandler"), grounded on channel.rs's ChannelHandlerObject.
type ChannelHandler struct {
	core      *kernel.WaitLock[channelCore]
	base      *ObjectBase
	initiator *ChannelInitiator
}

// SignalWait satisfies kcall's waitable interface so a channel handler
// handle can be the target of SysObjectWait, mirroring
// ChannelHandlerObject::object_wait.
func (h *ChannelHandler) SignalWait(interest Signals) Signals {
	return h.base.Wait(interest)
}

// Read copies up to min(len(buf), len(send)-offset) bytes from the
// active transaction's send buffer into buf, starting at offset, and
// returns the number of bytes copied (spec §4.6 "handler.read(offset,
// buf)"). It is non-blocking: FailedPrecondition is returned
// immediately when no transaction is active, exactly as channel.rs's
// channel_read does — there is no wait inside; a handler that wants to
// block until a request arrives calls SignalWait(SignalReadable) first.
func (h *ChannelHandler) Read(offset int, buf []byte) (int, error) {
	g := h.core.Lock()
	defer g.Unlock()
	st := g.Get()
	if st.tx == nil {
		return 0, errNoActiveTransaction
	}
	send := st.tx.send
	if offset < 0 || offset > len(send) {
		offset = len(send)
	}
	return copy(buf, send[offset:]), nil
}

// Respond completes the in-flight transaction: resp is copied into the
// transaction's recv buffer, which must fit (OutOfRange otherwise,
// spec §4.6: "handler.respond(resp): copies resp into the
// transaction's recv buffer (must fit: OutOfRange otherwise)",
// matching channel.rs's size check ahead of its copy_into call), the
// recv buffer's tracked length is truncated to len(resp), handler's
// Readable|Writable are cleared, and the initiator is signalled
// Readable.
func (h *ChannelHandler) Respond(resp []byte) error {
	g := h.core.Lock()
	st := g.Get()
	tx := st.tx
	if tx == nil {
		g.Unlock()
		return errNoActiveTransaction
	}
	if len(resp) > len(tx.recv) {
		g.Unlock()
		return errResponseTooLarge
	}
	n := copy(tx.recv, resp)
	tx.recv = tx.recv[:n]
	g.Unlock()

	h.base.Signal(0, SignalReadable|SignalWritable)
	h.initiator.base.Signal(SignalReadable, 0)
	return nil
}

// Close implements Object so a ChannelHandler can live in a
// HandleTable. It tears down any in-flight transaction and signals the
// bound initiator Error so a blocked Transact does not hang forever
// once the handler side is gone.
func (h *ChannelHandler) Close() error {
	g := h.core.Lock()
	st := g.Get()
	st.closed = true
	st.tx = nil
	g.Unlock()

	h.initiator.base.Signal(SignalError, 0)
	h.base.Signal(SignalClosed, SignalReadable)
	return nil
}

// ChannelInitiator is the caller side of a Channel (spec §3/§4.6
// "ChannelInitiator"), grounded on channel.rs's ChannelInitiatorObject.
type ChannelInitiator struct {
	core    *kernel.WaitLock[channelCore]
	handler *ChannelHandler
	base    *ObjectBase
}

// SignalWait satisfies kcall's waitable interface so a channel
// initiator handle can be the target of SysObjectWait, mirroring
// ChannelInitiatorObject::object_wait.
func (i *ChannelInitiator) SignalWait(interest Signals) Signals {
	return i.base.Wait(interest)
}

// Transact installs {send, recv} as the channel's active transaction
// and blocks until the handler responds or deadline elapses, following
// channel.rs's channel_transact step by step (spec §4.6 steps 1-6):
//  1. Fail Unavailable if a transaction is already active.
//  2. Install {send, recv} as the active transaction.
//  3. Clear the initiator's Readable|Writable|Error.
//  4. Signal the handler Readable.
//  5. Wait on the initiator for Readable|Error, until deadline.
//  6. On wake, set Writable; read the response length from the
//     (truncated) recv buffer; clear the transaction; return the length.
func (i *ChannelInitiator) Transact(send, recv []byte, deadline arch.Instant) (int, error) {
	g := i.core.Lock()
	st := g.Get()
	if st.closed {
		g.Unlock()
		return 0, errClosed
	}
	if st.tx != nil {
		g.Unlock()
		return 0, errTransactionInFlight
	}
	st.tx = &transaction{send: send, recv: recv}
	g.Unlock()

	i.base.Signal(0, SignalReadable|SignalWritable|SignalError)
	i.handler.base.Signal(SignalReadable, 0)

	active, err := i.base.WaitUntil(SignalReadable|SignalError, deadline)
	if err != nil {
		g := i.core.Lock()
		g.Get().tx = nil
		g.Unlock()
		return 0, err
	}

	i.base.Signal(SignalWritable, 0)

	g = i.core.Lock()
	st = g.Get()
	tx := st.tx
	st.tx = nil
	closedNow := st.closed
	g.Unlock()

	if active&SignalError != 0 || closedNow || tx == nil {
		return 0, errClosed
	}
	return len(tx.recv), nil
}

// Close implements Object so a ChannelInitiator can live in a
// HandleTable. Closing one initiator view only releases that view; the
// handler and channel remain usable.
func (i *ChannelInitiator) Close() error {
	i.base.Signal(SignalClosed, 0)
	return nil
}
