package kcall

import (
	"github.com/joeycumines/go-microkernel/arch"
	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/kobject"
	"github.com/joeycumines/go-microkernel/memregion"
)

// waitable is implemented by every kernel object kobject exposes that
// can be the target of SysObjectWait.
type waitable interface {
	SignalWait(interest kobject.Signals) kobject.Signals
}

func handleTableOf(proc *kernel.Process) (*kobject.HandleTable, error) {
	ht, ok := proc.Handles.(*kobject.HandleTable)
	if !ok || ht == nil {
		return nil, kerr.New(kerr.FailedPrecondition, "process has no handle table")
	}
	return ht, nil
}

// registerObjectCalls installs the handle-table-mediated calls every
// non-debug syscall in spec §6 is built from: wait on a signal set,
// and the three-call channel transaction protocol.
func (d *Dispatcher) registerObjectCalls() {
	d.Register(SysObjectWait, func(proc *kernel.Process, args Args) int64 {
		ht, err := handleTableOf(proc)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		h := kobject.Handle(uint64(args[0]))
		obj, err := ht.Get(h)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		defer ht.Put(h)
		w, ok := obj.(waitable)
		if !ok {
			return kerr.ABICode(kerr.InvalidArgument)
		}
		active := w.SignalWait(kobject.Signals(uint32(args[1])))
		return statusOK(int64(active))
	})

	// SysChannelTransact(handle, params_ptr, params_len, _): params is a
	// ChannelTransactArgs-shaped buffer carrying {send_ptr, send_len,
	// recv_ptr, recv_len, deadline} (spec §6's
	// "ChannelTransact(handle, send_ptr, send_len, recv_ptr, recv_len,
	// deadline)" packed behind one pointer, see ChannelTransactArgs).
	d.Register(SysChannelTransact, func(proc *kernel.Process, args Args) int64 {
		ht, err := handleTableOf(proc)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		params := BufferFromArgs(args[1], args[2])
		if err := params.Validate(proc.MemConfig, memregion.Read); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		txArgs, ok := DecodeChannelTransactArgs(params.Bytes())
		if !ok {
			return kerr.ABICode(kerr.InvalidArgument)
		}
		sendBuf := Buffer{Ptr: txArgs.SendPtr, Len: txArgs.SendLen}
		if err := sendBuf.Validate(proc.MemConfig, memregion.Read); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		recvBuf := Buffer{Ptr: txArgs.RecvPtr, Len: txArgs.RecvLen}
		if err := recvBuf.Validate(proc.MemConfig, memregion.Write); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		h := kobject.Handle(uint64(args[0]))
		obj, err := ht.Get(h)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		defer ht.Put(h)
		initiator, ok := obj.(*kobject.ChannelInitiator)
		if !ok {
			return kerr.ABICode(kerr.InvalidArgument)
		}
		n, err := initiator.Transact(sendBuf.Bytes(), recvBuf.Bytes(), arch.Instant(txArgs.Deadline))
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		return statusOK(int64(n))
	})

	// SysChannelRead(handle, offset, buf_ptr, buf_len).
	d.Register(SysChannelRead, func(proc *kernel.Process, args Args) int64 {
		ht, err := handleTableOf(proc)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		offset := args[1]
		buf := BufferFromArgs(args[2], args[3])
		if err := buf.Validate(proc.MemConfig, memregion.Write); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		h := kobject.Handle(uint64(args[0]))
		obj, err := ht.Get(h)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		defer ht.Put(h)
		handler, ok := obj.(*kobject.ChannelHandler)
		if !ok {
			return kerr.ABICode(kerr.InvalidArgument)
		}
		n, err := handler.Read(int(offset), buf.Bytes())
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		return statusOK(int64(n))
	})

	// SysChannelRespond(handle, buf_ptr, buf_len, _).
	d.Register(SysChannelRespond, func(proc *kernel.Process, args Args) int64 {
		ht, err := handleTableOf(proc)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		buf := BufferFromArgs(args[1], args[2])
		if err := buf.Validate(proc.MemConfig, memregion.Read); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		h := kobject.Handle(uint64(args[0]))
		obj, err := ht.Get(h)
		if err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		defer ht.Put(h)
		handler, ok := obj.(*kobject.ChannelHandler)
		if !ok {
			return kerr.ABICode(kerr.InvalidArgument)
		}
		if err := handler.Respond(buf.Bytes()); err != nil {
			return kerr.ABICode(kerr.Of(err))
		}
		return 0
	})
}
