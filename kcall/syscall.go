// Package kcall implements the syscall ABI of spec §6: a numbered
// SysCallId space, four 64-bit word arguments, a 64-bit signed return
// where a negative value is -Kind (spec §7's status encoding), and a
// debug/testing range starting at 0xF000.
package kcall

import (
	"encoding/binary"
	"unsafe"

	"github.com/joeycumines/go-microkernel/internal/kerr"
	"github.com/joeycumines/go-microkernel/memregion"
)

// SysCallId numbers one syscall entry point.
type SysCallId uint32

const (
	// SysObjectWait waits on a kernel object's signal set.
	SysObjectWait SysCallId = iota + 1
	// SysChannelTransact performs a full request/response round trip.
	SysChannelTransact
	// SysChannelRead reads the next pending request on a channel.
	SysChannelRead
	// SysChannelRespond answers the in-flight request on a channel.
	SysChannelRespond
)

// Debug/testing syscall range, spec §6: "0xF000 and above are reserved
// for debug and test builds, never present in a production ABI."
const (
	DebugNoOp SysCallId = 0xF000 + iota
	DebugAdd
	DebugPutc
	DebugShutdown
	DebugLog
)

// Args is the fixed four-word argument vector every syscall receives.
type Args [4]int64

// Buffer is a syscall argument describing a range of the caller's
// address space, validated against the caller's memregion.Config
// before a handler may read it (spec §4.4: "every syscall buffer is
// checked against the caller's current MPU/PMP configuration before
// being dereferenced").
type Buffer struct {
	Ptr uintptr
	Len uintptr
}

// NewBuffer wraps a Go byte slice as a Buffer, deriving Ptr/Len from
// its backing array so Validate exercises the same address-range check
// a real pointer+length ABI argument would. This is the one place the
// kernel reaches for unsafe.Pointer: memregion's Region bounds are
// genuinely uintptr address ranges (mirroring real MPU/PMP registers),
// and there is no third-party library that bridges a []byte to that
// representation — it is a raw-memory primitive, not a missed
// ecosystem concern.
func NewBuffer(data []byte) Buffer {
	if len(data) == 0 {
		return Buffer{}
	}
	return Buffer{Ptr: uintptr(unsafe.Pointer(&data[0])), Len: uintptr(len(data))}
}

// BufferFromArgs reconstructs a Buffer from a raw {ptr, len} word pair,
// as a dispatcher decodes it from an Args vector.
func BufferFromArgs(ptr, length int64) Buffer {
	return Buffer{Ptr: uintptr(ptr), Len: uintptr(length)}
}

// Bytes reconstructs the []byte a Ptr/Len pair describes. On real
// hardware this is where an architecture backend would map the
// caller's pages; the hosted simulation has only one address space, so
// the caller's Ptr is already a dereferenceable host pointer and
// reconstructing a slice view over it with unsafe.Slice is sufficient
// — the same raw-memory primitive NewBuffer documents, used in
// reverse.
func (b Buffer) Bytes() []byte {
	if b.Len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(b.Ptr)), int(b.Len))
}

// ChannelTransactArgs is the logical parameter block spec §6 names for
// SysChannelTransact: "ChannelTransact(handle, send_ptr, send_len,
// recv_ptr, recv_len, deadline)". That is five words plus the handle,
// two more than Args' four word-sized slots hold (spec §6: "up to 4
// word-sized arguments"), so it travels packed behind a single
// validated Buffer instead — the same fallback a real four-register
// calling convention takes once it runs out of registers: spill the
// remaining arguments to memory and pass a pointer to them.
type ChannelTransactArgs struct {
	SendPtr, SendLen uintptr
	RecvPtr, RecvLen uintptr
	Deadline         int64
}

// channelTransactArgsSize is the packed wire size of ChannelTransactArgs:
// five 8-byte little-endian words.
const channelTransactArgsSize = 5 * 8

// EncodeChannelTransactArgs packs a into the little-endian wire layout
// DecodeChannelTransactArgs reads back: {send_ptr, send_len, recv_ptr,
// recv_len, deadline}, in that order.
func EncodeChannelTransactArgs(a ChannelTransactArgs) []byte {
	buf := make([]byte, channelTransactArgsSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.SendPtr))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.SendLen))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(a.RecvPtr))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(a.RecvLen))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(a.Deadline))
	return buf
}

// DecodeChannelTransactArgs reads a ChannelTransactArgs back out of its
// packed wire layout, failing if b is too short.
func DecodeChannelTransactArgs(b []byte) (ChannelTransactArgs, bool) {
	if len(b) < channelTransactArgsSize {
		return ChannelTransactArgs{}, false
	}
	return ChannelTransactArgs{
		SendPtr:  uintptr(binary.LittleEndian.Uint64(b[0:8])),
		SendLen:  uintptr(binary.LittleEndian.Uint64(b[8:16])),
		RecvPtr:  uintptr(binary.LittleEndian.Uint64(b[16:24])),
		RecvLen:  uintptr(binary.LittleEndian.Uint64(b[24:32])),
		Deadline: int64(binary.LittleEndian.Uint64(b[32:40])),
	}, true
}

// Validate checks the buffer's address range against cfg, failing
// closed (PermissionDenied) for an empty-region config, exactly the
// posture a syscall boundary needs.
func (b Buffer) Validate(cfg memregion.Config, access memregion.Access) error {
	if b.Len == 0 {
		return nil
	}
	if !cfg.RangeHasAccess(access, b.Ptr, b.Ptr+b.Len) {
		return kerr.New(kerr.PermissionDenied, "syscall buffer outside granted memory regions")
	}
	return nil
}
