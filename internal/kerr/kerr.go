// Package kerr implements the kernel's status-kind error taxonomy.
//
// The kind set matches the Pigweed status enumeration named in the
// specification (§7): a fixed, small set of kinds that every kernel
// subsystem maps its failures onto before they cross a system call
// boundary. Grounded on eventloop/errors.go's cause-chain error types
// (TypeError, RangeError, TimeoutError, WrapError) — Status plays the
// same "typed error with an Unwrap-able cause" role that those types
// play for ES2022 errors.
package kerr

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed kernel status kinds.
type Kind int

const (
	OK Kind = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

var kindNames = [...]string{
	"OK", "Cancelled", "Unknown", "InvalidArgument", "DeadlineExceeded",
	"NotFound", "AlreadyExists", "PermissionDenied", "ResourceExhausted",
	"FailedPrecondition", "Aborted", "OutOfRange", "Unimplemented",
	"Internal", "Unavailable", "DataLoss", "Unauthenticated",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Status is an error carrying one Kind plus an optional human message and
// cause chain. Errors of any other type (for example from memregion.New
// or an arch ProgramMemoryConfig) map to Unknown under Of.
type Status struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs a Status with no cause.
func New(kind Kind, message string) *Status {
	return &Status{Kind: kind, Message: message}
}

// Wrap constructs a Status with an underlying cause, analogous to
// eventloop's WrapError but producing a typed, kind-bearing error.
func Wrap(kind Kind, message string, cause error) *Status {
	return &Status{Kind: kind, Message: message, Cause: cause}
}

func (s *Status) Error() string {
	if s == nil {
		return "<nil>"
	}
	if s.Message == "" {
		return s.Kind.String()
	}
	if s.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", s.Kind, s.Message, s.Cause)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Unwrap exposes the cause chain to errors.Is/errors.As.
func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.Cause
}

// Is reports whether target is a *Status with the same Kind, allowing
// errors.Is(err, kerr.New(kerr.NotFound, "")) style matching against a
// sentinel built purely for its Kind.
func (s *Status) Is(target error) bool {
	var other *Status
	if errors.As(target, &other) {
		return other.Kind == s.Kind
	}
	return false
}

// Of reports the Kind of err if it is (or wraps) a *Status, or Unknown
// otherwise.
func Of(err error) Kind {
	if err == nil {
		return OK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.Kind
	}
	return Unknown
}

// ABICode returns the negative ABI encoding used by kcall.Dispatch: OK is
// not a valid error kind for this function and is never passed.
func ABICode(kind Kind) int64 {
	return -int64(kind)
}
