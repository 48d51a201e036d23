// Package memregion implements the architecture-neutral memory-region
// model of spec §3/§4.4: an ordered list of {kind, start, end} windows
// used both to program hardware MPU/PMP entries on context switch into a
// non-privileged thread, and to validate user-supplied syscall buffers.
package memregion

import "fmt"

// Kind encodes the R/W/X/device bits of a region.
type Kind uint8

const (
	ROData Kind = 1 << iota
	RWData
	ROExec
	RWExec
	Device
)

// Access is the kind of access a caller is requesting against a region,
// used by RangeHasAccess/HasAccess.
type Access uint8

const (
	Read Access = 1 << iota
	Write
	Execute
)

// authorizes reports whether a region Kind permits the requested Access.
func (k Kind) authorizes(a Access) bool {
	switch k {
	case ROData:
		return a == Read
	case RWData:
		return a == Read || a == Write
	case ROExec:
		return a == Read || a == Execute
	case RWExec:
		return a == Read || a == Write || a == Execute
	case Device:
		return a == Read || a == Write
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case ROData:
		return "RO-data"
	case RWData:
		return "RW-data"
	case ROExec:
		return "RO-exec"
	case RWExec:
		return "RW-exec"
	case Device:
		return "Device"
	default:
		return "invalid"
	}
}

// Region is a single {kind, start, end} window. start is inclusive, end
// is exclusive.
type Region struct {
	Kind  Kind
	Start uintptr
	End   uintptr
}

// Len returns the region size in bytes.
func (r Region) Len() uintptr { return r.End - r.Start }

// Valid reports the §3 invariant start < end.
func (r Region) Valid() bool { return r.Start < r.End }

// contains reports whether [start, end) is fully inside r.
func (r Region) contains(start, end uintptr) bool {
	return start >= r.Start && end <= r.End && start <= end
}

// Config is the ordered list of Regions that make up one Process's
// MemoryConfig.
type Config struct {
	Regions []Region
}

// New validates and constructs a Config. It rejects regions that fail
// the start<end invariant, matching spec §3: "construction fails" for
// malformed const configs.
func New(regions ...Region) (Config, error) {
	for _, r := range regions {
		if !r.Valid() {
			return Config{}, fmt.Errorf("memregion: invalid region [%#x, %#x)", r.Start, r.End)
		}
	}
	cfg := Config{Regions: append([]Region(nil), regions...)}
	return cfg, nil
}

// RangeHasAccess reports whether some region in the config fully
// contains [start, end) and that region's Kind authorizes the requested
// Access (spec §4.4).
func (c Config) RangeHasAccess(access Access, start, end uintptr) bool {
	for _, r := range c.Regions {
		if r.contains(start, end) && r.Kind.authorizes(access) {
			return true
		}
	}
	return false
}

// HasAccess is the sized variant of RangeHasAccess for a single object of
// size n at ptr.
func (c Config) HasAccess(access Access, ptr uintptr, n uintptr) bool {
	return c.RangeHasAccess(access, ptr, ptr+n)
}

// MPUEntryBudget is the maximum number of regions a Config may hold when
// it is programmed into the MPU/PMP. ProgramMemoryConfig in arch/sim,
// arch/armcm and arch/riscv all use this one value and return an error
// for a longer Config; New and kernel.NewProcess do not check it.
const MPUEntryBudget = 8
