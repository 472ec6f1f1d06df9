package accessor

import "strings"

// Capability is the bitset of operations a backend natively supports. It is
// fixed when the backend is constructed and never mutated afterwards; layers
// query it to decide between emulating an operation and failing Unsupported.
type Capability uint32

const (
	CapCreate Capability = 1 << iota
	CapRead
	CapWrite
	CapStat
	CapDelete
	CapList
	CapCopy
	CapRename
	CapPresign
)

// CapAll is the full capability set.
const CapAll = CapCreate | CapRead | CapWrite | CapStat | CapDelete |
	CapList | CapCopy | CapRename | CapPresign

// Has reports whether every bit in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// String lists the enabled capabilities, for logs and error context.
func (c Capability) String() string {
	names := []struct {
		bit  Capability
		name string
	}{
		{CapCreate, "create"},
		{CapRead, "read"},
		{CapWrite, "write"},
		{CapStat, "stat"},
		{CapDelete, "delete"},
		{CapList, "list"},
		{CapCopy, "copy"},
		{CapRename, "rename"},
		{CapPresign, "presign"},
	}
	var enabled []string
	for _, n := range names {
		if c.Has(n.bit) {
			enabled = append(enabled, n.name)
		}
	}
	return strings.Join(enabled, "|")
}

// capabilityFor maps an operation to the capability bit guarding it.
func capabilityFor(op Operation) Capability {
	switch op {
	case OperationCreate:
		return CapCreate
	case OperationRead:
		return CapRead
	case OperationWrite:
		return CapWrite
	case OperationStat:
		return CapStat
	case OperationDelete:
		return CapDelete
	case OperationList:
		return CapList
	case OperationCopy:
		return CapCopy
	case OperationRename:
		return CapRename
	case OperationPresign:
		return CapPresign
	default:
		return 0
	}
}

// CapabilityFor returns the capability bit guarding op.
func CapabilityFor(op Operation) Capability { return capabilityFor(op) }
