package can

import "fmt"

// NodeID is a node address in the ISO-TP-like scheme.
type NodeID uint8

// Identifier is a CAN identifier.
type Identifier uint32

// Address bits.
const (
	NodeIDBits = 4
	MaxNodeID  = NodeID(1<<NodeIDBits - 1)

	AddrIsISOTP     Identifier = 1 << 8
	AddrIsDest      Identifier = 1 << 9
	AddrReserved    Identifier = 1 << 10
	AddrSourceIDPos            = 4

	addrNodeMask = Identifier(MaxNodeID)
)

func mustNodeID(n NodeID) Identifier {
	if n > MaxNodeID {
		panic(fmt.Sprintf("can: node id %d exceeds %d bits", n, NodeIDBits))
	}
	return Identifier(n)
}

// MakeDestinationID returns the identifier of frames sent by src to dest.
// It panics if an id exceeds the allotted bits: addresses are configuration
// constants.
func MakeDestinationID(src, dest NodeID) Identifier {
	return AddrIsISOTP | AddrIsDest | mustNodeID(src)<<AddrSourceIDPos | mustNodeID(dest)
}

// MakeSourceID returns the identifier used on the sender side of the
// src/dest pair, e.g. for flow control going back to src.
func MakeSourceID(src, dest NodeID) Identifier {
	return AddrIsISOTP | mustNodeID(src)<<AddrSourceIDPos | mustNodeID(dest)
}

// IsISOTP tells if the transport-kind bit is set.
func (id Identifier) IsISOTP() bool {
	return id&AddrIsISOTP != 0
}

// IsDestination tells if the direction bit is set.
func (id Identifier) IsDestination() bool {
	return id&AddrIsDest != 0
}

// Source extracts the source node.
func (id Identifier) Source() NodeID {
	return NodeID((id >> AddrSourceIDPos) & addrNodeMask)
}

// Destination extracts the destination node.
func (id Identifier) Destination() NodeID {
	return NodeID(id & addrNodeMask)
}

// Filter selects frames by identifier: a frame matches when
// id&Mask == ID&Mask and the identifier format agrees.
type Filter struct {
	ID       Identifier
	Mask     uint32
	Extended bool
}

// MatchesFilter applies the mask comparison of the receive filter.
func MatchesFilter(id Identifier, filter Filter) bool {
	return uint32(id)&filter.Mask == uint32(filter.ID)&filter.Mask
}

// Matches tells if frame passes the filter. Drivers use it for software
// filtering so hardware and software agree bit for bit.
func (f Filter) Matches(frame *Frame) bool {
	return frame.Extended == f.Extended && MatchesFilter(Identifier(frame.ID), f)
}

// String implements fmt.Stringer.
func (f Filter) String() string {
	if f.Extended {
		return fmt.Sprintf("%08X/%08X", uint32(f.ID), f.Mask)
	}
	return fmt.Sprintf("%03X/%03X", uint32(f.ID), f.Mask)
}

// FilterFor accepts ISO-TP frames sent to dest from any source.
func FilterFor(dest NodeID) Filter {
	return Filter{
		ID:   AddrIsISOTP | AddrIsDest | mustNodeID(dest),
		Mask: uint32(AddrReserved | AddrIsDest | AddrIsISOTP | addrNodeMask),
	}
}

// FlowControlFilterFor accepts ISO-TP frames going back to src, the
// sender of a segmented transfer: flow control uses the source identifier
// of the pair.
func FlowControlFilterFor(src NodeID) Filter {
	return Filter{
		ID:   AddrIsISOTP | mustNodeID(src)<<AddrSourceIDPos,
		Mask: uint32(AddrReserved | AddrIsDest | AddrIsISOTP | addrNodeMask<<AddrSourceIDPos),
	}
}

// PairFilter accepts only ISO-TP frames sent by src to dest.
func PairFilter(src, dest NodeID) Filter {
	return Filter{ID: MakeDestinationID(src, dest), Mask: MaxStdID}
}

// PlainFilter accepts plain frames sent to a raw extended address.
func PlainFilter(addr uint32) Filter {
	return Filter{ID: Identifier(addr), Mask: MaxExtID, Extended: true}
}
