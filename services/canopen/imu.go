package canopen

import (
	"math"
	"time"

	"imunode-go/drivers/bno055"
	"imunode-go/types"
	"imunode-go/x/mathx"
)

// DefaultNodeID is the node address the IMU board ships with.
const DefaultNodeID = 0x17

// Object indices.
const (
	IndexSyncCOBID     = 0x1005
	IndexHeartbeatTime = 0x1017
	IndexIdentity      = 0x1018
	IndexSDOServer     = 0x1200
	IndexTPDOComm      = 0x1800
	IndexTPDOMap       = 0x1A00
	IndexVectorX       = 0x2100
	IndexVectorY       = 0x2101
	IndexVectorZ       = 0x2102
)

// COB-ID bases (node id is added).
const (
	COBSync      = 0x80
	COBTPDO1     = 0x180
	COBSDOTx     = 0x580
	COBSDORx     = 0x600
	COBHeartbeat = 0x700
)

// TransmissionEvent is the TPDO transmission type for event-timer driven PDOs.
const TransmissionEvent = 0xFE

// DefaultEventTimer is the TPDO period.
const DefaultEventTimer = 2 * time.Second

// VectorKinds fixes the sub-index of each kind under 0x2100..0x2102.
var VectorKinds = [4]bno055.Kind{
	bno055.KindEuler,
	bno055.KindGyroscope,
	bno055.KindLinearAccel,
	bno055.KindAccelerometer,
}

// Identity is object 0x1018.
type Identity struct {
	VendorID, ProductCode, Revision, Serial uint32
}

// DefaultIdentity matches the values the board reports.
var DefaultIdentity = Identity{VendorID: 0x10, ProductCode: 0x11, Revision: 0x12, Serial: 0x13}

// Slots holds the last vector per mapped kind, one slot per axis, and the
// timers configuration can change while the node runs.
type Slots struct {
	X, Y, Z [len(VectorKinds)]Slot

	HeartbeatMS  Var    // 0x1017
	EventTimerMS [3]Var // sub 5 of 0x1800..0x1802
}

// Update stores v if kind is mapped.
func (s *Slots) Update(kind bno055.Kind, v types.VectorValue) bool {
	for i, k := range VectorKinds {
		if k == kind {
			s.X[i].Set(v.X)
			s.Y[i].Set(v.Y)
			s.Z[i].Set(v.Z)
			return true
		}
	}
	return false
}

// Layout parameterises the IMU dictionary.
type Layout struct {
	NodeID      uint8
	EventTimer  time.Duration
	HeartbeatMS uint16
	Identity    Identity
}

// u16ms clamps a millisecond count to an UNSIGNED16 timer object.
func u16ms(ms int64) uint32 { return uint32(mathx.Clamp(ms, 0, math.MaxUint16)) }

func link(index uint16, sub uint8, bits uint8) uint32 {
	return uint32(index)<<16 | uint32(sub)<<8 | uint32(bits)
}

// NewIMUDictionary lays out the node's objects over slots. TPDO n carries
// axis n (X, Y, Z) of every mapped kind.
func NewIMUDictionary(l Layout, slots *Slots) (*Dictionary, error) {
	if l.NodeID == 0 {
		l.NodeID = DefaultNodeID
	}
	if l.EventTimer <= 0 {
		l.EventTimer = DefaultEventTimer
	}
	if l.Identity == (Identity{}) {
		l.Identity = DefaultIdentity
	}
	node := uint32(l.NodeID)
	slots.HeartbeatMS.Set(uint32(l.HeartbeatMS))

	b := NewODBuilder().
		Const(IndexSyncCOBID, 0, Unsigned32, COBSync).
		Var(IndexHeartbeatTime, 0, Unsigned16, &slots.HeartbeatMS).
		Const(IndexIdentity, 0, Unsigned8, 4).
		Const(IndexIdentity, 1, Unsigned32, l.Identity.VendorID).
		Const(IndexIdentity, 2, Unsigned32, l.Identity.ProductCode).
		Const(IndexIdentity, 3, Unsigned32, l.Identity.Revision).
		Const(IndexIdentity, 4, Unsigned32, l.Identity.Serial).
		Const(IndexSDOServer, 1, Unsigned32, COBSDORx+node).
		Const(IndexSDOServer, 2, Unsigned32, COBSDOTx+node)

	axes := [3]struct {
		index uint16
		slots *[len(VectorKinds)]Slot
	}{
		{IndexVectorX, &slots.X},
		{IndexVectorY, &slots.Y},
		{IndexVectorZ, &slots.Z},
	}
	for n, ax := range axes {
		comm := uint16(IndexTPDOComm + n)
		slots.EventTimerMS[n].Set(u16ms(l.EventTimer.Milliseconds()))
		b.Const(comm, 0, Unsigned8, 5).
			Const(comm, 1, Unsigned32, COBTPDO1+uint32(n)*0x100+node).
			Const(comm, 2, Unsigned8, TransmissionEvent).
			Const(comm, 3, Unsigned16, 0).
			Var(comm, 5, Unsigned16, &slots.EventTimerMS[n])

		mapping := uint16(IndexTPDOMap + n)
		b.Const(mapping, 0, Unsigned8, uint32(len(VectorKinds)))
		for i := range VectorKinds {
			b.Const(mapping, uint8(i+1), Unsigned32, link(ax.index, uint8(i), 16))
			b.Int16(ax.index, uint8(i), &ax.slots[i])
		}
	}
	return b.Build()
}
