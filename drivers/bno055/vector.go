package bno055

// VectorLen is the wire size of one X/Y/Z block.
const VectorLen = 6

// Vector is one raw X/Y/Z sample. Units depend on the Kind it was read for.
type Vector struct {
	X, Y, Z int16
}

// Decode unpacks a 6-byte block: three little-endian 16-bit values,
// reinterpreted as signed.
func Decode(b [VectorLen]byte) Vector {
	return Vector{
		X: int16(uint16(b[0]) | uint16(b[1])<<8),
		Y: int16(uint16(b[2]) | uint16(b[3])<<8),
		Z: int16(uint16(b[4]) | uint16(b[5])<<8),
	}
}

// Encode is the inverse of Decode.
func Encode(v Vector) [VectorLen]byte {
	return [VectorLen]byte{
		byte(v.X), byte(uint16(v.X) >> 8),
		byte(v.Y), byte(uint16(v.Y) >> 8),
		byte(v.Z), byte(uint16(v.Z) >> 8),
	}
}

// Kind names one of the vector blocks the device exposes.
type Kind uint8

const (
	KindEuler Kind = iota
	KindGyroscope
	KindLinearAccel
	KindAccelerometer
	KindGravity
	KindMagnetometer
)

// Kinds lists every vector kind in publication order.
var Kinds = [...]Kind{KindEuler, KindGyroscope, KindLinearAccel, KindAccelerometer, KindGravity, KindMagnetometer}

// Fused reports whether the kind is produced by the fusion engine and so only
// valid in a fusion OPR_MODE.
func (k Kind) Fused() bool {
	return k == KindEuler || k == KindLinearAccel || k == KindGravity
}

// Base returns the first register of the kind's 6-byte block.
func (k Kind) Base() Register {
	switch k {
	case KindEuler:
		return RegEulerData
	case KindGyroscope:
		return RegGyroData
	case KindLinearAccel:
		return RegLinearAccelData
	case KindAccelerometer:
		return RegAccelData
	case KindGravity:
		return RegGravityData
	case KindMagnetometer:
		return RegMagData
	default:
		return RegEulerData
	}
}

// LSB is the number of raw counts per physical unit with the power-on unit
// selection (degrees, dps, m/s², µT).
func (k Kind) LSB() int16 {
	switch k {
	case KindLinearAccel, KindAccelerometer, KindGravity:
		return 100
	default:
		return 16
	}
}

// Unit is the physical unit matching LSB.
func (k Kind) Unit() string {
	switch k {
	case KindEuler:
		return "deg"
	case KindGyroscope:
		return "dps"
	case KindMagnetometer:
		return "uT"
	default:
		return "m/s2"
	}
}

func (k Kind) String() string {
	switch k {
	case KindEuler:
		return "euler"
	case KindGyroscope:
		return "gyroscope"
	case KindLinearAccel:
		return "linear_accel"
	case KindAccelerometer:
		return "accelerometer"
	case KindGravity:
		return "gravity"
	case KindMagnetometer:
		return "magnetometer"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
