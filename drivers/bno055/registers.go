package bno055

// I²C addresses (COM3 pin low / high).
const (
	AddressA       = 0x28
	AddressB       = 0x29
	AddressDefault = AddressA
)

// ChipID is the value of CHIP_ID on every BNO055.
const ChipID = 0xA0

// Register is an 8-bit offset into register page 0.
type Register uint8

// Page 0 registers used by the driver.
const (
	RegChipID     Register = 0x00
	RegPageID     Register = 0x07
	RegSelfTest   Register = 0x36
	RegSysStatus  Register = 0x39
	RegSysErr     Register = 0x3A
	RegOprMode    Register = 0x3D
	RegPwrMode    Register = 0x3E
	RegSysTrigger Register = 0x3F
)

// Vector data bases. Each is the X LSB of a 6-byte X/Y/Z little-endian block.
const (
	RegAccelData       Register = 0x08
	RegMagData         Register = 0x0E
	RegGyroData        Register = 0x14
	RegEulerData       Register = 0x1A
	RegLinearAccelData Register = 0x28
	RegGravityData     Register = 0x2E
)

// SYS_TRIGGER bits.
const (
	TriggerResetSys = 1 << 5
	TriggerClkSel   = 1 << 7
)

// Self-test result bits (ST_RESULT low nibble).
const (
	SelfTestAccel = 1 << 0
	SelfTestMag   = 1 << 1
	SelfTestGyro  = 1 << 2
	SelfTestMCU   = 1 << 3

	SelfTestAll = SelfTestAccel | SelfTestMag | SelfTestGyro | SelfTestMCU
)

// OperationMode is the value of OPR_MODE.
type OperationMode uint8

const (
	ModeConfig     OperationMode = 0x00
	ModeAccOnly    OperationMode = 0x01
	ModeMagOnly    OperationMode = 0x02
	ModeGyroOnly   OperationMode = 0x03
	ModeAccMag     OperationMode = 0x04
	ModeAccGyro    OperationMode = 0x05
	ModeMagGyro    OperationMode = 0x06
	ModeAMG        OperationMode = 0x07
	ModeIMUPlus    OperationMode = 0x08
	ModeCompass    OperationMode = 0x09
	ModeM4G        OperationMode = 0x0A
	ModeNDOFFMCOff OperationMode = 0x0B
	ModeNDOF       OperationMode = 0x0C
)

const modeLast = ModeNDOF

// Valid reports whether m is a defined OPR_MODE value.
func (m OperationMode) Valid() bool { return m <= modeLast }

// Fusion reports whether m runs the fusion engine (Euler/linear/gravity valid).
func (m OperationMode) Fusion() bool { return m >= ModeIMUPlus && m <= modeLast }

func (m OperationMode) String() string {
	switch m {
	case ModeConfig:
		return "config"
	case ModeAccOnly:
		return "acconly"
	case ModeMagOnly:
		return "magonly"
	case ModeGyroOnly:
		return "gyroonly"
	case ModeAccMag:
		return "accmag"
	case ModeAccGyro:
		return "accgyro"
	case ModeMagGyro:
		return "maggyro"
	case ModeAMG:
		return "amg"
	case ModeIMUPlus:
		return "imuplus"
	case ModeCompass:
		return "compass"
	case ModeM4G:
		return "m4g"
	case ModeNDOFFMCOff:
		return "ndof_fmc_off"
	case ModeNDOF:
		return "ndof"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of OperationMode.String.
func ParseMode(s string) (OperationMode, bool) {
	for m := ModeConfig; m <= modeLast; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// SYS_STATUS values.
const (
	SysStatusIdle     = 0x00
	SysStatusFusion   = 0x05
	SysStatusNoFusion = 0x06
)

// PWR_MODE normal.
const PowerNormal = 0x00
