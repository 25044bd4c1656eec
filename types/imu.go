package types

// BNO055Params is HALDevice.Params for type "bno055".
type BNO055Params struct {
	Addr            uint16   `json:"addr,omitempty" yaml:"addr,omitempty" mapstructure:"addr"`                   // 0x28 (default) or 0x29
	Mode            string   `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode"`                   // "ndof" (default), "imuplus", ...
	PeriodMS        int      `json:"period_ms,omitempty" yaml:"period_ms,omitempty" mapstructure:"period_ms"`    // default 100
	Kinds           []string `json:"kinds,omitempty" yaml:"kinds,omitempty" mapstructure:"kinds"`                // default: euler, gyroscope, linear_accel, accelerometer
	ExternalCrystal bool     `json:"external_crystal,omitempty" yaml:"external_crystal,omitempty" mapstructure:"external_crystal"`
}

// VectorValue is published on hal/capability/<kind>/<id>/value.
// X, Y and Z are raw register counts; divide by LSB for Unit.
type VectorValue struct {
	X    int16  `json:"x"`
	Y    int16  `json:"y"`
	Z    int16  `json:"z"`
	LSB  int16  `json:"lsb"`
	Unit string `json:"unit"`
	TS   int64  `json:"ts_ms"`
}

// VectorInfo is Info.Detail for a vector capability.
type VectorInfo struct {
	Sensor string `json:"sensor"` // "bno055"
	Bus    string `json:"bus"`
	Addr   uint16 `json:"addr"`
	Mode   string `json:"mode"`
	Kind   string `json:"kind"`
	LSB    int16  `json:"lsb"`
	Unit   string `json:"unit"`
}

// BringUpReport answers the "bringup" control.
type BringUpReport struct {
	Done   bool   `json:"done"`
	Result string `json:"result"` // "ok", "init_failure", "selftest_failure"
	Error  string `json:"error,omitempty"`
	// SysStatus and SysErr are read once after a successful bring-up.
	SysStatus uint8 `json:"sys_status"`
	SysErr    uint8 `json:"sys_err"`
}
