// Package setups holds the initial HAL configuration baked into firmware
// images, where there is no config file to read.
package setups

import "imunode-go/types"

// PicoIMU is one BNO055 on i2c0 at the default address in NDOF mode.
var PicoIMU = types.HALConfig{
	Devices: []types.HALDevice{{
		ID:     "imu0",
		Type:   "bno055",
		BusRef: types.BusRef{Type: "i2c", ID: "i2c0"},
		Params: types.BNO055Params{Addr: 0x28, Mode: "ndof", PeriodMS: 100},
	}},
}
