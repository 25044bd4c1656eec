package config

import "imunode-go/types"

// Defaults. A fresh install runs against the simulator so that the node
// can be exercised without hardware.
const (
	DefaultLogLevel      = "info"
	DefaultBusID         = "i2c1"
	DefaultBusName       = BusSim
	DefaultHeartbeatMS   = 2000
	DefaultNodeID        = 0x17
	DefaultCANInterface  = "can0"
	DefaultTPDOPeriodMS  = 2000
	DefaultMetricsListen = ":9155"
)

// BusSim in Options.Buses selects a simulated BNO055 instead of hardware.
const BusSim = "sim"

// Default returns the configuration written by init-config.
func Default() Options {
	return Options{
		LogLevel: DefaultLogLevel,
		Buses:    map[string]string{DefaultBusID: DefaultBusName},
		HAL: types.HALConfig{
			Devices: []types.HALDevice{{
				ID:     "imu0",
				Type:   "bno055",
				BusRef: types.BusRef{Type: "i2c", ID: DefaultBusID},
				Params: types.BNO055Params{
					Addr:     0x28,
					Mode:     "ndof",
					PeriodMS: 100,
					Kinds:    []string{"euler", "gyroscope", "linear_accel", "accelerometer"},
				},
			}},
		},
		Heartbeat: types.HeartbeatConfig{IntervalMS: DefaultHeartbeatMS},
		CANopen: CANopenOpt{
			Enabled:      false,
			NodeID:       DefaultNodeID,
			Interface:    DefaultCANInterface,
			TPDOPeriodMS: DefaultTPDOPeriodMS,
		},
		Metrics: MetricsOpt{Listen: DefaultMetricsListen},
	}
}
