// Package hal runs the hardware abstraction service: it turns the HAL
// configuration published on config/hal into live devices and exposes
// them as hal/capability/<kind>/<id>/... topics.
package hal

import (
	"context"

	"imunode-go/bus"
	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/platform"
	"imunode-go/services/hal/internal/platform/setups"
	"imunode-go/services/hal/internal/service"
	"imunode-go/types"

	// Device builders register themselves with the registry.
	_ "imunode-go/services/hal/internal/devices/bno055adpt"
)

type (
	I2CBusFactory = halcore.I2CBusFactory
	Options       = service.Options
	Metrics       = service.Metrics
	WorkerConfig  = halcore.WorkerConfig

	Buses     = platform.Buses
	Sim       = platform.Sim
	SimConfig = platform.SimConfig
)

// Run blocks until ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection, buses I2CBusFactory, opts Options) {
	service.New(conn, buses, opts).Run(ctx)
}

// OpenBuses opens the target's hardware buses; see platform.Open.
func OpenBuses(names map[string]string) (*Buses, error) { return platform.Open(names) }

// AvailableBuses lists what OpenBuses can reach on this target.
func AvailableBuses() ([]string, error) { return platform.Available() }

// NewSim builds simulated buses with one BNO055 each.
func NewSim(cfg SimConfig) *Sim { return platform.NewSim(cfg) }

// FirmwareConfig is the HAL configuration used when no config file exists.
func FirmwareConfig() types.HALConfig { return setups.PicoIMU }
