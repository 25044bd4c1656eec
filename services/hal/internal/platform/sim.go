package platform

import (
	"context"
	"time"

	"imunode-go/drivers/bno055"
	"imunode-go/drivers/bno055/bno055sim"
	"imunode-go/x/ramp"
)

// SimConfig describes the simulated sensors, one per bus id.
type SimConfig struct {
	// Buses maps bus id to the simulator's power-on state.
	Buses map[string]bno055sim.Config
}

// Sim is a set of simulated buses, each with one BNO055 attached.
type Sim struct {
	*Buses
	devs map[string]*bno055sim.Device
}

// NewSim builds the simulators. An empty config yields a single warm
// device on "i2c1".
func NewSim(cfg SimConfig) *Sim {
	if len(cfg.Buses) == 0 {
		cfg.Buses = map[string]bno055sim.Config{"i2c1": {}}
	}
	s := &Sim{Buses: newBuses(), devs: map[string]*bno055sim.Device{}}
	for id, c := range cfg.Buses {
		d := bno055sim.New(c)
		// Resting attitude: level, gravity straight down.
		d.SetVector(bno055.RegGravityData, bno055.Vector{Z: 981})
		d.SetVector(bno055.RegAccelData, bno055.Vector{Z: 981})
		s.devs[id] = d
		s.add(id, d, nil)
	}
	return s
}

// Device returns the simulator on bus id.
func (s *Sim) Device(id string) (*bno055sim.Device, bool) {
	d, ok := s.devs[id]
	return d, ok
}

// Heading steps, in Euler counts (16 per degree).
const (
	headingTop   = 360*16 - 1
	headingSteps = 360
)

// Sweep rotates every simulated sensor through a full heading turn each
// period until ctx ends. The gyroscope reports the matching yaw rate.
func (s *Sim) Sweep(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 10 * time.Second
	}
	dps := int16(360 * 16 * time.Second / period)
	tick := func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}
	set := func(level uint16) {
		for _, d := range s.devs {
			d.SetVector(bno055.RegEulerData, bno055.Vector{X: int16(level)})
			d.SetVector(bno055.RegGyroData, bno055.Vector{Z: dps})
		}
	}
	for ctx.Err() == nil {
		ramp.StartLinear(0, headingTop, headingTop, uint32(period/time.Millisecond), headingSteps, tick, set)
	}
}
