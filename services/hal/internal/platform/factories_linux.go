//go:build linux && !(rp2040 || rp2350)

package platform

import (
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"imunode-go/x/i2cx"
)

// Open initialises periph host drivers and opens each named bus. names maps
// HAL bus id to a periph bus name ("1", "/dev/i2c-1", or "" for the first
// bus found). Every bus is wrapped in an i2cx.Locked so that split
// transactions stay paired when several goroutines share it.
func Open(names map[string]string) (*Buses, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b := newBuses()
	for id, name := range names {
		bc, err := i2creg.Open(name)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("open i2c %q for %s: %w", name, id, err)
		}
		b.add(id, i2cx.NewLocked(bc), bc)
	}
	return b, nil
}

// Available lists the I²C buses periph can see.
func Available() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	var out []string
	for _, r := range i2creg.All() {
		out = append(out, r.Name)
	}
	return out, nil
}
