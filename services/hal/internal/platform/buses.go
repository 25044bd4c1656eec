// Package platform supplies the I²C buses the HAL builds devices on.
package platform

import (
	"errors"
	"io"
	"sort"

	"tinygo.org/x/drivers"
)

// ErrNoPlatform is returned where no hardware backend is compiled in.
var ErrNoPlatform = errors.New("platform: no i2c backend for this target")

// Buses is a fixed set of named buses. It implements halcore.I2CBusFactory.
type Buses struct {
	buses   map[string]drivers.I2C
	closers []io.Closer
}

func newBuses() *Buses { return &Buses{buses: map[string]drivers.I2C{}} }

func (b *Buses) add(id string, bus drivers.I2C, c io.Closer) {
	b.buses[id] = bus
	if c != nil {
		b.closers = append(b.closers, c)
	}
}

func (b *Buses) ByID(id string) (drivers.I2C, bool) {
	bus, ok := b.buses[id]
	return bus, ok
}

// IDs lists the bus ids in sorted order.
func (b *Buses) IDs() []string {
	ids := make([]string, 0, len(b.buses))
	for id := range b.buses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases any host handles. It is safe to call more than once.
func (b *Buses) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
