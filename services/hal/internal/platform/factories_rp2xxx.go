//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"imunode-go/services/hal/internal/platform/boards"
	"imunode-go/x/i2cx"
)

// Open configures the board's I²C controllers. names is ignored beyond
// selecting which controllers to bring up; nil selects all of them.
func Open(names map[string]string) (*Buses, error) {
	b := newBuses()
	for _, c := range boards.Selected.I2C {
		if names != nil {
			if _, ok := names[c.ID]; !ok {
				continue
			}
		}
		var bus *machine.I2C
		switch c.ID {
		case "i2c0":
			bus = machine.I2C0
		case "i2c1":
			bus = machine.I2C1
		default:
			continue
		}
		if err := bus.Configure(machine.I2CConfig{
			Frequency: c.Hz,
			SDA:       machine.Pin(c.SDA),
			SCL:       machine.Pin(c.SCL),
		}); err != nil {
			return nil, err
		}
		b.add(c.ID, i2cx.NewLocked(bus), nil)
	}
	return b, nil
}

func Available() ([]string, error) {
	var out []string
	for _, c := range boards.Selected.I2C {
		out = append(out, c.ID)
	}
	return out, nil
}
