package platform

import (
	"fmt"

	"tinygo.org/x/drivers"

	"imunode-go/drivers/bno055"
	"imunode-go/x/i2cx"
)

// Detect lists the BNO055 addresses on bus id that answer with the expected
// CHIP_ID. It does not change device state.
func (b *Buses) Detect(id string) ([]uint16, error) {
	bus, ok := b.ByID(id)
	if !ok {
		return nil, fmt.Errorf("platform: unknown bus %q", id)
	}
	var found []uint16
	for _, addr := range [...]uint16{bno055.AddressA, bno055.AddressB} {
		if readChipID(bus, addr) == bno055.ChipID {
			found = append(found, addr)
		}
	}
	return found, nil
}

// readChipID issues the split pointer write and read, holding the bus lock
// across both when the bus has one. Any failure reads as 0.
func readChipID(bus drivers.I2C, addr uint16) byte {
	var id [1]byte
	read := func(bus drivers.I2C) error {
		if err := bus.Tx(addr, []byte{byte(bno055.RegChipID)}, nil); err != nil {
			return err
		}
		return bus.Tx(addr, nil, id[:])
	}
	var err error
	if l, ok := bus.(*i2cx.Locked); ok {
		err = l.Do(read)
	} else {
		err = read(bus)
	}
	if err != nil {
		return 0
	}
	return id[0]
}
