// Package boards describes the wiring of supported MCU boards.
package boards

// I2C is one controller and the pins it is routed to.
type I2C struct {
	ID       string // "i2c0", "i2c1"
	SDA, SCL int    // GPIO numbers
	Hz       uint32
}

// Board is the PCB as the HAL sees it.
type Board struct {
	Name string
	I2C  []I2C
}

// PicoDefault routes i2c0 to GP4/GP5, the usual breakout wiring for a
// BNO055, at 100 kHz. The device stretches the clock during fusion updates
// and misbehaves at 400 kHz on long leads.
var PicoDefault = Board{
	Name: "pico_default",
	I2C: []I2C{
		{ID: "i2c0", SDA: 4, SCL: 5, Hz: 100_000},
		{ID: "i2c1", SDA: 26, SCL: 27, Hz: 100_000},
	},
}

// Selected is the board Open configures.
var Selected = PicoDefault
