// Package bno055 provides a driver for the Bosch BNO055 absolute orientation
// sensor on I²C.
//
// The device does not tolerate a repeated-start register read, so every
// transaction here is a bare write of the register address followed by a
// separate read:
//
//	bus.Tx(addr, []byte{reg}, nil)
//	bus.Tx(addr, nil, buf)
//
// A combined bus.Tx(addr, w, r) is never issued. If the bus also implements
// sync.Locker the driver holds the lock across each write/read pair so that
// traffic from other goroutines cannot move the device's read pointer.
//
// Usage:
//
//	d := bno055.New(bus, bno055.Config{})
//	if err := d.BringUp(); err != nil { ... }   // once, blocks ~0.8 s
//	v, err := d.Euler()                         // raw counts, 16 LSB/deg
package bno055

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"imunode-go/x/conv"
)

// Bring-up timings. These are datasheet contracts, not tunables.
const (
	BootDelay          = 650 * time.Millisecond
	WarmBootDelay      = 30 * time.Millisecond
	IDRetryDelay       = 1000 * time.Millisecond
	PostIDDelay        = 50 * time.Millisecond
	ModeSettleDelay    = 30 * time.Millisecond
	PowerSettleDelay   = 10 * time.Millisecond
	TriggerSettleDelay = 10 * time.Millisecond
)

// Logger is the subset of a leveled logger the driver reports progress to.
// A *logrus.Logger or logrus.FieldLogger satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to AddressA (0x28) if zero.
	Address uint16
	// Mode is entered at the end of BringUp. ModeConfig (zero) selects ModeNDOF.
	Mode OperationMode
	// ExternalCrystal sets CLK_SEL when SYS_TRIGGER is cleared.
	ExternalCrystal bool
	// Delay blocks the caller. Defaults to time.Sleep.
	Delay func(time.Duration)
	// Log receives bring-up progress. Defaults to no output.
	Log Logger
}

// Device is a BNO055 on an I²C bus. The bus is borrowed, never closed.
type Device struct {
	bus   drivers.I2C
	addr  uint16
	mode  OperationMode
	xtal  bool
	delay func(time.Duration)
	log   Logger

	done   bool
	ready  bool
	result error

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [VectorLen]byte
}

// New constructs a Device. It does not touch the bus.
func New(bus drivers.I2C, cfg Config) *Device {
	d := &Device{
		bus:   bus,
		addr:  cfg.Address,
		mode:  cfg.Mode,
		xtal:  cfg.ExternalCrystal,
		delay: cfg.Delay,
		log:   cfg.Log,
	}
	if d.addr == 0 {
		d.addr = AddressDefault
	}
	if d.mode == ModeConfig || !d.mode.Valid() {
		d.mode = ModeNDOF
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	if d.log == nil {
		d.log = nopLogger{}
	}
	return d
}

// Introspection.
func (d *Device) Address() uint16        { return d.addr }
func (d *Device) Mode() OperationMode    { return d.mode }
func (d *Device) Ready() bool            { return d.ready }
func (d *Device) Result() (Result, bool) { return Classify(d.result), d.done }

// BringUp drives the device from an unknown state into the configured
// reporting mode. It runs the sequence once per Device; later calls return
// the first outcome without bus traffic.
//
// The returned error satisfies errors.Is(err, ErrInit) or
// errors.Is(err, ErrSelfTest); see Classify.
func (d *Device) BringUp() error {
	if d.done {
		return d.result
	}
	d.result = d.bringUp()
	d.done = true
	d.ready = d.result == nil
	return d.result
}

func (d *Device) bringUp() error {
	d.log.Infof("bno055@0x%02x: starting bring-up", d.addr)

	// Liveness probe; a silent device is most likely still booting from cold.
	reachable := d.probe() == nil

	reset := false
	if reachable {
		mode, err := d.readReg(RegOprMode)
		if err != nil || OperationMode(mode) != ModeConfig {
			d.log.Infof("bno055@0x%02x: mode=%s (err %v), resetting", d.addr, OperationMode(mode), err)
			// Write failures here are tolerated: identity below is authoritative.
			_ = d.writeReg(RegOprMode, byte(ModeConfig))
			d.delay(ModeSettleDelay)
			_ = d.writeReg(RegSysTrigger, TriggerResetSys)
			reset = true
		}
	} else {
		d.log.Debugf("bno055@0x%02x: no answer to probe, assuming cold boot", d.addr)
	}

	if reset || !reachable {
		d.delay(BootDelay)
	} else {
		d.delay(WarmBootDelay)
	}

	if err := d.identify(); err != nil {
		return err
	}
	d.delay(PostIDDelay)

	st, err := d.readReg(RegSelfTest)
	if err != nil {
		return initFailed("self test read", err)
	}
	if st&SelfTestAll != SelfTestAll {
		e := &SelfTestError{Result: st & SelfTestAll}
		d.log.Warnf("bno055@0x%02x: %v", d.addr, e)
		return e
	}

	if err := d.writeReg(RegPwrMode, PowerNormal); err != nil {
		return initFailed("power mode", err)
	}
	d.delay(PowerSettleDelay)
	if err := d.writeReg(RegPageID, 0); err != nil {
		return initFailed("page select", err)
	}
	var trig byte
	if d.xtal {
		trig |= TriggerClkSel
	}
	if err := d.writeReg(RegSysTrigger, trig); err != nil {
		return initFailed("sys trigger", err)
	}
	d.delay(TriggerSettleDelay)

	if err := d.writeReg(RegOprMode, byte(d.mode)); err != nil {
		return initFailed("operation mode", err)
	}
	d.delay(ModeSettleDelay)

	d.log.Infof("bno055@0x%02x: reporting in %s", d.addr, d.mode)
	return nil
}

// identify confirms CHIP_ID with exactly one retry. A failed address write
// means the device did not come back within the boot window.
func (d *Device) identify() error {
	id, werr, rerr := d.readID()
	if werr != nil {
		return initFailed("chip id address", werr)
	}
	if rerr == nil && id == ChipID {
		return nil
	}
	d.log.Warnf("bno055@0x%02x: chip id 0x%02x (read err %v), retrying", d.addr, id, rerr)

	d.delay(IDRetryDelay)
	id, werr, rerr = d.readID()
	switch {
	case werr != nil:
		return initFailed("chip id address (retry)", werr)
	case rerr != nil:
		return initFailed("chip id read (retry)", rerr)
	case id != ChipID:
		return initFailed("chip id mismatch 0x"+string(conv.AppendHex8(nil, id)), nil)
	}
	return nil
}

// SetMode switches OPR_MODE and waits for the transition to settle.
func (d *Device) SetMode(m OperationMode) error {
	if !m.Valid() {
		return ErrInvalidMode
	}
	if err := d.writeReg(RegOprMode, byte(m)); err != nil {
		return err
	}
	d.delay(ModeSettleDelay)
	d.mode = m
	return nil
}

// SystemStatus reads SYS_STATUS and SYS_ERR.
func (d *Device) SystemStatus() (status, sysErr uint8, err error) {
	if status, err = d.readReg(RegSysStatus); err != nil {
		return 0, 0, err
	}
	if sysErr, err = d.readReg(RegSysErr); err != nil {
		return 0, 0, err
	}
	return status, sysErr, nil
}

// Fetch points the device at base and burst-reads one 6-byte vector block.
// On a failed address write no read is attempted. Values are trusted as-is;
// right after BringUp they may still be zero.
func (d *Device) Fetch(base Register) (Vector, error) {
	if !d.ready {
		return Vector{}, ErrNotReady
	}
	unlock := d.lock()
	defer unlock()
	if err := d.writeAddr(base); err != nil {
		return Vector{}, err
	}
	if err := d.bus.Tx(d.addr, nil, d.r[:VectorLen]); err != nil {
		return Vector{}, err
	}
	return Decode(d.r), nil
}

// FetchKind is Fetch(k.Base()).
func (d *Device) FetchKind(k Kind) (Vector, error) { return d.Fetch(k.Base()) }

// Euler returns heading, roll, pitch (16 LSB/deg).
func (d *Device) Euler() (Vector, error) { return d.Fetch(RegEulerData) }

// Gyroscope returns angular rate (16 LSB/dps).
func (d *Device) Gyroscope() (Vector, error) { return d.Fetch(RegGyroData) }

// LinearAccel returns acceleration without gravity (100 LSB/m·s⁻²).
func (d *Device) LinearAccel() (Vector, error) { return d.Fetch(RegLinearAccelData) }

// Accelerometer returns raw acceleration (100 LSB/m·s⁻²).
func (d *Device) Accelerometer() (Vector, error) { return d.Fetch(RegAccelData) }

// Gravity returns the gravity vector (100 LSB/m·s⁻²).
func (d *Device) Gravity() (Vector, error) { return d.Fetch(RegGravityData) }

// Magnetometer returns the magnetic field (16 LSB/µT).
func (d *Device) Magnetometer() (Vector, error) { return d.Fetch(RegMagData) }

// ---- split-phase bus access ----

func (d *Device) lock() func() {
	if l, ok := d.bus.(sync.Locker); ok {
		l.Lock()
		return l.Unlock
	}
	return func() {}
}

// writeAddr sets the device read pointer. Caller holds the lock.
func (d *Device) writeAddr(reg Register) error {
	d.w[0] = byte(reg)
	return d.bus.Tx(d.addr, d.w[:1], nil)
}

func (d *Device) probe() error {
	unlock := d.lock()
	defer unlock()
	return d.writeAddr(RegChipID)
}

func (d *Device) writeReg(reg Register, v byte) error {
	unlock := d.lock()
	defer unlock()
	d.w[0] = byte(reg)
	d.w[1] = v
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

func (d *Device) readReg(reg Register) (byte, error) {
	unlock := d.lock()
	defer unlock()
	if err := d.writeAddr(reg); err != nil {
		return 0, err
	}
	if err := d.bus.Tx(d.addr, nil, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

// readID reports the address-write and read failures separately.
func (d *Device) readID() (id byte, werr, rerr error) {
	unlock := d.lock()
	defer unlock()
	if werr = d.writeAddr(RegChipID); werr != nil {
		return 0, werr, nil
	}
	if rerr = d.bus.Tx(d.addr, nil, d.r[:1]); rerr != nil {
		return 0, nil, rerr
	}
	return d.r[0], nil, nil
}
