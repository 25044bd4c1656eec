// Package bno055sim is a register-level BNO055 simulator implementing the
// tinygo drivers.I2C interface. Time is virtual: it only advances through
// Sleep, which callers pass to bno055.Config.Delay.
//
// The simulator models what the bring-up sequence depends on: NAKs while
// booting, the read pointer set by a bare address write and auto-increment
// on reads, RST_SYS rebooting into config mode, and a rejected combined
// write+read transaction.
package bno055sim

import (
	"errors"
	"sync"
	"time"

	"imunode-go/drivers/bno055"
)

// Errors returned by Tx.
var (
	ErrNack     = errors.New("bno055sim: nack")
	ErrCombined = errors.New("bno055sim: combined write+read not supported")
	ErrInjected = errors.New("bno055sim: injected fault")
)

// Op is one recorded bus transaction.
type Op struct {
	Write bool
	Data  []byte // bytes written, or bytes returned for a read
	Err   error
}

// Config selects the simulated power-on state.
type Config struct {
	// Address defaults to 0x28.
	Address uint16
	// Absent makes every transaction NAK.
	Absent bool
	// ColdBoot makes the device NAK until BootLatency has elapsed.
	ColdBoot bool
	// Mode is OPR_MODE at attach time; a warm reconnect may find the device
	// still reporting. Zero is ModeConfig, the real power-on state.
	Mode bno055.OperationMode
	// ChipID defaults to bno055.ChipID.
	ChipID byte
	// SelfTest is the ST_RESULT value. Zero selects 0x0F (all passed).
	SelfTest byte
	// BootLatency defaults to 650 ms.
	BootLatency time.Duration
}

// Device is the simulated sensor.
type Device struct {
	mu sync.Mutex

	addr    uint16
	absent  bool
	latency time.Duration
	selfST  byte
	chipID  byte

	regs      [256]byte
	ptr       byte
	now       time.Duration
	bootUntil time.Duration
	resets    int

	ids     []byte // queued CHIP_ID reads, consumed before regs[0]
	sleeps  []time.Duration
	log     []Op
	failW   func(w []byte) bool
	failR   func(n int) bool
	onWrite func(w []byte)
}

// New returns a simulator in its power-on state.
func New(cfg Config) *Device {
	s := &Device{
		addr:    cfg.Address,
		absent:  cfg.Absent,
		latency: cfg.BootLatency,
		selfST:  cfg.SelfTest,
		chipID:  cfg.ChipID,
	}
	if s.addr == 0 {
		s.addr = bno055.AddressDefault
	}
	if s.latency <= 0 {
		s.latency = bno055.BootDelay
	}
	if s.selfST == 0 {
		s.selfST = bno055.SelfTestAll
	}
	if s.chipID == 0 {
		s.chipID = bno055.ChipID
	}
	s.powerOn()
	if cfg.ColdBoot {
		s.bootUntil = s.latency
	}
	s.regs[bno055.RegOprMode] = byte(cfg.Mode)
	s.regs[bno055.RegSysStatus] = sysStatus(cfg.Mode)
	return s
}

func (s *Device) powerOn() {
	s.regs = [256]byte{}
	s.regs[bno055.RegChipID] = s.chipID
	s.regs[bno055.RegSelfTest] = s.selfST
	s.regs[bno055.RegOprMode] = byte(bno055.ModeConfig)
	s.ptr = 0
}

// Tx implements drivers.I2C.
func (s *Device) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case addr != s.addr || s.absent || s.now < s.bootUntil:
		return s.record(len(w) > 0, w, ErrNack)
	case len(w) > 0 && len(r) > 0:
		return s.record(true, w, ErrCombined)
	case len(w) > 0:
		if s.failW != nil && s.failW(w) {
			return s.record(true, w, ErrInjected)
		}
		s.write(w)
		s.record(true, w, nil)
		if s.onWrite != nil {
			// Run outside the lock so the hook may issue its own transactions.
			hook := s.onWrite
			s.mu.Unlock()
			hook(append([]byte(nil), w...))
			s.mu.Lock()
		}
		return nil
	case len(r) > 0:
		if s.failR != nil && s.failR(len(r)) {
			return s.record(false, nil, ErrInjected)
		}
		s.read(r)
		return s.record(false, r, nil)
	}
	// Zero-length write: address-only probe.
	return s.record(true, nil, nil)
}

func (s *Device) write(w []byte) {
	s.ptr = w[0]
	for _, b := range w[1:] {
		reg := bno055.Register(s.ptr)
		switch reg {
		case bno055.RegSysTrigger:
			if b&bno055.TriggerResetSys != 0 {
				s.resets++
				s.powerOn()
				s.bootUntil = s.now + s.latency
				return
			}
			s.regs[reg] = b
		case bno055.RegOprMode:
			s.regs[reg] = b
			s.regs[bno055.RegSysStatus] = sysStatus(bno055.OperationMode(b))
		case bno055.RegChipID, bno055.RegSelfTest, bno055.RegSysStatus:
			// read-only
		default:
			s.regs[reg] = b
		}
		s.ptr++
	}
}

func sysStatus(m bno055.OperationMode) byte {
	switch {
	case m == bno055.ModeConfig:
		return bno055.SysStatusIdle
	case m.Fusion():
		return bno055.SysStatusFusion
	default:
		return bno055.SysStatusNoFusion
	}
}

func (s *Device) read(r []byte) {
	for i := range r {
		if bno055.Register(s.ptr) == bno055.RegChipID && len(s.ids) > 0 {
			r[i] = s.ids[0]
			s.ids = s.ids[1:]
		} else {
			r[i] = s.regs[s.ptr]
		}
		s.ptr++
	}
}

func (s *Device) record(write bool, data []byte, err error) error {
	s.log = append(s.log, Op{Write: write, Data: append([]byte(nil), data...), Err: err})
	return err
}

// Sleep advances virtual time. Pass it as bno055.Config.Delay.
func (s *Device) Sleep(d time.Duration) {
	s.mu.Lock()
	s.now += d
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
}

// ---- test controls ----

// SetVector stores v in the 6-byte block at base.
func (s *Device) SetVector(base bno055.Register, v bno055.Vector) {
	b := bno055.Encode(v)
	s.SetBytes(base, b[:])
}

// SetBytes stores raw bytes starting at reg.
func (s *Device) SetBytes(reg bno055.Register, b []byte) {
	s.mu.Lock()
	copy(s.regs[reg:], b)
	s.mu.Unlock()
}

// QueueChipIDs makes the next CHIP_ID reads return ids in order.
func (s *Device) QueueChipIDs(ids ...byte) {
	s.mu.Lock()
	s.ids = append(s.ids, ids...)
	s.mu.Unlock()
}

// FailWrites installs a predicate; matching writes return ErrInjected
// without touching device state. nil clears it.
func (s *Device) FailWrites(fn func(w []byte) bool) {
	s.mu.Lock()
	s.failW = fn
	s.mu.Unlock()
}

// FailReads installs a predicate on read length. nil clears it.
func (s *Device) FailReads(fn func(n int) bool) {
	s.mu.Lock()
	s.failR = fn
	s.mu.Unlock()
}

// OnWrite runs fn after every successful write, with the bus lock released.
// Tests use it to inject traffic between a pointer write and its read.
func (s *Device) OnWrite(fn func(w []byte)) {
	s.mu.Lock()
	s.onWrite = fn
	s.mu.Unlock()
}

// SetAbsent detaches or re-attaches the device.
func (s *Device) SetAbsent(absent bool) {
	s.mu.Lock()
	s.absent = absent
	s.mu.Unlock()
}

// Register returns the current value of reg.
func (s *Device) Register(reg bno055.Register) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

// Log returns a copy of the recorded transactions.
func (s *Device) Log() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.log...)
}

// Writes returns the data of every successful write with a payload
// (register address plus at least one value byte), in order.
func (s *Device) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, op := range s.log {
		if op.Write && op.Err == nil && len(op.Data) >= 2 {
			out = append(out, op.Data)
		}
	}
	return out
}

// Sleeps returns every virtual delay requested so far.
func (s *Device) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// Now returns the virtual clock.
func (s *Device) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Resets counts RST_SYS writes.
func (s *Device) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// ResetLog clears the transaction log.
func (s *Device) ResetLog() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}
