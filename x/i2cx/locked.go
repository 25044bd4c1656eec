// Package i2cx holds small adapters around the tinygo drivers.I2C interface.
package i2cx

import (
	"sync"

	"tinygo.org/x/drivers"
)

// Locked pairs an I²C bus with a mutex. It implements drivers.I2C and
// sync.Locker. Tx itself does not lock: callers that issue multi-step
// transactions (pointer write, then read) hold Lock across the steps, and
// drivers that know about sync.Locker do so automatically.
type Locked struct {
	mu  sync.Mutex
	bus drivers.I2C
}

// NewLocked wraps bus. Every user of the physical bus must go through the
// same *Locked for the exclusion to hold.
func NewLocked(bus drivers.I2C) *Locked { return &Locked{bus: bus} }

func (l *Locked) Lock()   { l.mu.Lock() }
func (l *Locked) Unlock() { l.mu.Unlock() }

// Tx forwards to the wrapped bus. The caller holds the lock.
func (l *Locked) Tx(addr uint16, w, r []byte) error { return l.bus.Tx(addr, w, r) }

// Do runs fn with the lock held.
func (l *Locked) Do(fn func(bus drivers.I2C) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.bus)
}
