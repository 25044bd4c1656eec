// services/hal/internal/halcore/types.go
package halcore

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Reading is one datum for one capability kind. A reading with Err set
// carries no payload and leaves the previously published value in place.
type Reading struct {
	Kind    string // e.g. "euler", "gyroscope"
	Payload any    // JSON-serialisable
	TsMs    int64  // producer timestamp (ms)
	Err     error
}

// Sample is a batch collected together.
type Sample []Reading

// Failed counts readings with an error.
func (s Sample) Failed() int {
	n := 0
	for _, r := range s {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// CapInfo describes one capability's retained info document.
type CapInfo struct {
	Kind string // capability kind
	Info any    // small JSONable value
}

// Adaptor abstracts a concrete device/driver. Must not own goroutines or the bus.
// Every method except Control and Capabilities runs on the bus worker.
type Adaptor interface {
	ID() string
	Capabilities() []CapInfo
	// Init runs once before the first Trigger. It may block for the device's
	// whole bring-up sequence.
	Init(ctx context.Context) error
	// Split-phase measurement cycle.
	Trigger(ctx context.Context) (collectAfter time.Duration, err error)
	Collect(ctx context.Context) (Sample, error)
	// Optional pass-through control for device-specific methods.
	Control(kind, method string, payload any) (result any, err error)
}

// WorkerConfig centralises timings and limits.
type WorkerConfig struct {
	TriggerTimeout time.Duration
	CollectTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int
	InputQueueSize int
}

// Op selects what a worker does with a request.
type Op uint8

const (
	OpMeasure Op = iota
	OpInit
)

// MeasureReq asks a worker to service an adaptor.
type MeasureReq struct {
	ID      string
	Adaptor Adaptor
	Op      Op
	Prio    bool // true for "read_now"
}

// Result emitted by a worker.
type Result struct {
	ID     string
	Op     Op
	Sample Sample
	Err    error
}

var (
	// ErrNotReady signals the worker to retry Collect after backoff.
	ErrNotReady = errors.New("not ready")
	// ErrUnsupported for adaptor Control pass-through.
	ErrUnsupported = errors.New("unsupported")
)

// ---- Buses ----

// I2CBusFactory injects configured I²C instances by id.
// Uses the TinyGo drivers.I2C interface to remain compatible on MCU builds.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// Sleeper is implemented by simulated buses that keep their own clock.
// Builders pass Sleep to drivers in place of time.Sleep.
type Sleeper interface {
	Sleep(d time.Duration)
}
