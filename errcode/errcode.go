package errcode

import (
	"context"
	"errors"

	"imunode-go/drivers/bno055"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"
	UnknownBus        Code = "unknown_bus"
	Timeout           Code = "timeout"

	// Sensor bring-up and acquisition.
	Initialising   Code = "initialising"
	InitFailed     Code = "init_failed"
	SelfTestFailed Code = "selftest_failed"
	NotReady       Code = "not_ready"
	BusError       Code = "bus_error"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches c to err, keeping err as the cause.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, bno055.ErrSelfTest):
		return SelfTestFailed
	case errors.Is(err, bno055.ErrInit):
		return InitFailed
	case errors.Is(err, bno055.ErrNotReady):
		return NotReady
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	default:
		if c := Of(err); c != Error {
			return c
		}
		// Anything else from a driver came back from the bus transport.
		return BusError
	}
}
