package bno055

import (
	"errors"

	"imunode-go/x/conv"
)

// Errors returned by the driver.
var (
	// ErrInit means the device never answered, or never reported ChipID,
	// within the bring-up retry bounds.
	ErrInit = errors.New("bno055: init failed")
	// ErrSelfTest means the device is present and identified but at least
	// one subsystem failed its power-on self test.
	ErrSelfTest = errors.New("bno055: self test failed")
	// ErrNotReady is returned by Fetch before a successful BringUp.
	ErrNotReady = errors.New("bno055: not brought up")
	// ErrInvalidMode rejects OPR_MODE values outside the datasheet table.
	ErrInvalidMode = errors.New("bno055: invalid operation mode")
)

// Result is the closed outcome set of BringUp.
type Result uint8

const (
	ResultOK Result = iota
	ResultInitFailure
	ResultSelfTestFailure
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultSelfTestFailure:
		return "selftest_failure"
	default:
		return "init_failure"
	}
}

// Classify maps an error returned by BringUp onto Result. Any error that is
// not a self-test failure counts as an init failure.
func Classify(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrSelfTest):
		return ResultSelfTestFailure
	default:
		return ResultInitFailure
	}
}

// initError carries the step that failed and the bus cause, if any.
type initError struct {
	step string
	err  error
}

func (e *initError) Error() string {
	if e.err == nil {
		return ErrInit.Error() + ": " + e.step
	}
	return ErrInit.Error() + ": " + e.step + ": " + e.err.Error()
}

func (e *initError) Is(target error) bool { return target == ErrInit }
func (e *initError) Unwrap() error        { return e.err }

func initFailed(step string, cause error) error {
	return &initError{step: step, err: cause}
}

// SelfTestError reports the ST_RESULT low nibble that failed the check.
type SelfTestError struct {
	Result uint8
}

func (e *SelfTestError) Error() string {
	return ErrSelfTest.Error() + ": st_result=0b" + string(conv.AppendBits(nil, uint64(e.Result), 4)) + " failed=" + e.failed()
}

func (e *SelfTestError) Is(target error) bool { return target == ErrSelfTest }

// Failed reports whether the subsystem bit (SelfTestAccel, ...) is zero.
func (e *SelfTestError) Failed(bit uint8) bool { return e.Result&bit == 0 }

func (e *SelfTestError) failed() string {
	var s string
	for _, p := range [...]struct {
		bit  uint8
		name string
	}{
		{SelfTestAccel, "accel"},
		{SelfTestMag, "mag"},
		{SelfTestGyro, "gyro"},
		{SelfTestMCU, "mcu"},
	} {
		if e.Failed(p.bit) {
			if s != "" {
				s += ","
			}
			s += p.name
		}
	}
	return s
}
