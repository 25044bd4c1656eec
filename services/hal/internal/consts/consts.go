// services/hal/internal/consts/consts.go
package consts

// Top-level topics
const (
	TokConfig     = "config"
	TokHAL        = "hal"
	TokCapability = "capability"
	TokInfo       = "info"
	TokState      = "state"
	TokStatus     = "status"
	TokValue      = "value"
	TokControl    = "control"
)

// Control verbs
const (
	CtrlReadNow   = "read_now"
	CtrlSetRate   = "set_rate"
	CtrlGetLatest = "get_latest"
	CtrlBringUp   = "bringup"
)

// Device types
const (
	TypeBNO055 = "bno055"
)

// Sampling bounds for periodic devices.
const (
	DefaultPeriodMS = 100
	MinPeriodMS     = 20
	MaxPeriodMS     = 60 * 60 * 1000
)
