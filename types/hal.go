package types

import "time"

// ---- Common HAL state (retained) ----

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // short machine-readable code
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // errcode.Code
}

// ---- HAL configuration (topic config/hal, retained) ----

type HALConfig struct {
	Devices []HALDevice `json:"devices" yaml:"devices" mapstructure:"devices"`
}

type HALDevice struct {
	ID     string `json:"id" yaml:"id" mapstructure:"id"`
	Type   string `json:"type" yaml:"type" mapstructure:"type"` // e.g. "bno055"
	Params any    `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
	BusRef BusRef `json:"bus_ref" yaml:"bus_ref" mapstructure:"bus_ref"`
}

type BusRef struct {
	Type string `json:"type" yaml:"type" mapstructure:"type"` // "i2c"
	ID   string `json:"id" yaml:"id" mapstructure:"id"`       // factory bus id, e.g. "i2c1"
}

// ---- Controls ----

type SetRate struct {
	Period time.Duration `json:"period"`
}

type SetRateAck struct {
	OK     bool          `json:"ok"`
	Period time.Duration `json:"period"`
}

type ReadNowAck struct {
	OK bool `json:"ok"`
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Info envelope published on hal/capability/<kind>/<id>/info (retained).
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}
