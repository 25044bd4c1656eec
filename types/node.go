package types

// CANFrame is published on can/tx/<cob-id> and received on can/rx/<cob-id>.
type CANFrame struct {
	ID   uint32 `json:"id"` // 11-bit COB-ID
	Len  uint8  `json:"len"`
	Data [8]byte
}

// Heartbeat is published on node/heartbeat (not retained).
type Heartbeat struct {
	Seq      uint32 `json:"seq"`
	UptimeMS int64  `json:"uptime_ms"`
	TS       int64  `json:"ts_ms"`
}

// HeartbeatConfig is the payload of config/heartbeat.
type HeartbeatConfig struct {
	IntervalMS int `json:"interval_ms" yaml:"interval_ms" mapstructure:"interval_ms"`
}

// CANopenConfig is the payload of config/canopen.
type CANopenConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	NodeID       uint8  `json:"node_id" yaml:"node_id" mapstructure:"node_id"`
	Interface    string `json:"interface" yaml:"interface" mapstructure:"interface"` // socketcan interface, "" publishes on the bus only
	TPDOPeriodMS int    `json:"tpdo_period_ms" yaml:"tpdo_period_ms" mapstructure:"tpdo_period_ms"`
}
