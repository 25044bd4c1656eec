package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"imunode-go/types"
)

const (
	AppName    = "imunode"
	ConfigName = "config"
	EnvPrefix  = "IMUNODE"
)

// Search path used when no file is named explicitly.
var searchPaths = []string{
	filepath.Join(userHome(), ".config", AppName),
	"/etc/" + AppName,
	".",
}

func userHome() string {
	h, _ := os.UserHomeDir()
	return h
}

// DefaultPath is where init-config writes when no output is given.
func DefaultPath() string {
	return filepath.Join(userHome(), ".config", AppName, ConfigName+".yaml")
}

type CANopenOpt = types.CANopenConfig

// MaxTimerMS bounds the periods that are mirrored into the dictionary.
const MaxTimerMS = 65535

type MetricsOpt struct {
	Listen string `yaml:"listen" mapstructure:"listen"` // "" disables the endpoint
}

// Options is the node configuration file.
type Options struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Buses maps HAL bus id to "sim" or a periph I²C bus name ("1", "/dev/i2c-1").
	Buses     map[string]string     `yaml:"buses" mapstructure:"buses"`
	HAL       types.HALConfig       `yaml:"hal" mapstructure:"hal"`
	Heartbeat types.HeartbeatConfig `yaml:"heartbeat" mapstructure:"heartbeat"`
	CANopen   CANopenOpt            `yaml:"canopen" mapstructure:"canopen"`
	Metrics   MetricsOpt            `yaml:"metrics" mapstructure:"metrics"`
}

var (
	ErrMixedBuses  = errors.New("config: simulated and hardware buses cannot be mixed")
	ErrNoBuses     = errors.New("config: no buses")
	ErrDeviceID    = errors.New("config: device id missing or duplicated")
	ErrDeviceBus   = errors.New("config: device references an unknown bus")
	ErrNodeID      = errors.New("config: canopen node_id must be 1..127")
	ErrPeriod      = errors.New("config: tpdo_period_ms must be 0..65535")
	ErrDeviceType  = errors.New("config: device type missing")
	ErrBusRefType  = errors.New("config: only i2c bus refs are supported")
	ErrHeartbeatMS = errors.New("config: heartbeat interval_ms must be 1..65535")
)

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("heartbeat.interval_ms", d.Heartbeat.IntervalMS)
	v.SetDefault("canopen.enabled", d.CANopen.Enabled)
	v.SetDefault("canopen.node_id", d.CANopen.NodeID)
	v.SetDefault("canopen.interface", d.CANopen.Interface)
	v.SetDefault("canopen.tpdo_period_ms", d.CANopen.TPDOPeriodMS)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// Load reads file (or searches the default locations when file is empty)
// into Options, with IMUNODE_* environment overrides. A missing file is not
// an error: the defaults, including the default device list, apply.
func Load(v *viper.Viper, file string) (Options, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return Options{}, fmt.Errorf("read config: %w", err)
		}
		fromFile = false
		logrus.Debug("no config file found; using defaults")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("using config file")
	}

	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("decode config: %w", err)
	}
	// Map-valued keys are filled here: viper would merge a default map
	// with the file's instead of replacing it.
	if len(o.Buses) == 0 {
		o.Buses = Default().Buses
	}
	if !fromFile && len(o.HAL.Devices) == 0 {
		o.HAL = Default().HAL
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Validate checks cross-references between sections.
func (o Options) Validate() error {
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if len(o.Buses) == 0 {
		return ErrNoBuses
	}
	sims := 0
	for _, name := range o.Buses {
		if name == BusSim {
			sims++
		}
	}
	if sims != 0 && sims != len(o.Buses) {
		return ErrMixedBuses
	}

	seen := map[string]bool{}
	for _, d := range o.HAL.Devices {
		if d.ID == "" || seen[d.ID] {
			return fmt.Errorf("%w: %q", ErrDeviceID, d.ID)
		}
		seen[d.ID] = true
		if d.Type == "" {
			return fmt.Errorf("%w: %s", ErrDeviceType, d.ID)
		}
		if d.BusRef.Type != "i2c" {
			return fmt.Errorf("%w: %s", ErrBusRefType, d.ID)
		}
		if _, ok := o.Buses[d.BusRef.ID]; !ok {
			return fmt.Errorf("%w: %s -> %q", ErrDeviceBus, d.ID, d.BusRef.ID)
		}
	}

	// Both periods are also UNSIGNED16 objects (0x1017, 0x180x sub 5).
	if o.Heartbeat.IntervalMS <= 0 || o.Heartbeat.IntervalMS > MaxTimerMS {
		return ErrHeartbeatMS
	}
	if o.CANopen.Enabled && (o.CANopen.NodeID < 1 || o.CANopen.NodeID > 127) {
		return ErrNodeID
	}
	if o.CANopen.TPDOPeriodMS < 0 || o.CANopen.TPDOPeriodMS > MaxTimerMS {
		return ErrPeriod
	}
	return nil
}

// Simulated reports whether every bus is a simulator.
func (o Options) Simulated() bool {
	for _, name := range o.Buses {
		if name != BusSim {
			return false
		}
	}
	return true
}

// Save writes o as YAML. An existing file is only replaced if overwrite is set.
func Save(path string, o Options, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
