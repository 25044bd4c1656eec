package bno055adpt

import (
	"time"

	"github.com/sirupsen/logrus"

	"imunode-go/drivers/bno055"
	"imunode-go/services/hal/internal/consts"
	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/halerr"
	"imunode-go/services/hal/internal/registry"
	"imunode-go/services/hal/internal/util"
	"imunode-go/types"
)

// Register this device type with the registry.
func init() {
	registry.RegisterBuilder(consts.TypeBNO055, builder{})
}

// DefaultKinds are published when params.kinds is empty.
var DefaultKinds = []bno055.Kind{
	bno055.KindEuler,
	bno055.KindGyroscope,
	bno055.KindLinearAccel,
	bno055.KindAccelerometer,
}

type builder struct{}

func (builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.BusRefType != "i2c" || in.BusRefID == "" {
		return registry.BuildOutput{}, halerr.ErrMissingBusRef
	}
	bus, ok := in.Buses.ByID(in.BusRefID)
	if !ok {
		return registry.BuildOutput{}, util.Errf("%w: %q", halerr.ErrUnknownBus, in.BusRefID)
	}
	// Params: { "addr": 0x28, "mode": "ndof", "period_ms": 100, "kinds": ["euler", ...] }
	var p types.BNO055Params
	if err := util.DecodeJSON(in.ParamsJSON, &p); err != nil {
		return registry.BuildOutput{}, util.Errf("bno055 params: %w", err)
	}
	s, err := parseParams(p)
	if err != nil {
		return registry.BuildOutput{}, err
	}

	log := in.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg := bno055.Config{
		Address:         s.addr,
		Mode:            s.mode,
		ExternalCrystal: p.ExternalCrystal,
		Log:             log.WithFields(logrus.Fields{"device": in.DeviceID, "bus": in.BusRefID}),
	}
	if sl, ok := bus.(halcore.Sleeper); ok {
		cfg.Delay = sl.Sleep
	}
	dev := bno055.New(bus, cfg)

	return registry.BuildOutput{
		Adaptor:     New(in.DeviceID, in.BusRefID, dev, s.kinds),
		BusID:       in.BusRefID,
		SampleEvery: s.period,
	}, nil
}

type settings struct {
	addr   uint16
	mode   bno055.OperationMode
	kinds  []bno055.Kind
	period time.Duration
}

func parseParams(p types.BNO055Params) (settings, error) {
	s := settings{addr: p.Addr, mode: bno055.ModeNDOF}
	switch s.addr {
	case 0:
		s.addr = bno055.AddressDefault
	case bno055.AddressA, bno055.AddressB:
	default:
		return s, util.Errf("%w: 0x%02x", halerr.ErrInvalidAddr, p.Addr)
	}
	if p.Mode != "" {
		m, ok := bno055.ParseMode(p.Mode)
		if !ok || m == bno055.ModeConfig {
			return s, util.Errf("%w: %q", halerr.ErrInvalidMode, p.Mode)
		}
		s.mode = m
	}
	if len(p.Kinds) == 0 {
		for _, k := range DefaultKinds {
			if s.mode.Fusion() || !k.Fused() {
				s.kinds = append(s.kinds, k)
			}
		}
	}
	seen := map[bno055.Kind]bool{}
	for _, name := range p.Kinds {
		k, ok := bno055.ParseKind(name)
		if !ok {
			return s, util.Errf("%w: %q", halerr.ErrInvalidKind, name)
		}
		if k.Fused() && !s.mode.Fusion() {
			return s, util.Errf("%w: %s needs a fusion mode, not %s", halerr.ErrInvalidKind, name, s.mode)
		}
		if !seen[k] {
			seen[k] = true
			s.kinds = append(s.kinds, k)
		}
	}
	s.period = util.PeriodMS(p.PeriodMS, consts.DefaultPeriodMS, consts.MinPeriodMS, consts.MaxPeriodMS)
	return s, nil
}
