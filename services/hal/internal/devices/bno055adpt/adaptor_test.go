package bno055adpt

import (
	"context"
	"errors"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"imunode-go/drivers/bno055"
	"imunode-go/drivers/bno055/bno055sim"
	"imunode-go/services/hal/internal/consts"
	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/halerr"
	"imunode-go/services/hal/internal/registry"
	"imunode-go/types"
)

type simBuses map[string]*bno055sim.Device

func (m simBuses) ByID(id string) (drivers.I2C, bool) {
	d, ok := m[id]
	if !ok {
		return nil, false
	}
	return d, true
}

func build(t *testing.T, sim *bno055sim.Device, params any) *Adaptor {
	t.Helper()
	b, ok := registry.Lookup(consts.TypeBNO055)
	if !ok {
		t.Fatal("bno055 builder not registered")
	}
	out, err := b.Build(registry.BuildInput{
		Ctx:        context.Background(),
		Buses:      simBuses{"i2c1": sim},
		DeviceID:   "imu0",
		Type:       consts.TypeBNO055,
		ParamsJSON: params,
		BusRefType: "i2c",
		BusRefID:   "i2c1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.BusID != "i2c1" {
		t.Fatalf("BusID = %q", out.BusID)
	}
	return out.Adaptor.(*Adaptor)
}

func TestBuildDefaults(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	b, _ := registry.Lookup(consts.TypeBNO055)
	out, err := b.Build(registry.BuildInput{
		Buses: simBuses{"i2c1": sim}, DeviceID: "imu0", BusRefType: "i2c", BusRefID: "i2c1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.SampleEvery != consts.DefaultPeriodMS*time.Millisecond {
		t.Fatalf("SampleEvery = %v", out.SampleEvery)
	}
	caps := out.Adaptor.Capabilities()
	if len(caps) != len(DefaultKinds) {
		t.Fatalf("caps = %d, want %d", len(caps), len(DefaultKinds))
	}
	info := caps[0].Info.(types.Info)
	detail := info.Detail.(types.VectorInfo)
	if caps[0].Kind != "euler" || detail.Addr != bno055.AddressA || detail.Mode != "ndof" || detail.LSB != 16 {
		t.Fatalf("first cap = %+v / %+v", caps[0], detail)
	}
}

func TestBuildRejectsBadParams(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	b, _ := registry.Lookup(consts.TypeBNO055)
	cases := []struct {
		name   string
		in     registry.BuildInput
		target error
	}{
		{"no bus ref", registry.BuildInput{Buses: simBuses{}}, halerr.ErrMissingBusRef},
		{"unknown bus", registry.BuildInput{Buses: simBuses{}, BusRefType: "i2c", BusRefID: "i2c9"}, halerr.ErrUnknownBus},
		{"bad addr", registry.BuildInput{Buses: simBuses{"b": sim}, BusRefType: "i2c", BusRefID: "b",
			ParamsJSON: map[string]any{"addr": 0x30}}, halerr.ErrInvalidAddr},
		{"bad mode", registry.BuildInput{Buses: simBuses{"b": sim}, BusRefType: "i2c", BusRefID: "b",
			ParamsJSON: map[string]any{"mode": "config"}}, halerr.ErrInvalidMode},
		{"bad kind", registry.BuildInput{Buses: simBuses{"b": sim}, BusRefType: "i2c", BusRefID: "b",
			ParamsJSON: map[string]any{"kinds": []any{"euler", "quaternion"}}}, halerr.ErrInvalidKind},
		{"fused kind without fusion", registry.BuildInput{Buses: simBuses{"b": sim}, BusRefType: "i2c", BusRefID: "b",
			ParamsJSON: map[string]any{"mode": "amg", "kinds": []any{"gyroscope", "gravity"}}}, halerr.ErrInvalidKind},
	}
	for _, c := range cases {
		if _, err := b.Build(c.in); !errors.Is(err, c.target) {
			t.Fatalf("%s: err = %v, want %v", c.name, err, c.target)
		}
	}
}

func TestParamsKindsDeduplicatedInOrder(t *testing.T) {
	s, err := parseParams(types.BNO055Params{Kinds: []string{"gravity", "euler", "gravity"}, PeriodMS: 5, Mode: "imuplus"})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.kinds) != 2 || s.kinds[0] != bno055.KindGravity || s.kinds[1] != bno055.KindEuler {
		t.Fatalf("kinds = %v", s.kinds)
	}
	if s.period != consts.MinPeriodMS*time.Millisecond {
		t.Fatalf("period = %v, want clamp to min", s.period)
	}
	if s.mode != bno055.ModeIMUPlus {
		t.Fatalf("mode = %s", s.mode)
	}
}

func TestParamsDefaultKindsFollowMode(t *testing.T) {
	s, err := parseParams(types.BNO055Params{Mode: "amg"})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.kinds) != 2 || s.kinds[0] != bno055.KindGyroscope || s.kinds[1] != bno055.KindAccelerometer {
		t.Fatalf("amg kinds = %v", s.kinds)
	}
	s, _ = parseParams(types.BNO055Params{})
	if len(s.kinds) != len(DefaultKinds) {
		t.Fatalf("ndof kinds = %v", s.kinds)
	}
}

func TestInitUsesSimClockAndCollects(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{ColdBoot: true})
	ad := build(t, sim, map[string]any{"kinds": []any{"euler", "gyroscope"}})

	if _, err := ad.Trigger(context.Background()); !errors.Is(err, bno055.ErrNotReady) {
		t.Fatalf("Trigger before Init: %v", err)
	}
	start := time.Now()
	if err := ad.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Init slept in real time; expected the simulator clock")
	}
	if sim.Now() < bno055.BootDelay {
		t.Fatalf("virtual clock = %v", sim.Now())
	}
	rep, _ := ad.Control("euler", consts.CtrlBringUp, nil)
	if r := rep.(types.BringUpReport); r.Result != "ok" || r.SysStatus != bno055.SysStatusFusion || r.SysErr != 0 {
		t.Fatalf("report = %+v", r)
	}

	sim.SetVector(bno055.RegEulerData, bno055.Vector{X: 16, Y: 32, Z: 48})
	sim.SetVector(bno055.RegGyroData, bno055.Vector{X: -1, Y: 0, Z: 1})
	if after, err := ad.Trigger(context.Background()); err != nil || after != 0 {
		t.Fatalf("Trigger: %v %v", after, err)
	}
	s, err := ad.Collect(context.Background())
	if err != nil || len(s) != 2 || s.Failed() != 0 {
		t.Fatalf("Collect: %+v %v", s, err)
	}
	e := s[0].Payload.(types.VectorValue)
	if s[0].Kind != "euler" || e.X != 16 || e.Y != 32 || e.Z != 48 || e.LSB != 16 || e.Unit != "deg" {
		t.Fatalf("euler reading = %+v", s[0])
	}
}

func TestFailedFetchKeepsCache(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	ad := build(t, sim, map[string]any{"kinds": []any{"euler", "gravity"}})
	if err := ad.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	sim.SetVector(bno055.RegEulerData, bno055.Vector{X: 1, Y: 2, Z: 3})
	sim.SetVector(bno055.RegGravityData, bno055.Vector{X: 0, Y: 0, Z: 981})
	if _, err := ad.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}

	sim.SetVector(bno055.RegEulerData, bno055.Vector{X: 9, Y: 9, Z: 9})
	sim.SetVector(bno055.RegGravityData, bno055.Vector{X: 7, Y: 7, Z: 7})
	sim.FailWrites(func(w []byte) bool { return len(w) == 1 && w[0] == byte(bno055.RegGravityData) })

	s, _ := ad.Collect(context.Background())
	if s.Failed() != 1 || s[1].Err == nil || s[1].Payload != nil {
		t.Fatalf("sample = %+v", s)
	}
	g, ok := ad.Latest(bno055.KindGravity)
	if !ok || g.Z != 981 {
		t.Fatalf("gravity cache = %+v, want previous value", g)
	}
	if e, _ := ad.Latest(bno055.KindEuler); e.X != 9 {
		t.Fatalf("euler cache not updated: %+v", e)
	}
}

func TestControls(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{SelfTest: 0b0111})
	ad := build(t, sim, nil)

	if rep, _ := ad.Control("euler", consts.CtrlBringUp, nil); rep.(types.BringUpReport).Done {
		t.Fatalf("report before init = %+v", rep)
	}
	if _, err := ad.Control("euler", consts.CtrlGetLatest, nil); !errors.Is(err, halerr.ErrNotReady) {
		t.Fatalf("get_latest before data: %v", err)
	}

	if err := ad.Init(context.Background()); !errors.Is(err, bno055.ErrSelfTest) {
		t.Fatalf("Init: %v", err)
	}
	rep, err := ad.Control("euler", consts.CtrlBringUp, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := rep.(types.BringUpReport)
	if !r.Done || r.Result != "selftest_failure" || r.Error == "" {
		t.Fatalf("report = %+v", r)
	}
	if _, err := ad.Control("euler", "reboot", nil); err != halcore.ErrUnsupported {
		t.Fatalf("unknown method: %v", err)
	}
}

func TestReportShowsNonFusionStatus(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	ad := build(t, sim, map[string]any{"mode": "amg"})
	if err := ad.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	rep, _ := ad.Control("gyroscope", consts.CtrlBringUp, nil)
	if r := rep.(types.BringUpReport); r.SysStatus != bno055.SysStatusNoFusion {
		t.Fatalf("report = %+v", r)
	}
}

func TestInitHonoursCancelledContext(t *testing.T) {
	sim := bno055sim.New(bno055sim.Config{})
	ad := build(t, sim, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ad.Init(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Init: %v", err)
	}
	if len(sim.Log()) != 0 {
		t.Fatal("cancelled Init touched the bus")
	}
}
