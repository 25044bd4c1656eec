// Package bno055adpt exposes a BNO055 to the HAL: bring-up on the bus worker,
// one vector capability per configured kind, and a cache of the latest
// successful fetch per kind.
package bno055adpt

import (
	"context"
	"sync"
	"time"

	"imunode-go/drivers/bno055"
	"imunode-go/services/hal/internal/consts"
	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/halerr"
	"imunode-go/types"
	"imunode-go/x/timex"
)

// Adaptor implements halcore.Adaptor for one BNO055.
type Adaptor struct {
	id    string
	busID string
	dev   *bno055.Device
	kinds []bno055.Kind
	now   func() int64

	mu      sync.Mutex
	done    bool
	initErr error
	sys     [2]uint8 // SYS_STATUS, SYS_ERR after bring-up
	latest  map[bno055.Kind]types.VectorValue
}

// New wraps dev. kinds are fetched in order on every Collect.
func New(id, busID string, dev *bno055.Device, kinds []bno055.Kind) *Adaptor {
	return &Adaptor{
		id:     id,
		busID:  busID,
		dev:    dev,
		kinds:  kinds,
		now:    timex.NowMs,
		latest: make(map[bno055.Kind]types.VectorValue, len(kinds)),
	}
}

func (a *Adaptor) ID() string { return a.id }

func (a *Adaptor) Capabilities() []halcore.CapInfo {
	out := make([]halcore.CapInfo, 0, len(a.kinds))
	for _, k := range a.kinds {
		out = append(out, halcore.CapInfo{
			Kind: k.String(),
			Info: types.Info{
				SchemaVersion: 1,
				Driver:        consts.TypeBNO055,
				Detail: types.VectorInfo{
					Sensor: consts.TypeBNO055,
					Bus:    a.busID,
					Addr:   a.dev.Address(),
					Mode:   a.dev.Mode().String(),
					Kind:   k.String(),
					LSB:    k.LSB(),
					Unit:   k.Unit(),
				},
			},
		})
	}
	return out
}

// Init runs the device bring-up and snapshots the system status. The context
// is only checked on entry.
func (a *Adaptor) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.dev.BringUp()
	var sys [2]uint8
	if err == nil {
		// A failed status read leaves zeros; the device is up regardless.
		sys[0], sys[1], _ = a.dev.SystemStatus()
	}
	a.mu.Lock()
	a.done, a.initErr, a.sys = true, err, sys
	a.mu.Unlock()
	return err
}

// Trigger has nothing to start: the fusion engine updates the data registers
// continuously.
func (a *Adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	if !a.dev.Ready() {
		return 0, bno055.ErrNotReady
	}
	return 0, nil
}

// Collect fetches every configured kind once. A failed kind yields a reading
// with Err and keeps its cached vector; there is no retry within a cycle.
func (a *Adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	s := make(halcore.Sample, 0, len(a.kinds))
	for _, k := range a.kinds {
		v, err := a.dev.FetchKind(k)
		ts := a.now()
		if err != nil {
			s = append(s, halcore.Reading{Kind: k.String(), TsMs: ts, Err: err})
			continue
		}
		vv := types.VectorValue{X: v.X, Y: v.Y, Z: v.Z, LSB: k.LSB(), Unit: k.Unit(), TS: ts}
		a.mu.Lock()
		a.latest[k] = vv
		a.mu.Unlock()
		s = append(s, halcore.Reading{Kind: k.String(), Payload: vv, TsMs: ts})
	}
	return s, nil
}

// Latest returns the cached vector for k.
func (a *Adaptor) Latest(k bno055.Kind) (types.VectorValue, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.latest[k]
	return v, ok
}

func (a *Adaptor) Control(kind, method string, payload any) (any, error) {
	switch method {
	case consts.CtrlGetLatest:
		k, ok := bno055.ParseKind(kind)
		if !ok {
			return nil, halerr.ErrUnknownCap
		}
		v, ok := a.Latest(k)
		if !ok {
			return nil, halerr.ErrNotReady
		}
		return v, nil
	case consts.CtrlBringUp:
		a.mu.Lock()
		defer a.mu.Unlock()
		rep := types.BringUpReport{
			Done:      a.done,
			Result:    bno055.Classify(a.initErr).String(),
			SysStatus: a.sys[0],
			SysErr:    a.sys[1],
		}
		if !a.done {
			rep.Result = ""
		}
		if a.initErr != nil {
			rep.Error = a.initErr.Error()
		}
		return rep, nil
	default:
		return nil, halcore.ErrUnsupported
	}
}
