// services/hal/internal/service/service.go
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"imunode-go/bus"
	"imunode-go/errcode"
	"imunode-go/services/hal/internal/consts"
	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/halerr"
	"imunode-go/services/hal/internal/registry"
	"imunode-go/services/hal/internal/util"
	"imunode-go/services/hal/internal/worker"
	"imunode-go/types"
	"imunode-go/x/timex"
)

// Metrics receives per-device outcomes. All methods are called from the
// service goroutine.
type Metrics interface {
	BringUp(devID string, result errcode.Code)
	Fetch(devID, kind string, err error)
	Vector(devID, kind string, v types.VectorValue)
}

type nopMetrics struct{}

func (nopMetrics) BringUp(string, errcode.Code)             {}
func (nopMetrics) Fetch(string, string, error)              {}
func (nopMetrics) Vector(string, string, types.VectorValue) {}

// Options are optional collaborators.
type Options struct {
	Log     logrus.FieldLogger
	Metrics Metrics
	Worker  halcore.WorkerConfig
}

type devEntry struct {
	adaptor halcore.Adaptor
	caps    map[string]int // kind -> numeric capability id
	busID   string
	ready   bool
	period  time.Duration
}

type capKey struct {
	kind string
	id   int
}

type Service struct {
	conn    *bus.Connection
	buses   halcore.I2CBusFactory
	log     logrus.FieldLogger
	metrics Metrics
	wcfg    halcore.WorkerConfig

	workers map[string]*worker.MeasureWorker // busID -> worker
	results chan halcore.Result

	devices map[string]*devEntry

	capToDev  map[capKey]string // (kind,id) -> devID
	nextCapID map[string]int
	capLink   map[capKey]types.Link

	devNextDue map[string]time.Time

	timer *time.Timer
}

var (
	topicConfigHAL = bus.T(consts.TokConfig, consts.TokHAL)
	topicCtrl      = bus.T(consts.TokHAL, consts.TokCapability, "+", "+", consts.TokControl, "+")
	topicHALState  = bus.T(consts.TokHAL, consts.TokState)
)

func New(conn *bus.Connection, buses halcore.I2CBusFactory, opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Service{
		conn:       conn,
		buses:      buses,
		log:        opts.Log.WithField("service", "hal"),
		metrics:    opts.Metrics,
		wcfg:       opts.Worker,
		workers:    map[string]*worker.MeasureWorker{},
		results:    make(chan halcore.Result, 64),
		devices:    map[string]*devEntry{},
		capToDev:   map[capKey]string{},
		nextCapID:  map[string]int{},
		capLink:    map[capKey]types.Link{},
		devNextDue: map[string]time.Time{},
	}
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigHAL)
	ctrlSub := s.conn.Subscribe(topicCtrl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		util.DrainTimer(s.timer)
	}

	for {
		if next := s.earliestDevDue(); next.IsZero() {
			util.ResetTimer(s.timer, time.Hour)
		} else {
			util.ResetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.log.Debug("config subscription closed")
				return
			}
			cfg, ok := msg.Payload.(types.HALConfig)
			if !ok {
				s.publishState("error", "config_wrong_type", nil)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.log.WithError(err).Warn("apply config")
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg, ok := <-ctrlSub.Channel():
			if !ok {
				s.log.Debug("control subscription closed")
				return
			}
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kind == "" {
		s.replyErr(msg, halerr.ErrInvalidCapAddr.Error())
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, halerr.ErrUnknownCap.Error())
		return
	}
	ent := s.devices[devID]
	method, _ := msg.Topic[5].(string)

	switch method {
	case consts.CtrlReadNow:
		switch {
		case !ent.ready:
			s.replyErr(msg, halerr.ErrNotReady.Error())
		case s.submitMeasure(devID, true):
			s.bumpDevNext(devID, time.Now())
			s.conn.Reply(msg, types.ReadNowAck{OK: true}, false)
		default:
			s.replyErr(msg, halerr.ErrBusy.Error())
		}
	case consts.CtrlSetRate:
		p, ok := decodeSetRate(msg.Payload)
		if !ok || p <= 0 {
			s.replyErr(msg, halerr.ErrInvalidPeriod.Error())
			return
		}
		ent.period = util.ClampDuration(p,
			consts.MinPeriodMS*time.Millisecond, consts.MaxPeriodMS*time.Millisecond)
		if ent.ready {
			s.bumpDevNext(devID, time.Now())
		}
		s.conn.Reply(msg, types.SetRateAck{OK: true, Period: ent.period}, false)
	default:
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		switch {
		case err == nil:
			s.conn.Reply(msg, res, false)
		case err == halcore.ErrUnsupported:
			s.replyErr(msg, halerr.ErrUnsupported.Error())
		default:
			s.replyErr(msg, err.Error())
		}
	}
}

// decodeSetRate accepts types.SetRate or {"period_ms": n}.
func decodeSetRate(p any) (time.Duration, bool) {
	if sr, ok := p.(types.SetRate); ok {
		return sr.Period, true
	}
	var m struct {
		PeriodMS int `json:"period_ms"`
	}
	if p == nil || util.DecodeJSON(p, &m) != nil {
		return 0, false
	}
	return time.Duration(m.PeriodMS) * time.Millisecond, true
}

func (s *Service) applyConfig(ctx context.Context, cfg types.HALConfig) error {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		log := s.log.WithFields(logrus.Fields{"device": d.ID, "type": d.Type})

		b, ok := registry.Lookup(d.Type)
		if !ok {
			log.Warn("no builder for device type")
			continue
		}
		out, err := b.Build(registry.BuildInput{
			Ctx:        ctx,
			Buses:      s.buses,
			Log:        log,
			DeviceID:   d.ID,
			Type:       d.Type,
			ParamsJSON: d.Params,
			BusRefType: d.BusRef.Type,
			BusRefID:   d.BusRef.ID,
		})
		if err != nil {
			log.WithError(err).Warn("build failed")
			continue
		}

		w := s.workers[out.BusID]
		if w == nil {
			w = worker.New(s.wcfg, s.results)
			w.Start(ctx)
			s.workers[out.BusID] = w
		}

		ad := out.Adaptor
		entry := &devEntry{adaptor: ad, busID: out.BusID, caps: map[string]int{}, period: out.SampleEvery}
		for _, ci := range ad.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(ci.Kind, id, consts.TokInfo, ci.Info)
			s.setLink(ci.Kind, id, types.LinkDown, errcode.Initialising)
		}
		s.devices[d.ID] = entry

		// Bring-up runs on the bus worker like any other bus traffic.
		if !w.Submit(halcore.MeasureReq{ID: d.ID, Adaptor: ad, Op: halcore.OpInit}) {
			log.Warn("bus worker queue full; bring-up not scheduled")
		}
		log.WithField("bus", out.BusID).Info("device added; bring-up queued")
	}

	// Tidy-up devices not in config
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		for kind, id := range ent.caps {
			s.pubRet(kind, id, consts.TokInfo, nil)
			s.setLink(kind, id, types.LinkDown, "")
			delete(s.capToDev, capKey{kind: kind, id: id})
			delete(s.capLink, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
		delete(s.devNextDue, devID)
		s.log.WithField("device", devID).Info("device removed")
	}
	return nil
}

// ---- measurement helpers ----

func (s *Service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok || !ent.ready {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(halcore.MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *Service) bumpDevNext(devID string, from time.Time) {
	ent := s.devices[devID]
	if ent == nil || ent.period <= 0 {
		delete(s.devNextDue, devID)
		return
	}
	s.devNextDue[devID] = from.Add(ent.period)
}

func (s *Service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

// ---- results ----

func (s *Service) handleResult(r halcore.Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	if r.Op == halcore.OpInit {
		s.handleInit(r.ID, ent, r.Err)
		return
	}

	if r.Err != nil && len(r.Sample) == 0 {
		code := errcode.MapDriverErr(r.Err)
		for kind, id := range ent.caps {
			s.metrics.Fetch(r.ID, kind, r.Err)
			s.setLink(kind, id, types.LinkDegraded, code)
		}
		return
	}
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.metrics.Fetch(r.ID, rd.Kind, rd.Err)
		if rd.Err != nil {
			// Previously published value stands.
			s.setLink(rd.Kind, id, types.LinkDegraded, errcode.MapDriverErr(rd.Err))
			continue
		}
		if v, ok := rd.Payload.(types.VectorValue); ok {
			s.metrics.Vector(r.ID, rd.Kind, v)
		}
		s.conn.Publish(s.conn.NewMessage(capTopic(rd.Kind, id, consts.TokValue), rd.Payload, false))
		s.setLink(rd.Kind, id, types.LinkUp, "")
	}
}

func (s *Service) handleInit(devID string, ent *devEntry, err error) {
	code := errcode.MapDriverErr(err)
	s.metrics.BringUp(devID, code)
	log := s.log.WithField("device", devID)
	if err != nil {
		// Terminal for this instance: no re-attempt.
		log.WithError(err).WithField("code", code).Error("bring-up failed")
		for kind, id := range ent.caps {
			s.setLink(kind, id, types.LinkDown, code)
		}
		return
	}
	log.Info("bring-up complete")
	ent.ready = true
	for kind, id := range ent.caps {
		s.setLink(kind, id, types.LinkUp, "")
	}
	if ent.period > 0 {
		s.devNextDue[devID] = time.Now()
	}
}

// ---- bus helpers & utils ----

func (s *Service) publishState(level, status string, err error) {
	pl := types.HALState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		pl.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicHALState, pl, true))
}

// setLink publishes retained capability status when link or code changes.
func (s *Service) setLink(kind string, id int, link types.Link, code errcode.Code) {
	key := capKey{kind: kind, id: id}
	prev, seen := s.capLink[key]
	if seen && prev == link && link == types.LinkUp {
		return
	}
	s.capLink[key] = link
	s.pubRet(kind, id, consts.TokStatus, types.CapabilityStatus{Link: link, TS: timex.NowMs(), Error: string(code)})
}

func (s *Service) replyErr(req *bus.Message, code string) {
	if len(req.ReplyTo) == 0 {
		return
	}
	if code == "" {
		code = string(errcode.Error)
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: code}, false)
}

func capTopic(kind string, id int, suffix string) bus.Topic {
	return bus.T(consts.TokHAL, consts.TokCapability, kind, id, suffix)
}

func (s *Service) pubRet(kind string, id int, suffix string, p any) {
	s.conn.Publish(s.conn.NewMessage(capTopic(kind, id, suffix), p, true))
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	default:
		return 0, false
	}
}
