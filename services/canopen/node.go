package canopen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"imunode-go/bus"
	"imunode-go/drivers/bno055"
	"imunode-go/services/config"
	"imunode-go/services/heartbeat"
	"imunode-go/types"
	"imunode-go/x/conv"
)

// NMT state reported in heartbeat frames.
const nmtOperational = 0x05

// FrameSink transmits CAN frames.
type FrameSink interface {
	Send(ctx context.Context, f types.CANFrame) error
}

var topicValues = bus.T("hal", "capability", bus.WildOne, bus.WildOne, "value")

// TopicRx is where received frames for cobID are published.
func TopicRx(cobID uint32) bus.Topic { return bus.T("can", "rx", int(cobID)) }

// TopicTx is where BusSink publishes frames for cobID.
func TopicTx(cobID uint32) bus.Topic { return bus.T("can", "tx", int(cobID)) }

type Config struct {
	Layout
	Log logrus.FieldLogger
}

// Node maps HAL vectors of capability id 0 onto its dictionary and
// transmits them.
type Node struct {
	id    uint8
	conn  *bus.Connection
	sink  FrameSink
	log   logrus.FieldLogger
	slots *Slots
	dict  *Dictionary

	mu    sync.Mutex
	tpdos []TPDO
}

func NewNode(conn *bus.Connection, sink FrameSink, cfg Config) (*Node, error) {
	if cfg.NodeID == 0 {
		cfg.NodeID = DefaultNodeID
	}
	if cfg.NodeID > 127 {
		return nil, fmt.Errorf("canopen: node id %d out of range", cfg.NodeID)
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	n := &Node{
		id:    cfg.NodeID,
		conn:  conn,
		sink:  sink,
		log:   cfg.Log.WithFields(logrus.Fields{"service": "canopen", "node": cfg.NodeID}),
		slots: &Slots{},
	}
	var err error
	if n.dict, err = NewIMUDictionary(cfg.Layout, n.slots); err != nil {
		return nil, err
	}
	if n.tpdos, err = n.dict.TPDOs(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) Dictionary() *Dictionary { return n.dict }

func (n *Node) TPDOs() []TPDO {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]TPDO(nil), n.tpdos...)
}

// Update stores a HAL vector. Only capability id 0 of a mapped kind counts.
func (n *Node) Update(kind string, id int, v types.VectorValue) bool {
	if id != 0 {
		return false
	}
	k, ok := bno055.ParseKind(kind)
	if !ok {
		return false
	}
	return n.slots.Update(k, v)
}

func (n *Node) send(ctx context.Context, f types.CANFrame) {
	if err := n.sink.Send(ctx, f); err != nil {
		n.log.WithError(err).WithField("cob_id", fmt.Sprintf("0x%03X", f.ID)).Warn("send failed")
	}
}

// applyConfig takes the TPDO period from config/canopen. It reports whether
// the event timers changed. The node id is fixed for the life of the node.
func (n *Node) applyConfig(c types.CANopenConfig) bool {
	if c.NodeID != 0 && c.NodeID != n.id {
		n.log.WithField("configured", c.NodeID).Warn("node id change needs a restart")
	}
	if c.TPDOPeriodMS <= 0 {
		return false
	}
	ms := u16ms(int64(c.TPDOPeriodMS))
	changed := false
	for i := range n.slots.EventTimerMS {
		if n.slots.EventTimerMS[i].Get() != ms {
			n.slots.EventTimerMS[i].Set(ms)
			changed = true
		}
	}
	if !changed {
		return false
	}
	tpdos, err := n.dict.TPDOs()
	if err != nil {
		n.log.WithError(err).Error("tpdo layout")
		return false
	}
	n.mu.Lock()
	n.tpdos = tpdos
	n.mu.Unlock()
	n.log.WithField("event_timer_ms", ms).Info("tpdo period set")
	return true
}

// applyHeartbeat mirrors the heartbeat interval into 0x1017.
func (n *Node) applyHeartbeat(p any) {
	ms, ok := heartbeat.IntervalMS(p)
	if !ok || ms <= 0 {
		return
	}
	n.slots.HeartbeatMS.Set(u16ms(int64(ms)))
}

func canopenConfig(p any) (types.CANopenConfig, bool) {
	switch c := p.(type) {
	case types.CANopenConfig:
		return c, true
	case *types.CANopenConfig:
		if c != nil {
			return *c, true
		}
	}
	return types.CANopenConfig{}, false
}

// schedule tracks the next due time of each TPDO on one ticker running at
// the shortest event timer.
type schedule struct {
	tpdos  []TPDO
	due    []time.Time
	ticker *time.Ticker
	c      <-chan time.Time
}

func newSchedule(tpdos []TPDO, start time.Time) *schedule {
	s := &schedule{tpdos: tpdos, due: make([]time.Time, len(tpdos))}
	var period time.Duration
	for i, p := range tpdos {
		if p.EventTimer > 0 && (period == 0 || p.EventTimer < period) {
			period = p.EventTimer
		}
		s.due[i] = start.Add(p.EventTimer)
	}
	if period > 0 {
		s.ticker = time.NewTicker(period)
		s.c = s.ticker.C
	}
	return s
}

func (s *schedule) stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

// fire returns the TPDOs due at now and moves their due times on.
func (s *schedule) fire(now time.Time) []TPDO {
	var out []TPDO
	for i, p := range s.tpdos {
		if p.EventTimer <= 0 || now.Before(s.due[i]) {
			continue
		}
		s.due[i] = now.Add(p.EventTimer)
		out = append(out, p)
	}
	return out
}

// Run blocks until ctx ends or the connection is closed.
func (n *Node) Run(ctx context.Context) {
	valSub := n.conn.Subscribe(topicValues)
	hbSub := n.conn.Subscribe(heartbeat.TopicHeartbeat)
	sdoSub := n.conn.Subscribe(TopicRx(COBSDORx + uint32(n.id)))
	cfgSub := n.conn.Subscribe(config.TopicCANopen)
	hbCfgSub := n.conn.Subscribe(config.TopicHeartbeat)
	for _, sub := range []*bus.Subscription{valSub, hbSub, sdoSub, cfgSub, hbCfgSub} {
		defer n.conn.Unsubscribe(sub)
	}

	sched := newSchedule(n.TPDOs(), time.Now())
	defer func() { sched.stop() }()

	n.log.WithField("tpdos", len(sched.tpdos)).Info("node operational")
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-valSub.Channel():
			if !ok {
				return
			}
			kind, _ := msg.Topic.At(2).(string)
			id, _ := msg.Topic.At(3).(int)
			if v, ok := msg.Payload.(types.VectorValue); ok {
				n.Update(kind, id, v)
			}

		case _, ok := <-hbSub.Channel():
			if !ok {
				return
			}
			f := types.CANFrame{ID: COBHeartbeat + uint32(n.id), Len: 1}
			f.Data[0] = nmtOperational
			n.send(ctx, f)

		case msg, ok := <-sdoSub.Channel():
			if !ok {
				return
			}
			req, ok := msg.Payload.(types.CANFrame)
			if !ok || req.Len != 8 {
				continue
			}
			if resp, ok := n.dict.HandleSDO(req.Data); ok {
				if code, aborted := abortCode(resp); aborted {
					var hx [8]byte
					n.log.WithField("abort", "0x"+string(conv.U32Hex(hx[:], code))).Debug("sdo abort")
				}
				n.send(ctx, types.CANFrame{ID: COBSDOTx + uint32(n.id), Len: 8, Data: resp})
			}

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			c, ok := canopenConfig(msg.Payload)
			if ok && n.applyConfig(c) {
				sched.stop()
				sched = newSchedule(n.TPDOs(), time.Now())
			}

		case msg, ok := <-hbCfgSub.Channel():
			if !ok {
				return
			}
			n.applyHeartbeat(msg.Payload)

		case now := <-sched.c:
			for _, p := range sched.fire(now) {
				f, err := p.Frame()
				if err != nil {
					n.log.WithError(err).Error("tpdo")
					continue
				}
				n.send(ctx, f)
			}
		}
	}
}
