// Package heartbeat publishes a periodic liveness message on node/heartbeat.
package heartbeat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"imunode-go/bus"
	"imunode-go/types"
	"imunode-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("node", "heartbeat")
)

const defaultInterval = 2 * time.Second

type Service struct {
	Log logrus.FieldLogger
	// Interval applies until config/heartbeat says otherwise.
	Interval time.Duration
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("service", "heartbeat")

	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	start := time.Now()
	var seq uint32
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return
		case now := <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(TopicHeartbeat, types.Heartbeat{
				Seq:      seq,
				UptimeMS: now.Sub(start).Milliseconds(),
				TS:       timex.NowMs(),
			}, false))
			log.WithField("seq", seq).Debug("heartbeat")
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				log.Debug("config subscription closed")
				return
			}
			ms, ok := IntervalMS(msg.Payload)
			if !ok || ms <= 0 {
				log.WithField("payload", msg.Payload).Warn("ignoring heartbeat config")
				continue
			}
			interval = time.Duration(ms) * time.Millisecond
			tick.Reset(interval)
			log.WithField("interval", interval).Info("interval set")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

// IntervalMS reads interval_ms from a config/heartbeat payload: a
// types.HeartbeatConfig or a decoded JSON/YAML object.
func IntervalMS(p any) (int, bool) {
	switch v := p.(type) {
	case types.HeartbeatConfig:
		return v.IntervalMS, true
	case *types.HeartbeatConfig:
		if v == nil {
			return 0, false
		}
		return v.IntervalMS, true
	case map[string]any:
		switch n := v["interval_ms"].(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			return int(n), true
		}
	}
	return 0, false
}
