// Package config loads the node configuration and publishes its sections as
// retained messages under config/<section>.
package config

import (
	"context"

	"github.com/sirupsen/logrus"

	"imunode-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Section topics consumed by the other services.
var (
	TopicHAL       = bus.T(configPrefix, "hal")
	TopicHeartbeat = bus.T(configPrefix, "heartbeat")
	TopicCANopen   = bus.T(configPrefix, "canopen")
)

type ConfigService struct {
	Name string
	opts Options
	log  logrus.FieldLogger
}

func NewConfigService(opts Options, log logrus.FieldLogger) *ConfigService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ConfigService{Name: serviceName, opts: opts, log: log.WithField("service", serviceName)}
}

// publishConfig publishes each section retained so late subscribers still
// receive it.
func (s *ConfigService) publishConfig(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(TopicHAL, s.opts.HAL, true))
	conn.Publish(conn.NewMessage(TopicHeartbeat, s.opts.Heartbeat, true))
	conn.Publish(conn.NewMessage(TopicCANopen, s.opts.CANopen, true))
	s.log.WithField("devices", len(s.opts.HAL.Devices)).Info("configuration published")
}

// Update replaces the configuration and republishes it.
func (s *ConfigService) Update(conn *bus.Connection, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	s.opts = opts
	s.publishConfig(conn)
	return nil
}

// Start publishes the configuration. It does not block.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	if ctx.Err() != nil {
		return
	}
	s.publishConfig(conn)
}
