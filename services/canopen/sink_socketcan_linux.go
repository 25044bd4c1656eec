//go:build linux

package canopen

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"go.einride.tech/can/pkg/socketcan"

	"imunode-go/bus"
	"imunode-go/types"
)

// SocketCANSink transmits on a Linux SocketCAN interface.
type SocketCANSink struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// DialSocketCAN opens iface (e.g. "can0").
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANSink, error) {
	c, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, err
	}
	return &SocketCANSink{conn: c, tx: socketcan.NewTransmitter(c)}, nil
}

func (s *SocketCANSink) Send(ctx context.Context, f types.CANFrame) error {
	cf, err := ToCAN(f)
	if err != nil {
		return err
	}
	return s.tx.TransmitFrame(ctx, cf)
}

// Receive republishes received standard frames on can/rx/<cob-id> until
// the interface is closed.
func (s *SocketCANSink) Receive(conn *bus.Connection, log logrus.FieldLogger) error {
	rx := socketcan.NewReceiver(s.conn)
	for rx.Receive() {
		f, ok := FromCAN(rx.Frame())
		if !ok {
			continue
		}
		conn.Publish(conn.NewMessage(TopicRx(f.ID), f, false))
	}
	if err := rx.Err(); err != nil {
		log.WithError(err).Debug("socketcan receive ended")
		return err
	}
	return nil
}

func (s *SocketCANSink) Close() error { return s.conn.Close() }
