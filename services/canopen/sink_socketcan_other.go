//go:build !linux

package canopen

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"imunode-go/bus"
	"imunode-go/types"
)

var ErrNoSocketCAN = errors.New("canopen: socketcan is only available on linux")

type SocketCANSink struct{}

func DialSocketCAN(context.Context, string) (*SocketCANSink, error) { return nil, ErrNoSocketCAN }

func (*SocketCANSink) Send(context.Context, types.CANFrame) error        { return ErrNoSocketCAN }
func (*SocketCANSink) Receive(*bus.Connection, logrus.FieldLogger) error { return ErrNoSocketCAN }
func (*SocketCANSink) Close() error                                      { return nil }
