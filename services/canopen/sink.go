package canopen

import (
	"context"
	"fmt"

	"go.einride.tech/can"

	"imunode-go/bus"
	"imunode-go/types"
)

// ToCAN converts and validates a bus frame.
func ToCAN(f types.CANFrame) (can.Frame, error) {
	cf := can.Frame{ID: f.ID, Length: f.Len, Data: can.Data(f.Data)}
	if err := cf.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("canopen: %w", err)
	}
	return cf, nil
}

// FromCAN is the inverse of ToCAN. Extended and remote frames are not
// CANopen traffic and are rejected.
func FromCAN(cf can.Frame) (types.CANFrame, bool) {
	if cf.IsExtended || cf.IsRemote {
		return types.CANFrame{}, false
	}
	return types.CANFrame{ID: cf.ID, Len: cf.Length, Data: [8]byte(cf.Data)}, true
}

// BusSink publishes frames on can/tx/<cob-id>. It is used where no CAN
// interface exists, and by tests.
type BusSink struct {
	Conn *bus.Connection
}

func (s BusSink) Send(_ context.Context, f types.CANFrame) error {
	if _, err := ToCAN(f); err != nil {
		return err
	}
	s.Conn.Publish(s.Conn.NewMessage(TopicTx(f.ID), f, false))
	return nil
}
