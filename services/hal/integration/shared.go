package integration

import (
	"context"
	"time"

	"imunode-go/bus"
)

func recvOrTimeout(ch <-chan *bus.Message, d time.Duration) (*bus.Message, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case m := <-ch:
		return m, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}

// recvUntil drains ch until pred accepts a message or d elapses.
func recvUntil(ch <-chan *bus.Message, d time.Duration, pred func(*bus.Message) bool) (*bus.Message, error) {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, context.DeadlineExceeded
		}
		m, err := recvOrTimeout(ch, left)
		if err != nil {
			return nil, err
		}
		if pred(m) {
			return m, nil
		}
	}
}
