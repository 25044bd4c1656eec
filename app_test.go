package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"imunode-go/bus"
	"imunode-go/services/config"
	"imunode-go/types"
)

func TestAppendVector(t *testing.T) {
	cases := []struct {
		kind string
		v    types.VectorValue
		want string
	}{
		{"euler", types.VectorValue{X: 5759, Y: -24, Z: 0, LSB: 16, Unit: "deg"}, "euler x=359.9375 y=-1.5000 z=0.0000 deg\n"},
		{"gravity", types.VectorValue{Z: 981, LSB: 100, Unit: "m/s2"}, "gravity x=0.00 y=0.00 z=9.81 m/s2\n"},
	}
	for _, c := range cases {
		if got := string(appendVector(nil, c.kind, c.v)); got != c.want {
			t.Errorf("appendVector(%s) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestWriteConfigPrint(t *testing.T) {
	var out bytes.Buffer
	if err := writeConfig(&out, "", true, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "canopen:") || !strings.Contains(out.String(), "node_id: 23") {
		t.Fatalf("unexpected yaml:\n%s", out.String())
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imunode", "config.yaml")
	if err := writeConfig(nil, path, false, false); err != nil {
		t.Fatal(err)
	}
	if err := writeConfig(nil, path, false, false); err == nil {
		t.Fatal("second write without overwrite succeeded")
	}
	o, err := config.Load(viper.New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !o.Simulated() || len(o.HAL.Devices) != len(config.Default().HAL.Devices) {
		t.Fatalf("loaded %+v", o)
	}
}

func TestReloadRepublishesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	opts := config.Default()
	if err := config.Save(path, opts, false); err != nil {
		t.Fatal(err)
	}
	a := newApp(path, false, false)
	a.log = logrus.New()

	conn := bus.NewBus(16).NewConnection("test")
	svc := config.NewConfigService(opts, a.log)

	opts.Heartbeat.IntervalMS = 2500
	if err := config.Save(path, opts, true); err != nil {
		t.Fatal(err)
	}
	if err := a.reload(svc, conn); err != nil {
		t.Fatal(err)
	}
	sub := conn.Subscribe(config.TopicHeartbeat)
	select {
	case m := <-sub.Channel():
		if hb, ok := m.Payload.(types.HeartbeatConfig); !ok || hb.IntervalMS != 2500 {
			t.Fatalf("config/heartbeat = %#v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained config/heartbeat")
	}

	opts.Heartbeat.IntervalMS = config.MaxTimerMS + 1
	if err := config.Save(path, opts, true); err != nil {
		t.Fatal(err)
	}
	if err := a.reload(svc, conn); err == nil {
		t.Fatal("reload accepted an invalid file")
	}
}

func TestPrintVectorsEndsWhenConnectionCloses(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("monitor")
	pub := b.NewConnection("hal")
	var out bytes.Buffer
	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		newApp("", true, false).printVectors(context.Background(), conn, &out)
	}()
	time.Sleep(20 * time.Millisecond)
	pub.Publish(pub.NewMessage(bus.T("hal", "capability", "gravity", 0, "value"),
		types.VectorValue{Z: 981, LSB: 100, Unit: "m/s2"}, false))
	time.Sleep(20 * time.Millisecond)
	conn.Disconnect()

	select {
	case r := <-done:
		if r != nil {
			t.Fatalf("printVectors panicked: %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("printVectors still running after Disconnect")
	}
	if got := out.String(); got != "gravity x=0.00 y=0.00 z=9.81 m/s2\n" {
		t.Fatalf("output = %q", got)
	}
}
