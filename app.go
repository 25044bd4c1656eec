package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"imunode-go/bus"
	"imunode-go/drivers/bno055/bno055sim"
	"imunode-go/services/canopen"
	"imunode-go/services/config"
	"imunode-go/services/hal"
	"imunode-go/services/heartbeat"
	"imunode-go/types"
	"imunode-go/x/conv"
	"imunode-go/x/mathx"
	"imunode-go/x/metrics"
	"imunode-go/x/strx"
	"imunode-go/x/timex"
)

// sweepPeriod is one simulated heading revolution.
const sweepPeriod = 20 * time.Second

type app struct {
	file    string
	monitor bool
	debug   bool
	log     *logrus.Logger
}

func newApp(file string, monitor, debug bool) *app {
	return &app{file: file, monitor: monitor, debug: debug, log: logrus.StandardLogger()}
}

func (a *app) run(parent context.Context) error {
	opts, err := config.Load(viper.New(), a.file)
	if err != nil {
		return err
	}
	level := strx.Coalesce(opts.LogLevel, config.DefaultLogLevel)
	if a.debug {
		level = "debug"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	a.log.SetLevel(lvl)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(64)

	buses, closeBuses, err := a.openBuses(ctx, opts)
	if err != nil {
		return err
	}
	defer closeBuses()

	m := metrics.NewHAL()
	go hal.Run(ctx, b.NewConnection("hal"), buses, hal.Options{Log: a.log, Metrics: m})

	hb := &heartbeat.Service{Log: a.log, Interval: timex.Ms(opts.Heartbeat.IntervalMS)}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	if opts.CANopen.Enabled {
		if err := a.startCANopen(ctx, b, opts); err != nil {
			return err
		}
	}
	if opts.Metrics.Listen != "" {
		go a.serveMetrics(ctx, opts.Metrics.Listen, m.Handler())
	}
	if a.monitor {
		go a.printVectors(ctx, b.NewConnection("monitor"), os.Stdout)
	}

	// Config last: every consumer is subscribed, though retained delivery
	// would cover a late one too.
	cfgConn := b.NewConnection("config")
	cfgSvc := config.NewConfigService(opts, a.log)
	cfgSvc.Start(ctx, cfgConn)
	a.log.WithFields(logrus.Fields{
		"devices":   len(opts.HAL.Devices),
		"simulated": opts.Simulated(),
		"canopen":   opts.CANopen.Enabled,
	}).Info("imunode running")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case <-hup:
			if err := a.reload(cfgSvc, cfgConn); err != nil {
				a.log.WithError(err).Warn("reload failed, keeping current configuration")
			}
		}
	}
}

// reload re-reads the config file and republishes it. Devices, heartbeat
// interval and TPDO period follow; buses and the CANopen node id need a
// restart.
func (a *app) reload(svc *config.ConfigService, conn *bus.Connection) error {
	opts, err := config.Load(viper.New(), a.file)
	if err != nil {
		return err
	}
	if err := svc.Update(conn, opts); err != nil {
		return err
	}
	a.log.WithField("devices", len(opts.HAL.Devices)).Info("configuration reloaded")
	return nil
}

// openBuses returns simulated buses when every configured bus is "sim",
// hardware buses otherwise.
func (a *app) openBuses(ctx context.Context, opts config.Options) (hal.I2CBusFactory, func(), error) {
	if opts.Simulated() {
		cfg := hal.SimConfig{Buses: map[string]bno055sim.Config{}}
		for id := range opts.Buses {
			cfg.Buses[id] = bno055sim.Config{ColdBoot: true}
		}
		sim := hal.NewSim(cfg)
		go sim.Sweep(ctx, sweepPeriod)
		a.log.WithField("buses", sim.IDs()).Info("using simulated sensors")
		return sim, func() {}, nil
	}
	hw, err := hal.OpenBuses(opts.Buses)
	if err != nil {
		return nil, nil, fmt.Errorf("open buses: %w", err)
	}
	return hw, func() {
		if err := hw.Close(); err != nil {
			a.log.WithError(err).Warn("closing buses")
		}
	}, nil
}

func (a *app) startCANopen(ctx context.Context, b *bus.Bus, opts config.Options) error {
	var sink canopen.FrameSink = canopen.BusSink{Conn: b.NewConnection("can-tx")}
	if iface := opts.CANopen.Interface; iface != "" {
		sc, err := canopen.DialSocketCAN(ctx, iface)
		if err != nil {
			return fmt.Errorf("canopen: %s: %w", iface, err)
		}
		go func() {
			<-ctx.Done()
			_ = sc.Close()
		}()
		go func() { _ = sc.Receive(b.NewConnection("can-rx"), a.log) }()
		sink = sc
	}
	node, err := canopen.NewNode(b.NewConnection("canopen"), sink, canopen.Config{
		Layout: canopen.Layout{
			NodeID:      opts.CANopen.NodeID,
			EventTimer:  timex.Ms(opts.CANopen.TPDOPeriodMS),
			HeartbeatMS: uint16(mathx.Clamp(opts.Heartbeat.IntervalMS, 0, config.MaxTimerMS)),
		},
		Log: a.log,
	})
	if err != nil {
		return err
	}
	go node.Run(ctx)
	return nil
}

func (a *app) serveMetrics(ctx context.Context, addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	a.log.WithField("listen", addr).Info("metrics endpoint")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.WithError(err).Error("metrics server")
	}
}

// printVectors writes one line per value, e.g.
// "euler x=359.9375 y=0.0000 z=-1.5000 deg".
func (a *app) printVectors(ctx context.Context, conn *bus.Connection, w io.Writer) {
	sub := conn.Subscribe(bus.T("hal", "capability", bus.WildOne, bus.WildOne, "value"))
	defer conn.Unsubscribe(sub)
	var line []byte
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			v, ok := m.Payload.(types.VectorValue)
			if !ok {
				continue
			}
			line = appendVector(line[:0], fmt.Sprint(m.Topic.At(2)), v)
			_, _ = w.Write(line)
		}
	}
}

func appendVector(dst []byte, kind string, v types.VectorValue) []byte {
	dst = append(dst, kind...)
	for i, c := range [3]int16{v.X, v.Y, v.Z} {
		dst = append(dst, ' ', "xyz"[i], '=')
		dst = conv.AppendFixed(dst, int64(c), int64(v.LSB))
	}
	dst = append(dst, ' ')
	dst = append(dst, v.Unit...)
	return append(dst, '\n')
}

func writeConfig(stdout io.Writer, path string, toStdout, overwrite bool) error {
	o := config.Default()
	if toStdout {
		b, err := yaml.Marshal(o)
		if err != nil {
			return err
		}
		_, err = stdout.Write(b)
		return err
	}
	if err := config.Save(path, o, overwrite); err != nil {
		return err
	}
	logrus.WithField("file", path).Info("configuration written")
	return nil
}

// scanBuses opens every bus the host exposes and writes one line per bus
// with the BNO055 addresses that answered.
func scanBuses(w io.Writer) error {
	names, err := hal.AvailableBuses()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		_, err := fmt.Fprintln(w, "no i2c buses found")
		return err
	}
	byID := make(map[string]string, len(names))
	for _, n := range names {
		byID[n] = n
	}
	buses, err := hal.OpenBuses(byID)
	if err != nil {
		return err
	}
	defer buses.Close()
	for _, id := range buses.IDs() {
		found, err := buses.Detect(id)
		if err != nil {
			return err
		}
		line := append([]byte(id), ':')
		if len(found) == 0 {
			line = append(line, " no bno055"...)
		}
		for _, a := range found {
			line = append(line, " bno055@0x"...)
			line = conv.AppendHex8(line, byte(a))
		}
		if _, err := fmt.Fprintln(w, string(line)); err != nil {
			return err
		}
	}
	return nil
}
