// Package metrics exports HAL device outcomes to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imunode-go/errcode"
	"imunode-go/types"
)

const namespace = "imunode"

// HAL implements the HAL service's Metrics hook.
type HAL struct {
	reg *prometheus.Registry

	bringUp *prometheus.CounterVec
	fetches *prometheus.CounterVec
	axis    *prometheus.GaugeVec
	lastTS  *prometheus.GaugeVec
}

func NewHAL() *HAL {
	m := &HAL{
		reg: prometheus.NewRegistry(),
		bringUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bringup_total",
			Help:      "Device bring-up outcomes.",
		}, []string{"device", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Vector fetches by outcome.",
		}, []string{"device", "kind", "result"}),
		axis: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_raw",
			Help:      "Last raw vector component in register counts.",
		}, []string{"device", "kind", "axis"}),
		lastTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_timestamp_ms",
			Help:      "Unix ms of the last good vector.",
		}, []string{"device", "kind"}),
	}
	m.reg.MustRegister(m.bringUp, m.fetches, m.axis, m.lastTS)
	m.reg.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *HAL) BringUp(dev string, result errcode.Code) {
	m.bringUp.With(prometheus.Labels{"device": dev, "result": string(result)}).Inc()
}

func (m *HAL) Fetch(dev, kind string, err error) {
	res := string(errcode.OK)
	if err != nil {
		res = string(errcode.MapDriverErr(err))
	}
	m.fetches.With(prometheus.Labels{"device": dev, "kind": kind, "result": res}).Inc()
}

func (m *HAL) Vector(dev, kind string, v types.VectorValue) {
	for axis, val := range map[string]int16{"x": v.X, "y": v.Y, "z": v.Z} {
		m.axis.With(prometheus.Labels{"device": dev, "kind": kind, "axis": axis}).Set(float64(val))
	}
	m.lastTS.With(prometheus.Labels{"device": dev, "kind": kind}).Set(float64(v.TS))
}

// Registry is exposed for tests and extra collectors.
func (m *HAL) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *HAL) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
