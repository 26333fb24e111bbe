package main

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

type metrics struct {
	reg  gometrics.Registry
	open atomic.Int64
}

func newMetrics(reg gometrics.Registry) *metrics {
	m := &metrics{reg: reg}
	reg.GetOrRegister("relay.channels.open", gometrics.NewFunctionalGauge(m.open.Load))
	return m
}

func (m *metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *metrics) time(name string, d time.Duration) {
	gometrics.GetOrRegisterTimer(name, m.reg).Update(d)
}

func (m *metrics) sessionOpened(r role) {
	m.incr("relay."+r.String()+".opened", 1)
}

func (m *metrics) sessionClosed(r role, lifetime time.Duration) {
	m.incr("relay."+r.String()+".closed", 1)
	m.time("relay."+r.String()+".session", lifetime)
}

func (m *metrics) forwarded(r role) {
	m.incr("relay."+r.String()+".forwarded", 1)
}

func (m *metrics) injected(r role) {
	m.incr("relay."+r.String()+".injected", 1)
}

func (m *metrics) superseded(n int64) {
	m.incr("relay.messages.superseded", n)
}

func (m *metrics) channelCreated() {
	m.incr("relay.channels.created", 1)
	m.open.Add(1)
}

func (m *metrics) channelClosed(lifetime time.Duration) {
	m.incr("relay.channels.closed", 1)
	m.time("relay.channels.lifetime", lifetime)
	m.open.Add(-1)
}

// report writes the registry as JSON to w every tick until ctx is done,
// and once more on the way out.
func (m *metrics) report(ctx context.Context, clk clock.Clock, tick time.Duration, w io.Writer) error {
	t := clk.Ticker(tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			gometrics.WriteJSONOnce(m.reg, w)
		case <-ctx.Done():
			gometrics.WriteJSONOnce(m.reg, w)
			return nil
		}
	}
}

// collector exposes the registry to Prometheus. Metric names are the
// registry names with dots replaced by underscores.
func (m *metrics) collector() prometheus.Collector {
	return registryCollector{reg: m.reg}
}

type registryCollector struct {
	reg gometrics.Registry
}

var promName = strings.NewReplacer(".", "_", "-", "_")

var summaryQuantiles = []float64{0.5, 0.9, 0.99}

// Describe sends nothing, which makes this an unchecked collector: the
// set of names grows as roles and channels come and go.
func (registryCollector) Describe(chan<- *prometheus.Desc) {}

func (rc registryCollector) Collect(ch chan<- prometheus.Metric) {
	rc.reg.Each(func(name string, i interface{}) {
		desc := prometheus.NewDesc(promName.Replace(name), name, nil, nil)
		switch v := i.(type) {
		case gometrics.Counter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v.Count()))
		case gometrics.Gauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v.Value()))
		case gometrics.Timer:
			s := v.Snapshot()
			ps := s.Percentiles(summaryQuantiles)
			quantiles := make(map[float64]float64, len(ps))
			for j, q := range summaryQuantiles {
				quantiles[q] = time.Duration(ps[j]).Seconds()
			}
			ch <- prometheus.MustNewConstSummary(desc, uint64(s.Count()),
				time.Duration(s.Sum()).Seconds(), quantiles)
		}
	})
}
