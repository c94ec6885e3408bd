// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package prom implements the dqm Statter interface on Prometheus metrics.
package prom

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dqm"

// Statter creates one metric per statistic name on first use. Counts become
// counters named <ns>_<name>_total, timings histograms named
// <ns>_<name>_seconds, gauges and histograms keep their name, and sets
// become a gauge with a "value" label which is 1 for every value seen.
// Sampling rates and tags are ignored.
type Statter struct {
	namespace string
	reg       prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
	sets       map[string]*prometheus.GaugeVec
}

var _ dqm.Statter = &Statter{}

// StatterOption configures NewStatter.
type StatterOption func(s *Statter)

// OptStatterNamespace overrides DefaultNamespace.
func OptStatterNamespace(ns string) StatterOption {
	return func(s *Statter) {
		s.namespace = ns
	}
}

// NewStatter returns a Statter registering its metrics with reg.
func NewStatter(reg prometheus.Registerer, opts ...StatterOption) *Statter {
	s := &Statter{
		namespace:  DefaultNamespace,
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
		sets:       make(map[string]*prometheus.GaugeVec),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MetricName turns a dotted statistic name into a Prometheus metric name.
func MetricName(namespace, name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
	if namespace == "" {
		return clean
	}
	return namespace + "_" + clean
}

// register registers c, or returns the collector already registered under
// the same descriptor.
func (s *Statter) register(c prometheus.Collector) prometheus.Collector {
	if err := s.reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(errors.Wrap(err, "registering metric"))
	}
	return c
}

func help(name string) string {
	return "DQM statistic " + name + "."
}

// Count implements dqm.Statter.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	s.mu.Lock()
	c, ok := s.counters[name]
	if !ok {
		c = s.register(prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricName(s.namespace, name) + "_total",
			Help: help(name),
		})).(prometheus.Counter)
		s.counters[name] = c
	}
	s.mu.Unlock()
	if value >= 0 {
		c.Add(float64(value))
	}
}

// Gauge implements dqm.Statter.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	s.mu.Lock()
	g, ok := s.gauges[name]
	if !ok {
		g = s.register(prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricName(s.namespace, name),
			Help: help(name),
		})).(prometheus.Gauge)
		s.gauges[name] = g
	}
	s.mu.Unlock()
	g.Set(value)
}

func (s *Statter) histogram(key, metric, name string) prometheus.Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histograms[key]
	if !ok {
		h = s.register(prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metric,
			Help:    help(name),
			Buckets: prometheus.DefBuckets,
		})).(prometheus.Histogram)
		s.histograms[key] = h
	}
	return h
}

// Histogram implements dqm.Statter.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	s.histogram("h:"+name, MetricName(s.namespace, name), name).Observe(value)
}

// Timing implements dqm.Statter.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.histogram("t:"+name, MetricName(s.namespace, name)+"_seconds", name).Observe(value.Seconds())
}

// Set implements dqm.Statter.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {
	s.mu.Lock()
	v, ok := s.sets[name]
	if !ok {
		v = s.register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricName(s.namespace, name),
			Help: help(name),
		}, []string{"value"})).(*prometheus.GaugeVec)
		s.sets[name] = v
	}
	s.mu.Unlock()
	v.WithLabelValues(value).Set(1)
}

// Serve exposes the metrics of g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log dqm.Logger) error {
	if log == nil {
		log = dqm.NopLogger{}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving metrics on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return errors.Wrap(err, "serving metrics")
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdown), "shutting down metrics server")
	}
}
