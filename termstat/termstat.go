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

// Package termstat provides a stats implementation which periodically logs the
// statistics to the given writer. It is meant for watching a DQM run at the
// terminal when no Prometheus server scrapes the process.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/dunedaq/dqm"
)

// DefaultInterval between two status lines.
const DefaultInterval = 2 * time.Second

type stat struct {
	name  string
	kind  byte
	count int64
	value float64
	total time.Duration
	n     int64
}

func (s *stat) String() string {
	switch s.kind {
	case 'g':
		return fmt.Sprintf("%s: %g", s.name, s.value)
	case 't':
		return fmt.Sprintf("%s: %v", s.name, (s.total / time.Duration(s.n)).Round(time.Microsecond))
	}
	return fmt.Sprintf("%s: %d", s.name, s.count)
}

// Collector collects stats and prints them to the terminal. Counts are
// summed, gauges and histograms show the last value, and timings show the
// mean duration.
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	stats   []*stat
	changed bool
	out     io.Writer

	stop chan struct{}
	done chan struct{}
}

var _ dqm.Statter = &Collector{}

// NewCollector initializes and returns a new Collector which writes a status
// line to out every interval until Close is called. A zero interval means
// DefaultInterval, a negative one disables the ticker so lines are only
// written by Flush.
func NewCollector(out io.Writer, interval time.Duration) *Collector {
	ts := &Collector{
		indexes: make(map[string]int),
		out:     out,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		close(ts.done)
		return ts
	}
	go func() {
		defer close(ts.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				ts.Flush()
			case <-ts.stop:
				return
			}
		}
	}()
	return ts
}

// Close stops the ticker and writes a final line.
func (t *Collector) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
	t.Flush()
	return nil
}

// get returns the named stat, creating it. t.lock must be held.
func (t *Collector) get(name string, kind byte) *stat {
	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, &stat{name: name, kind: kind})
		t.indexes[name] = idx
	}
	return t.stats[idx]
}

func sampled(rate float64) bool {
	return rate >= 1 || rand.Float64() <= rate
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	s := t.get(name, 'c')
	if sampled(rate) {
		s.count += value
	}
}

// Gauge sets the named stat to value.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	t.get(name, 'g').value = value
}

// Histogram shows the last observed value like a gauge.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {
	t.Gauge(name, value, rate, tags...)
}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}

// Timing adds an observation to the mean duration of the named stat.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	s := t.get(name, 't')
	s.total += value
	s.n++
}

// Flush writes the current status line if anything changed since the last
// one.
func (t *Collector) Flush() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	parts := make([]string, len(t.stats))
	for i, s := range t.stats {
		parts[i] = s.String()
	}
	t.changed = false
	fmt.Fprint(t.out, "\r"+strings.Join(parts, " ")+" ")
}
