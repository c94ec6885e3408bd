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

package prom_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/prom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	assert.Equal(t, "dqm_fragments_processed", prom.MetricName("dqm", dqm.StatFragmentsProcessed))
	assert.Equal(t, "record_process", prom.MetricName("", "record-process"))
}

func TestStatter(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	s := prom.NewStatter(reg)
	s.Count(dqm.StatFragmentsProcessed, 5, 1)
	s.Count(dqm.StatFragmentsProcessed, 3, 1)
	s.Count(dqm.StatTasksFailed, 1, 1)
	s.Gauge("records.pending", 7, 1)
	s.Gauge("records.pending", 4, 1)
	s.Set("run.environment", "np04hd", 1)
	s.Timing(dqm.StatRecordProcess, 250*time.Millisecond, 1)
	s.Timing(dqm.StatRecordProcess, 2*time.Second, 1)

	expected := `
# HELP dqm_fragments_processed_total DQM statistic fragments.processed.
# TYPE dqm_fragments_processed_total counter
dqm_fragments_processed_total 8
# HELP dqm_records_pending DQM statistic records.pending.
# TYPE dqm_records_pending gauge
dqm_records_pending 4
# HELP dqm_run_environment DQM statistic run.environment.
# TYPE dqm_run_environment gauge
dqm_run_environment{value="np04hd"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"dqm_fragments_processed_total", "dqm_records_pending", "dqm_run_environment")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "dqm_record_process_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStatterSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := prom.NewStatter(reg)
	b := prom.NewStatter(reg)
	a.Count(dqm.StatRecordsProcessed, 1, 1)
	b.Count(dqm.StatRecordsProcessed, 2, 1)
	n, err := testutil.GatherAndCount(reg, "dqm_records_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, 3.0, mfs[0].GetMetric()[0].GetCounter().GetValue())
}
