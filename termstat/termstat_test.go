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

package termstat_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/termstat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorFlush(t *testing.T) {
	var buf bytes.Buffer
	c := termstat.NewCollector(&buf, -1)
	c.Flush()
	assert.Equal(t, "", buf.String())

	c.Count(dqm.StatFragmentsProcessed, 4, 1)
	c.Count(dqm.StatFragmentsProcessed, 2, 1)
	c.Gauge("records.pending", 3, 1)
	c.Timing(dqm.StatRecordProcess, 10*time.Millisecond, 1)
	c.Timing(dqm.StatRecordProcess, 30*time.Millisecond, 1)
	c.Set("ignored", "x", 1)
	c.Flush()
	assert.Equal(t, "\rfragments.processed: 6 records.pending: 3 record.process: 20ms ", buf.String())

	buf.Reset()
	c.Flush()
	assert.Equal(t, "", buf.String())
	require.NoError(t, c.Close())
}

func TestCollectorClose(t *testing.T) {
	var buf bytes.Buffer
	c := termstat.NewCollector(&buf, time.Hour)
	c.Count(dqm.StatTasksFailed, 1, 1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, "\rtasks.failed: 1 ", buf.String())
}
