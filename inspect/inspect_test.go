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

package inspect

import (
	"bytes"
	"testing"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/leveldb"
	"github.com/dunedaq/dqm/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func store(t *testing.T) string {
	t.Helper()
	acc := dqm.NewAccumulator()
	for trig := uint64(1); trig <= 2; trig++ {
		ri := dqm.RecordIndex{Run: 7, Trigger: trig}
		acc.Merge(dqm.RowSets{
			"frh": {
				dqm.NewRecordRow(ri, dqm.ColSrcID).Set(dqm.ColSrcID, uint32(100)).Set("data_size_bytes", 64),
				dqm.NewRecordRow(ri, dqm.ColSrcID).Set(dqm.ColSrcID, uint32(101)),
			},
		})
	}
	ds, err := dqm.Finalize(acc, nil)
	require.NoError(t, err)
	dir := test.TempDir(t)
	s, err := leveldb.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ds))
	require.NoError(t, s.Close())
	return dir
}

func TestSummary(t *testing.T) {
	var out bytes.Buffer
	m := NewMain(&out, &bytes.Buffer{})
	require.NoError(t, m.Run(store(t)))
	assert.Regexp(t, `TABLE\s+ROWS\s+RECORDS\s+INDEX\s+COLUMNS`, out.String())
	assert.Regexp(t, `frh\s+4\s+2\s+run,trigger,sequence,src_id\s+5\n`, out.String())
}

func TestRecord(t *testing.T) {
	dir := store(t)
	var out bytes.Buffer
	m := NewMain(&out, &bytes.Buffer{})
	m.Table = "frh"
	m.RunNumber = 7
	m.Trigger = 2
	require.NoError(t, m.Run(dir))
	assert.Contains(t, out.String(), "frh run 7 trigger 2 sequence 0: 2 rows")
	assert.Regexp(t, `\n7\s+2\s+0\s+100\s+64\n7\s+2\s+0\s+101\s+-\n`, out.String())

	m.Trigger = 3
	err := m.Run(dir)
	assert.True(t, dqm.IsNotFound(err))
	m.RunNumber, m.Trigger = 8, 2
	assert.True(t, dqm.IsNotFound(m.Run(dir)))
	m.Table = "nope"
	assert.Error(t, m.Run(dir))
	assert.Error(t, m.Run())
}
