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

package boltdb_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/boltdb"
	"github.com/dunedaq/dqm/check"
	"github.com/dunedaq/dqm/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func leaf(name string, sev check.Severity) *check.Leaf {
	return check.NewLeaf(name, func(*dqm.Dataset) (check.Result, error) {
		return check.Result{Severity: sev, Message: name}, nil
	})
}

func suites(c *clock) *check.Suite {
	pds := check.NewSuite("pds", check.OptSuiteClock(c.now))
	pds.MustRegister(leaf("adc", check.Bad))
	root := check.NewSuite("dqm", check.OptSuiteClock(c.now))
	root.MustRegister(leaf("frags", check.OK)).MustRegister(pds)
	return root
}

func TestResultStore(t *testing.T) {
	file := filepath.Join(test.TempDir(t), "results.db")
	c := &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	s := suites(c)
	_, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	_, err = s.Run(dqm.NewDataset())
	require.NoError(t, err)

	rs, err := boltdb.Open(file)
	test.ErrNil(t, err, "Open")
	test.ErrNil(t, rs.Save(s), "Save")
	// saving the same log again stores nothing new
	test.ErrNil(t, rs.Save(s), "Save again")

	paths, err := rs.Suites()
	require.NoError(t, err)
	assert.Equal(t, []string{"dqm", "dqm/pds"}, paths)

	hist, err := rs.History("dqm")
	require.NoError(t, err)
	assert.Equal(t, s.AllResults(), hist)
	hist, err = rs.History("dqm/pds")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, check.Result{Severity: check.Bad, Message: "adc"}, hist[0].Result)

	none, err := rs.History("nope")
	require.NoError(t, err)
	assert.Empty(t, none)
	test.ErrNil(t, rs.Close(), "Close")

	// a new job continues the history
	rs, err = boltdb.Open(file)
	require.NoError(t, err)
	defer rs.Close()
	fresh := suites(c)
	require.NoError(t, rs.Restore(fresh))
	assert.Len(t, fresh.AllResults(), 4)
	assert.Len(t, fresh.SubSuites()[0].AllResults(), 2)
	assert.Equal(t, check.Bad, fresh.Summary().Severity)

	cut := hist[1].Time
	n, err := rs.DeleteBefore("dqm/pds", cut)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	hist, err = rs.History("dqm/pds")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, cut, hist[0].Time)
	all, err := rs.History("dqm")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
