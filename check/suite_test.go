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

package check_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func fixed(name string, sev check.Severity, msg string) *check.Leaf {
	return check.NewLeaf(name, func(*dqm.Dataset) (check.Result, error) {
		return check.Result{Severity: sev, Message: msg}, nil
	})
}

func TestSuiteRollup(t *testing.T) {
	s := check.NewSuite("tpc", check.OptSuiteClock(newClock().now))
	s.MustRegister(fixed("a", check.OK, "fine")).
		MustRegister(fixed("b", check.Warning, "hmm")).
		MustRegister(fixed("c", check.OK, "fine"))

	res, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	assert.Equal(t, check.Result{Severity: check.Warning, Message: "1/3 results have warning."}, res)
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
}

func TestSuiteFailures(t *testing.T) {
	s := check.NewSuite("tpc", check.OptSuiteClock(newClock().now))
	s.MustRegister(fixed("ok", check.OK, "fine"))
	s.MustRegister(check.NewLeaf("panics", func(*dqm.Dataset) (check.Result, error) {
		var m map[string]int
		m["boom"]++
		return check.Okay(), nil
	}))
	s.MustRegister(check.NewLeaf("errors", func(*dqm.Dataset) (check.Result, error) {
		return check.Result{}, errors.New("no frh table")
	}))
	s.MustRegister(fixed("invalid", check.Invalid, "not enough data"))

	res, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	assert.Equal(t, check.Bad, res.Severity)
	assert.Equal(t, "3/4 results are bad or invalid.", res.Message)

	recs := s.AllResults()
	require.Len(t, recs, 4)
	assert.Equal(t, "ok", recs[0].Name)
	assert.Equal(t, check.Bad, recs[1].Severity)
	assert.True(t, strings.HasPrefix(recs[1].Message, "check raised exception: assignment to entry in nil map"), recs[1].Message)
	assert.Equal(t, "check raised exception: no frh table", recs[2].Message)
	assert.Equal(t, recs[0].Pass, recs[3].Pass)
}

func TestSuiteEmpty(t *testing.T) {
	s := check.NewSuite("empty")
	res, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	assert.Equal(t, check.Invalid, res.Severity)
	assert.False(t, res.Passed())
}

func TestSuiteHistory(t *testing.T) {
	sev := check.OK
	s := check.NewSuite("h", check.OptSuiteClock(newClock().now))
	s.MustRegister(check.NewLeaf("flaky", func(*dqm.Dataset) (check.Result, error) {
		return check.Result{Severity: sev}, nil
	}))
	s.MustRegister(fixed("steady", check.OK, ""))

	_, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	sev = check.Bad
	res, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)
	assert.Equal(t, "1/4 results are bad or invalid.", res.Message)

	all := s.AllResults()
	require.Len(t, all, 4)
	assert.NotEqual(t, all[0].Pass, all[2].Pass)

	latest := s.LatestResults()
	require.Len(t, latest, 2)
	assert.Equal(t, "flaky", latest[0].Name)
	assert.Equal(t, check.Bad, latest[0].Severity)
	assert.Equal(t, all[2].Time, latest[0].Time)

	s.ClearOldResults()
	assert.Len(t, s.AllResults(), 2)
	s.ClearResults()
	assert.Empty(t, s.AllResults())
	assert.Equal(t, check.Invalid, s.Summary().Severity)
}

func TestLatestTieBreak(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := check.NewSuite("ties")
	s.Restore(
		check.RunRecord{Name: "x", Result: check.Result{Severity: check.OK}, Time: at},
		check.RunRecord{Name: "x", Result: check.Result{Severity: check.Bad}, Time: at},
		check.RunRecord{Name: "x", Result: check.Result{Severity: check.Warning}, Time: at.Add(-time.Hour)},
	)
	latest := s.LatestResults()
	require.Len(t, latest, 1)
	assert.Equal(t, check.Bad, latest[0].Severity)
}

func TestRegister(t *testing.T) {
	a := check.NewSuite("a")
	b := check.NewSuite("b")
	leaf := fixed("x", check.OK, "")

	require.NoError(t, a.Register(leaf))
	assert.Equal(t, check.ErrDuplicateTest, errors.Cause(a.Register(fixed("x", check.OK, ""))))
	assert.NoError(t, a.Register(leaf, "x_again"))
	assert.Equal(t, check.ErrAlreadyRegistered, errors.Cause(b.Register(leaf)))

	require.NoError(t, a.Register(b))
	assert.Equal(t, check.ErrCycle, errors.Cause(b.Register(a)))
	assert.Equal(t, check.ErrCycle, errors.Cause(a.Register(a, "self")))
	assert.Equal(t, []*check.Suite{b}, a.SubSuites())

	assert.Panics(t, func() { a.MustRegister(leaf, "x") })
}

func TestNestedSuites(t *testing.T) {
	clock := newClock()
	top := check.NewSuite("standard", check.OptSuiteClock(clock.now))
	tpc := check.NewSuite("tpc", check.OptSuiteClock(clock.now))
	pds := check.NewSuite("pds", check.OptSuiteClock(clock.now))
	tpc.MustRegister(fixed("rms", check.OK, "")).MustRegister(fixed("pedestal", check.Bad, "too high"))
	pds.MustRegister(fixed("empty", check.OK, ""))
	top.MustRegister(tpc).MustRegister(pds).MustRegister(fixed("fragments", check.OK, ""))

	res, err := top.Run(dqm.NewDataset())
	require.NoError(t, err)
	assert.Equal(t, "1/3 results are bad or invalid.", res.Message)
	assert.Equal(t, "1/2 results are bad or invalid.", tpc.Summary().Message)

	rep := top.Report()
	require.Len(t, rep.Suites, 2)
	assert.Equal(t, "tpc", rep.Suites[0].Name)
	failed := rep.Failed()
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"tpc", "pedestal"}, names)

	var paths []string
	rep.Walk(func(path []string, r check.Report) {
		paths = append(paths, strings.Join(append(path, r.Name), "/"))
	})
	assert.Equal(t, []string{"standard", "standard/tpc", "standard/pds"}, paths)

	buf, err := json.Marshal(rep)
	require.NoError(t, err)
	var back check.Report
	require.NoError(t, json.Unmarshal(buf, &back))
	assert.Equal(t, check.Bad, back.Severity)
	assert.Equal(t, check.Bad, back.Suites[0].Results[0].Severity)
}

func TestWriteTable(t *testing.T) {
	s := check.NewSuite("tpc", check.OptSuiteClock(newClock().now))
	s.MustRegister(fixed("CheckWIBEth_RMS_U", check.OK, "all good")).
		MustRegister(fixed("CheckAllExpectedFragments", check.Bad, "missing 2"))
	_, err := s.Run(dqm.NewDataset())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteTable(&buf, check.TableOptions{Latest: true, Pretty: true}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TEST NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "AllExpectedFragments"), lines[1])
	assert.Contains(t, lines[1], "BAD")
	assert.Contains(t, lines[2], "Mar-01-2024, 12:00:01")

	buf.Reset()
	require.NoError(t, s.WriteTable(&buf, check.TableOptions{Names: []string{"CheckWIBEth_RMS_U"}}))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestSeverityText(t *testing.T) {
	for _, sev := range []check.Severity{check.Invalid, check.Bad, check.OK, check.Warning} {
		txt, err := sev.MarshalText()
		require.NoError(t, err)
		var back check.Severity
		require.NoError(t, back.UnmarshalText(txt))
		assert.Equal(t, sev, back)
	}
	var s check.Severity
	assert.Error(t, s.UnmarshalText([]byte("MAYBE")))
	assert.Equal(t, "RMS_U", check.DisplayName("CheckWIBEth_RMS_U"))
	assert.Equal(t, "TimestampsAligned_HD_TPC", check.DisplayName("CheckTimestampsAligned_HD_TPC"))
}
