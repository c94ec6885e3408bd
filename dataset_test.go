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

package dqm_test

import (
	"strings"
	"testing"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/mock"
	"github.com/dunedaq/dqm/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frhRow(run, trigger, seq uint64, src uint32) *dqm.MapRow {
	return dqm.NewRecordRow(dqm.RecordIndex{Run: run, Trigger: trigger, Sequence: seq}, dqm.ColSrcID).
		Set(dqm.ColSrcID, src).
		Set("window_begin_dts", 1000*trigger).
		Set("window_end_dts", 1000*trigger+4096)
}

func TestFinalize(t *testing.T) {
	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{
		"frh":   {frhRow(100, 5, 0, 1), frhRow(100, 5, 0, 2)},
		"empty": nil,
	})
	acc.Merge(dqm.RowSets{"frh": {frhRow(100, 6, 0, 1), frhRow(100, 5, 0, 1)}})
	logger := &mock.RecordingLogger{}

	ds, err := dqm.Finalize(acc, logger)
	test.ErrNil(t, err, "Finalize")
	test.MustBe(t, []string{"frh"}, ds.Names())
	assert.Contains(t, logger.Lines(), "table empty has no rows, skipping")

	frh, ok := ds.Table("frh")
	require.True(t, ok)
	assert.Equal(t, 4, frh.Len())
	assert.Equal(t, []string{"run", "trigger", "sequence", "src_id"}, frh.Index())
	assert.Equal(t, []string{"run", "trigger", "sequence", "src_id", "window_begin_dts", "window_end_dts"}, frh.Columns())
	assert.Len(t, frh.Lookup(uint64(100), uint64(5), uint64(0), uint32(1)), 2, "duplicate index tuples are kept")
	assert.Len(t, frh.LookupRow(frhRow(100, 6, 0, 1)), 1)

	again, err := dqm.Finalize(acc, nil)
	require.NoError(t, err)
	frh2, _ := again.Table("frh")
	assert.Equal(t, frh.Rows(), frh2.Rows())
	assert.Equal(t, frh.Records(), frh2.Records())
}

func TestFinalizeIndexMismatch(t *testing.T) {
	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{"frh": {
		frhRow(100, 5, 0, 1),
		dqm.NewRecordRow(dqm.RecordIndex{Run: 100, Trigger: 5}),
	}})
	_, err := dqm.Finalize(acc, nil)
	require.Error(t, err)
	assert.Equal(t, dqm.ErrIndexMismatch, errors.Cause(err))
	assert.Contains(t, err.Error(), "table frh")
}

func TestSelectRecord(t *testing.T) {
	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{"frh": {
		frhRow(100, 5, 0, 1),
		frhRow(100, 6, 0, 1),
		frhRow(100, 5, 0, 2),
		frhRow(100, 6, 0, 2),
		frhRow(100, 6, 0, 3),
	}})
	ds, err := dqm.Finalize(acc, nil)
	require.NoError(t, err)
	frh, _ := ds.Table("frh")

	sub, ri, err := dqm.SelectRecord(frh)
	require.NoError(t, err)
	assert.Equal(t, dqm.RecordIndex{Run: 100, Trigger: 5}, ri)
	assert.Equal(t, 2, sub.Len())

	sub, ri, err = dqm.SelectRecord(frh, dqm.OptTrigger(6))
	require.NoError(t, err)
	assert.Equal(t, dqm.RecordIndex{Run: 100, Trigger: 6}, ri)
	assert.Equal(t, 3, sub.Len())

	_, _, err = dqm.SelectRecord(frh, dqm.OptRun(100), dqm.OptTrigger(7))
	require.Error(t, err)
	assert.True(t, dqm.IsNotFound(err))
	assert.True(t, strings.Contains(err.Error(), "run==100 and trigger==7"), err.Error())

	_, _, err = dqm.SelectRecord(frh, dqm.OptSequence(1))
	assert.True(t, dqm.IsNotFound(errors.Wrap(err, "wrapped")))
}

func TestTableFilterCopy(t *testing.T) {
	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{"frh": {frhRow(1, 1, 0, 1), frhRow(1, 2, 0, 1), frhRow(1, 3, 0, 1)}})
	ds, err := dqm.Finalize(acc, nil)
	require.NoError(t, err)
	frh, _ := ds.Table("frh")

	odd := frh.Filter(func(r dqm.Row) bool {
		trig, _ := dqm.Uint64(r, dqm.ColTrigger)
		return trig%2 == 1
	})
	assert.Equal(t, 2, odd.Len())
	assert.Equal(t, 0, frh.Filter(func(dqm.Row) bool { return false }).Len())

	c := frh.Copy()
	c.Row(0).(*dqm.MapRow).Set("derived", 1.5)
	_, ok := frh.Row(0).Value("derived")
	assert.False(t, ok, "copy must not alias the original rows")
}

func TestConcat(t *testing.T) {
	a := dqm.NewAccumulator()
	a.Merge(dqm.RowSets{"frh": {frhRow(1, 1, 0, 1)}})
	b := dqm.NewAccumulator()
	b.Merge(dqm.RowSets{"frh": {frhRow(2, 1, 0, 1)}, "trh": {dqm.NewRecordRow(dqm.RecordIndex{Run: 2, Trigger: 1})}})
	dsa, err := dqm.Finalize(a, nil)
	require.NoError(t, err)
	dsb, err := dqm.Finalize(b, nil)
	require.NoError(t, err)

	all, err := dqm.Concat(dsa, dsb)
	require.NoError(t, err)
	assert.Equal(t, []string{"frh", "trh"}, all.Names())
	frh, _ := all.Table("frh")
	assert.Equal(t, []dqm.RecordIndex{{Run: 1, Trigger: 1}, {Run: 2, Trigger: 1}}, frh.Records())
}

func TestRowAccessors(t *testing.T) {
	r := dqm.NewMapRow("k").
		Set("k", "7").
		Set("adc", []interface{}{1, 2.5, "3"}).
		Set("ts", []int{4, 5})

	k, err := dqm.Int64(r, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 7, k)

	adc, err := dqm.Float64s(r, "adc")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 3}, adc)

	ts, err := dqm.Int64s(r, "ts")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ts)

	_, err = dqm.Float64(r, "missing")
	assert.Equal(t, dqm.ErrNoColumn, errors.Cause(err))
	_, err = dqm.Float64s(r, "k")
	assert.Error(t, err)
}
