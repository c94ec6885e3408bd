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
	"context"
	"math/rand"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/mock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hdReader(triggers ...uint64) *stubReader {
	r := newStubReader("hd.hdf5", 100, "np04hd", triggers...)
	for id := uint32(1); id <= 6; id++ {
		r.addFragment(id, dqm.FragmentWIBEth, dqm.DetHDTPC)
	}
	return r
}

func srcIDs(t *testing.T, rows []dqm.Row) []int64 {
	t.Helper()
	ret := make([]int64, len(rows))
	for i, r := range rows {
		v, err := dqm.Int64(r, dqm.ColSrcID)
		require.NoError(t, err)
		ret[i] = v
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

func TestProcessRecord(t *testing.T) {
	r := hdReader(5)
	r.addFragment(20, dqm.FragmentCRT, dqm.DetHDCRT)
	stats := &mock.RecordingStatter{}
	logger := &mock.RecordingLogger{}
	dec := &stubDecoders{}

	p := dqm.NewRecordProcessor(dqm.NewDispatcher(dec))
	p.Stats = stats
	p.Log = logger
	acc, err := p.ProcessRecord(context.Background(), r, r.rids[0], dqm.NewAccumulator())
	require.NoError(t, err)

	assert.Equal(t, 8, acc.Len(dqm.TableSourceID))
	assert.Equal(t, 6, acc.Len(dqm.TableFragmentHeader))
	assert.Equal(t, 6, acc.Len(dqm.TableDAQHeader))
	require.Equal(t, 1, acc.Len(dqm.TableTriggerRecordHdr))

	trh := acc.Rows(dqm.TableTriggerRecordHdr)[0]
	n, err := dqm.Int64(trh, "n_fragments")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	ri, err := dqm.RecordOf(trh)
	require.NoError(t, err)
	assert.Equal(t, dqm.RecordIndex{Run: 100, Trigger: 5}, ri)

	assert.EqualValues(t, 1, stats.Counted(dqm.StatFragmentsUnknown))
	assert.EqualValues(t, 8, stats.Counted(dqm.StatFragmentsProcessed))
	assert.EqualValues(t, 1, stats.Counted(dqm.StatRecordsProcessed))
	assert.Equal(t, 1, stats.Timed(dqm.StatRecordProcess))
	assert.Contains(t, logger.Lines(), "unknown fragment HD_CRT_kCRT. source id kDetectorReadout:20")

	for _, m := range dec.requested() {
		assert.Equal(t, "WIBEth:PD2HDChannelMap", m)
	}
}

func TestProcessRecordCompletionOrder(t *testing.T) {
	dec := &stubDecoders{
		unpack: func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return headerRows(ri, sid, frag)
		},
	}
	var runs [][]int64
	for i := 0; i < 3; i++ {
		r := hdReader(1)
		p := dqm.NewRecordProcessor(dqm.NewDispatcher(dec))
		p.MaxWorkers = 3
		acc, err := p.ProcessRecord(context.Background(), r, r.rids[0], dqm.NewAccumulator())
		require.NoError(t, err)
		runs = append(runs, srcIDs(t, acc.Rows(dqm.TableFragmentHeader)))
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, runs[0])
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[0], runs[2])
}

func failingDecoders() *stubDecoders {
	return &stubDecoders{
		unpack: func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
			switch sid.ID {
			case 2:
				return nil, errors.New("corrupt payload")
			case 3:
				panic("index out of range")
			case 4:
				time.Sleep(300 * time.Millisecond)
			}
			return headerRows(ri, sid, frag)
		},
	}
}

func TestProcessRecordSkipFailed(t *testing.T) {
	r := hdReader(7)
	stats := &mock.RecordingStatter{}
	p := dqm.NewRecordProcessor(dqm.NewDispatcher(failingDecoders()))
	p.TaskTimeout = 50 * time.Millisecond
	p.Stats = stats

	acc, err := p.ProcessRecord(context.Background(), r, r.rids[0], dqm.NewAccumulator())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 6}, srcIDs(t, acc.Rows(dqm.TableFragmentHeader)))
	assert.Equal(t, 1, acc.Len(dqm.TableTriggerRecordHdr))
	assert.EqualValues(t, 3, stats.Counted(dqm.StatTasksFailed))
}

func TestProcessRecordAbort(t *testing.T) {
	r := hdReader(7)
	p := dqm.NewRecordProcessor(dqm.NewDispatcher(failingDecoders()))
	p.TaskTimeout = 50 * time.Millisecond
	p.Policy = dqm.AbortRecord

	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{"earlier": {dqm.NewMapRow("x").Set("x", 1)}})
	_, err := p.ProcessRecord(context.Background(), r, r.rids[0], acc)
	require.Error(t, err)
	assert.Equal(t, []string{"earlier"}, acc.Names())
}

func TestProcessRecordCanceled(t *testing.T) {
	r := hdReader(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := dqm.NewRecordProcessor(dqm.NewDispatcher(&stubDecoders{}))
	_, err := p.ProcessRecord(ctx, r, r.rids[0], dqm.NewAccumulator())
	assert.Equal(t, context.Canceled, errors.Cause(err))
}

func TestProcessRecordCanceledMidway(t *testing.T) {
	r := hdReader(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dec := &stubDecoders{
		unpack: func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
			if sid.ID == 6 {
				cancel()
			}
			return headerRows(ri, sid, frag)
		},
	}
	p := dqm.NewRecordProcessor(dqm.NewDispatcher(dec))
	p.MaxWorkers = 1

	acc := dqm.NewAccumulator()
	acc.Merge(dqm.RowSets{"earlier": {dqm.NewMapRow("x").Set("x", 1)}})
	_, err := p.ProcessRecord(ctx, r, r.rids[0], acc)
	assert.Equal(t, context.Canceled, errors.Cause(err))
	assert.Equal(t, []string{"earlier"}, acc.Names())
	assert.Equal(t, 0, acc.Len(dqm.TableFragmentHeader))
	assert.Equal(t, 0, acc.Len(dqm.TableSourceID))
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]dqm.FailurePolicy{"": dqm.SkipFailed, "skip": dqm.SkipFailed, "ABORT": dqm.AbortRecord} {
		got, err := dqm.ParseFailurePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := dqm.ParseFailurePolicy("retry")
	assert.Error(t, err)
}

func TestIngester(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 4, want: 4},
		{n: -1, want: 6},
		{n: 10, want: 6},
	}
	for _, tst := range tests {
		a := hdReader(1, 2, 3)
		b := hdReader(4, 5, 6)
		b.info.Run = 101
		ing := dqm.NewIngester(dqm.NewRecordProcessor(dqm.NewDispatcher(&stubDecoders{})), nil)
		ing.NRecords = tst.n
		acc, err := ing.Run(context.Background(), a, b)
		require.NoError(t, err)
		assert.Equal(t, tst.want, acc.Len(dqm.TableTriggerRecordHdr), "NRecords=%d", tst.n)
	}
}

func TestIngesterDefault(t *testing.T) {
	ing := dqm.NewIngester(dqm.NewRecordProcessor(dqm.NewDispatcher(&stubDecoders{})), nil)
	acc, err := ing.Run(context.Background(), hdReader(8, 9))
	require.NoError(t, err)
	ds, err := dqm.Finalize(acc, nil)
	require.NoError(t, err)
	trh, ok := ds.Table(dqm.TableTriggerRecordHdr)
	require.True(t, ok)
	assert.Equal(t, []dqm.RecordIndex{{Run: 100, Trigger: 8}}, trh.Records())
}

func TestIngesterRunLocations(t *testing.T) {
	dqm.RegisterOpener("stubhd", func(u *url.URL) (dqm.RecordReader, error) {
		if u.Host == "broken" {
			return nil, errors.New("no such file")
		}
		return hdReader(1, 2), nil
	})
	ing := dqm.NewIngester(dqm.NewRecordProcessor(dqm.NewDispatcher(&stubDecoders{})), nil)
	ing.NRecords = -1
	acc, err := ing.RunLocations(context.Background(), "stubhd://a", "stubhd://b")
	require.NoError(t, err)
	assert.Equal(t, 4, acc.Len(dqm.TableTriggerRecordHdr))

	_, err = ing.RunLocations(context.Background(), "stubhd://a", "stubhd://broken")
	assert.Error(t, err)
	_, err = ing.RunLocations(context.Background(), "nosuchscheme://a")
	assert.Error(t, err)
}
