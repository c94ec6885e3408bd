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

package checks

import (
	"math"
	"sort"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
)

// AllExpectedFragments fails records which received fewer fragments than
// their header requested.
type AllExpectedFragments struct {
	check.Base
}

// NewAllExpectedFragments returns the check.
func NewAllExpectedFragments() *AllExpectedFragments {
	return &AllExpectedFragments{Base: check.Base{TestName: "CheckAllExpectedFragmentsTest"}}
}

// Run implements check.Test.
func (c *AllExpectedFragments) Run(ds *dqm.Dataset) (check.Result, error) {
	trh, ok := ds.Table(dqm.TableTriggerRecordHdr)
	if !ok {
		return notFound(dqm.TableTriggerRecordHdr), nil
	}
	missing := 0
	for _, r := range trh.Rows() {
		got, err := dqm.Int64(r, colNFragments)
		if err != nil {
			return check.Result{}, err
		}
		want, err := dqm.Int64(r, colNRequested)
		if err != nil {
			return check.Result{}, err
		}
		if got != want {
			missing++
		}
	}
	if missing > 0 {
		return check.Resultf(check.Bad, "%d / %d records missing fragments.", missing, trh.Len()), nil
	}
	return check.Okay(), nil
}

// NFramesWIBEth compares the number of frames of every WIBEth fragment with
// the number its readout window should hold.
type NFramesWIBEth struct {
	check.Base
}

// NewNFramesWIBEth returns the check.
func NewNFramesWIBEth() *NFramesWIBEth {
	return &NFramesWIBEth{Base: check.Base{TestName: "CheckNFrames_WIBEth"}}
}

// Run implements check.Test.
func (c *NFramesWIBEth) Run(ds *dqm.Dataset) (check.Result, error) {
	frh, ok := ds.Table(dqm.TableFragmentHeader)
	if !ok {
		return notFound(dqm.TableFragmentHeader), nil
	}
	rows, err := rowsWhere(frh, colFragmentType, int64(dqm.FragmentWIBEth))
	if err != nil {
		return check.Result{}, err
	}
	if len(rows) == 0 {
		return check.Resultf(check.Warning, "WARNING: No WIBEth components found."), nil
	}
	daqh, ok := ds.Table(dqm.TableDAQHeader)
	if !ok {
		return notFound(dqm.TableDAQHeader), nil
	}
	wrong := 0
	for _, r := range rows {
		begin, err := dqm.Float64(r, colWindowBegin)
		if err != nil {
			return check.Result{}, err
		}
		end, err := dqm.Float64(r, colWindowEnd)
		if err != nil {
			return check.Result{}, err
		}
		expected := int64(math.Floor((end-begin)/TicksPerWIBEthFrame)) + 1
		matches := daqh.LookupRow(r)
		if len(matches) == 0 {
			wrong++
			continue
		}
		for _, m := range matches {
			n, err := dqm.Int64(m, colNObj)
			if err != nil {
				return check.Result{}, err
			}
			if n != expected {
				wrong++
			}
		}
	}
	if wrong > 0 {
		return check.Resultf(check.Bad, "%d / %d WIBEth fragments have the wrong number of frames.", wrong, len(rows)), nil
	}
	return check.Okay(), nil
}

// TimestampsAligned fails when the sources of one detector disagree on the
// timestamp of their first frame within a record.
type TimestampsAligned struct {
	check.Base
	Detector dqm.DetID

	// Log receives one line per misaligned source.
	Log dqm.Logger
}

// NewTimestampsAligned returns the check for one detector.
func NewTimestampsAligned(det dqm.DetID) *TimestampsAligned {
	return &TimestampsAligned{
		Base:     check.Base{TestName: "CheckTimestampsAligned_" + det.Name()},
		Detector: det,
	}
}

// Run implements check.Test.
func (c *TimestampsAligned) Run(ds *dqm.Dataset) (check.Result, error) {
	daqh, ok := ds.Table(dqm.TableDAQHeader)
	if !ok {
		return notFound(dqm.TableDAQHeader), nil
	}
	det := int64(c.Detector)
	sub := daqh.Filter(func(r dqm.Row) bool {
		v, err := dqm.Int64(r, colDetID)
		return err == nil && v == det
	})
	if sub.Len() == 0 {
		return check.Resultf(check.Warning, "WARNING: No components found with detector id %d.", det), nil
	}

	misaligned := make(map[int64]struct{})
	for _, ri := range sub.Records() {
		rec := sub.Record(ri)
		counts := make(map[uint64]int)
		ts := make([]uint64, rec.Len())
		for i, r := range rec.Rows() {
			v, err := dqm.Uint64(r, colTimestampFirst)
			if err != nil {
				return check.Result{}, err
			}
			ts[i] = v
			counts[v]++
		}
		if len(counts) == 1 {
			continue
		}
		majority := mode(counts)
		for i, r := range rec.Rows() {
			if ts[i] == majority {
				continue
			}
			src, err := dqm.Int64(r, dqm.ColSrcID)
			if err != nil {
				return check.Result{}, err
			}
			misaligned[src] = struct{}{}
			c.logSource(ri, r, ts[i], majority)
		}
	}
	if len(misaligned) > 0 {
		return check.Resultf(check.Bad, "%d sources have some timestamp misalignment for det_id %d.", len(misaligned), det), nil
	}
	return check.Okay(), nil
}

func (c *TimestampsAligned) logSource(ri dqm.RecordIndex, r dqm.Row, ts, majority uint64) {
	crate, _ := dqm.Int64(r, colCrate)
	slot, _ := dqm.Int64(r, colSlot)
	stream, _ := dqm.Int64(r, colStream)
	logger(c.Log).Printf("timestamp misaligned: record %d seq %d crate %d slot %d stream %d first %d majority %d diff %d",
		ri.Trigger, ri.Sequence, crate, slot, stream, ts, majority, int64(ts-majority))
}

// mode returns the most frequent value, the smallest one on ties.
func mode(counts map[uint64]int) uint64 {
	vals := make([]uint64, 0, len(counts))
	for v := range counts {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	best := vals[0]
	for _, v := range vals[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
