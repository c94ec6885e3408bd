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
	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
)

func wibethHeaderTable(det dqm.DetID) string {
	return dqm.DetectorHeaderTable(det, dqm.FragmentWIBEth)
}

// TimestampDiffsWIBEth counts frame to frame timestamp differences which
// are not one sampling period.
type TimestampDiffsWIBEth struct {
	check.Base
	table string
}

// NewTimestampDiffsWIBEth returns the check for one detector.
func NewTimestampDiffsWIBEth(det dqm.DetID) *TimestampDiffsWIBEth {
	return &TimestampDiffsWIBEth{
		Base:  check.Base{TestName: "CheckTimestampDiffs_WIBEth_" + det.Name()},
		table: wibethHeaderTable(det),
	}
}

// Run implements check.Test.
func (c *TimestampDiffsWIBEth) Run(ds *dqm.Dataset) (check.Result, error) {
	deth, ok := ds.Table(c.table)
	if !ok {
		return notFound(c.table), nil
	}
	wrong := 0
	for _, r := range deth.Rows() {
		period, err := dqm.Float64(r, colSamplingPeriod)
		if err != nil {
			return check.Result{}, err
		}
		diffs, err := dqm.Float64s(r, colTimestampDiffVals)
		if err != nil {
			return check.Result{}, err
		}
		for _, d := range diffs {
			if d != period {
				wrong++
			}
		}
	}
	if wrong > 0 {
		return check.Resultf(check.Bad, "%d / %d fragments have bad timestamp differences.", wrong, deth.Len()), nil
	}
	return check.Okay(), nil
}

// COLDDATATimestampsAligned compares the 15 low bits of the first DTS
// timestamp of a fragment with the first timestamps of both COLDDATA links.
type COLDDATATimestampsAligned struct {
	check.Base
	table string
}

// NewCOLDDATATimestampsAligned returns the check for one detector.
func NewCOLDDATATimestampsAligned(det dqm.DetID) *COLDDATATimestampsAligned {
	return &COLDDATATimestampsAligned{
		Base:  check.Base{TestName: "CheckWIBEth_COLDDATA_Timestamps_Aligned_" + det.Name()},
		table: wibethHeaderTable(det),
	}
}

// Run implements check.Test.
func (c *COLDDATATimestampsAligned) Run(ds *dqm.Dataset) (check.Result, error) {
	deth, ok := ds.Table(c.table)
	if !ok {
		return notFound(c.table), nil
	}
	bad := 0
	for _, r := range deth.Rows() {
		dts, err := dqm.Uint64(r, colDTSFirst)
		if err != nil {
			return check.Result{}, err
		}
		cd0, err := dqm.Int64(r, colCD0First)
		if err != nil {
			return check.Result{}, err
		}
		cd1, err := dqm.Int64(r, colCD1First)
		if err != nil {
			return check.Result{}, err
		}
		low := int64(dts & 0x7fff)
		if low != cd0 || low != cd1 {
			bad++
		}
	}
	if bad > 0 {
		return check.Resultf(check.Bad, "%d COLDDATA timestamps across %d fragments have bad timestamp differences relative to DTS.", bad, deth.Len()), nil
	}
	return check.Okay(), nil
}

// HeaderValue checks that every value a WIBEth header field took within a
// fragment equals the expected one. Decoders store the distinct values of
// field in the "<field>_vals" column.
type HeaderValue struct {
	check.Base
	Field string
	Good  float64
	table string
}

// NewHeaderValue returns a HeaderValue check named after the header field.
func NewHeaderValue(det dqm.DetID, label, field string, good float64) *HeaderValue {
	return &HeaderValue{
		Base:  check.Base{TestName: "CheckWIBEth_" + label + "_" + det.Name()},
		Field: field,
		Good:  good,
		table: wibethHeaderTable(det),
	}
}

// Run implements check.Test.
func (c *HeaderValue) Run(ds *dqm.Dataset) (check.Result, error) {
	deth, ok := ds.Table(c.table)
	if !ok {
		return notFound(c.table), nil
	}
	col := c.Field + "_vals"
	empty, wrong := 0, 0
	for _, r := range deth.Rows() {
		vals, err := dqm.Float64s(r, col)
		if err != nil {
			return check.Result{}, err
		}
		if len(vals) == 0 {
			empty++
			continue
		}
		for _, v := range vals {
			if v != c.Good {
				wrong++
			}
		}
	}
	// empty fields are reported before wrong values
	if empty > 0 {
		return check.Resultf(check.Bad, "%d %s!=%v errors across %d fragments.", empty, c.Field, c.Good, deth.Len()), nil
	}
	if wrong > 0 {
		return check.Resultf(check.Bad, "%d %s!=%v errors across %d fragments.", wrong, c.Field, c.Good, deth.Len()), nil
	}
	return check.Okay(), nil
}

// HeaderSpec describes one HeaderValue check.
type HeaderSpec struct {
	Label string
	Field string
	Good  float64
}

// HeaderSpecs are the WIBEth header fields checked by the standard suite.
var HeaderSpecs = []HeaderSpec{
	{Label: "COLDDATA_Timestamp_0_Diff", Field: "colddata_timestamp_0_diff", Good: TicksPerWIBEthFrame},
	{Label: "COLDDATA_Timestamp_1_Diff", Field: "colddata_timestamp_1_diff", Good: TicksPerWIBEthFrame},
	{Label: "CRC_Err", Field: "crc_err", Good: 0},
	{Label: "Pulser", Field: "pulser", Good: 0},
	{Label: "Calibration", Field: "calibration", Good: 0},
	{Label: "Ready", Field: "ready", Good: 0},
	{Label: "Context", Field: "context", Good: 0},
	{Label: "CD", Field: "cd", Good: 0},
	{Label: "LOL", Field: "lol", Good: 0},
	{Label: "Link_Valid", Field: "link_valid", Good: 3},
	{Label: "WIB_Sync", Field: "wib_sync", Good: 0},
	{Label: "FEMB_Sync", Field: "femb_sync", Good: 3},
}

// HeaderValueChecks returns one HeaderValue check per entry of HeaderSpecs.
func HeaderValueChecks(det dqm.DetID) []*HeaderValue {
	ret := make([]*HeaderValue, len(HeaderSpecs))
	for i, s := range HeaderSpecs {
		ret[i] = NewHeaderValue(det, s.Label, s.Field, s.Good)
	}
	return ret
}
