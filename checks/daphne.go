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

// EmptyFragmentsDAPHNE fails when self-triggered DAPHNE fragments carry no
// payload.
type EmptyFragmentsDAPHNE struct {
	check.Base
}

// NewEmptyFragmentsDAPHNE returns the check.
func NewEmptyFragmentsDAPHNE() *EmptyFragmentsDAPHNE {
	return &EmptyFragmentsDAPHNE{Base: check.Base{TestName: "CheckEmptyFragments_DAPHNE"}}
}

// Run implements check.Test.
func (c *EmptyFragmentsDAPHNE) Run(ds *dqm.Dataset) (check.Result, error) {
	frh, ok := ds.Table(dqm.TableFragmentHeader)
	if !ok {
		return notFound(dqm.TableFragmentHeader), nil
	}
	rows, err := rowsWhere(frh, colFragmentType, int64(dqm.FragmentDAPHNE))
	if err != nil {
		return check.Result{}, err
	}
	if len(rows) == 0 {
		return check.Resultf(check.Warning, "WARNING: No Self-triggered DAPHNE data found."), nil
	}
	empty := 0
	for _, r := range rows {
		size, err := dqm.Int64(r, colDataSize)
		if err != nil {
			return check.Result{}, err
		}
		if size == 0 {
			empty++
		}
	}
	if empty > 0 {
		return check.Resultf(check.Bad, "%d fragments are empty (%d are fine).", empty, len(rows)-empty), nil
	}
	return check.Okay(), nil
}

// daphneTables are the header and data tables of both DAPHNE readout modes,
// streaming first.
func daphneTables(det dqm.DetID) (heads, data []string) {
	for _, ft := range []dqm.FragmentType{dqm.FragmentDAPHNEStream, dqm.FragmentDAPHNE} {
		heads = append(heads, dqm.DetectorHeaderTable(det, ft))
		data = append(data, dqm.DetectorDataTable(det, ft))
	}
	return heads, data
}

func anyTable(ds *dqm.Dataset, names []string) (*dqm.Table, bool) {
	for _, n := range names {
		if t, ok := ds.Table(n); ok {
			return t, true
		}
	}
	return nil, false
}

// TimestampDiffsDAPHNE fails links whose frames do not all share a single
// timestamp difference.
type TimestampDiffsDAPHNE struct {
	check.Base
	Detector dqm.DetID
}

// NewTimestampDiffsDAPHNE returns the check for the HD photon detectors.
func NewTimestampDiffsDAPHNE() *TimestampDiffsDAPHNE {
	return &TimestampDiffsDAPHNE{Base: check.Base{TestName: "CheckTimestampDiffs_DAPHNE"}, Detector: dqm.DetHDPDS}
}

// Run implements check.Test.
func (c *TimestampDiffsDAPHNE) Run(ds *dqm.Dataset) (check.Result, error) {
	heads, data := daphneTables(c.Detector)
	if _, ok := anyTable(ds, data); !ok {
		return check.Resultf(check.Warning, "WARNING: No data for DAPHNE found."), nil
	}
	bad := 0
	for _, name := range heads {
		deth, ok := ds.Table(name)
		if !ok {
			continue
		}
		for _, r := range deth.Rows() {
			diffs, err := dqm.Int64s(r, colTSDiffsVals)
			if err != nil {
				return check.Result{}, err
			}
			if len(diffs) != 1 {
				bad++
			}
		}
	}
	if bad > 0 {
		return check.Resultf(check.Bad, "%d links fail TS difference check.", bad), nil
	}
	return check.Okay(), nil
}

// ADCDataDAPHNE fails channels whose ADC mean or RMS was exactly zero in
// any record. The streaming data is checked when present, the
// self-triggered data otherwise.
type ADCDataDAPHNE struct {
	check.Base
	Detector dqm.DetID
}

// NewADCDataDAPHNE returns the check for the HD photon detectors.
func NewADCDataDAPHNE() *ADCDataDAPHNE {
	return &ADCDataDAPHNE{Base: check.Base{TestName: "CheckADCData_DAPHNE"}, Detector: dqm.DetHDPDS}
}

// Run implements check.Test.
func (c *ADCDataDAPHNE) Run(ds *dqm.Dataset) (check.Result, error) {
	_, data := daphneTables(c.Detector)
	detd, ok := anyTable(ds, data)
	if !ok {
		return check.Resultf(check.Warning, "WARNING: No data for DAPHNE found."), nil
	}
	zeroMean := make(map[int64]struct{})
	zeroRMS := make(map[int64]struct{})
	for _, r := range detd.Rows() {
		ch, err := dqm.Int64(r, colChannel)
		if err != nil {
			return check.Result{}, err
		}
		mean, err := dqm.Float64(r, colADCMean)
		if err != nil {
			return check.Result{}, err
		}
		rms, err := dqm.Float64(r, colADCRMS)
		if err != nil {
			return check.Result{}, err
		}
		if mean == 0 {
			zeroMean[ch] = struct{}{}
		}
		if rms == 0 {
			zeroRMS[ch] = struct{}{}
		}
	}
	if bad := max(len(zeroMean), len(zeroRMS)); bad > 0 {
		return check.Resultf(check.Bad, "%d channels have problems", bad), nil
	}
	return check.Okay(), nil
}
