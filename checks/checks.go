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

// Package checks holds the data quality checks run against finalized
// datasets, and NewStandardSuite which assembles them the way the analyzer
// runs them.
//
// Checks read the tables decoders produce. A check whose input table is
// absent reports WARNING rather than failing, since a run may simply not
// include that detector. Checks never modify the tables they read.
package checks

import (
	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
)

// Columns read from decoder tables.
const (
	colDetID             = "det_id"
	colFragmentType      = "fragment_type"
	colDataSize          = "data_size_bytes"
	colWindowBegin       = "window_begin_dts"
	colWindowEnd         = "window_end_dts"
	colNObj              = "n_obj"
	colTimestampFirst    = "timestamp_first_dts"
	colNFragments        = "n_fragments"
	colNRequested        = "n_requested_components"
	colCrate             = "crate_id"
	colSlot              = "slot_id"
	colStream            = "stream_id"
	colChannel           = "channel"
	colPlane             = "plane"
	colADCMean           = "adc_mean"
	colADCRMS            = "adc_rms"
	colSamplingPeriod    = "sampling_period"
	colTimestampDiffVals = "timestamp_dts_diff_vals"
	colDTSFirst          = "timestamp_dts_first"
	colCD0First          = "colddata_timestamp_0_first"
	colCD1First          = "colddata_timestamp_1_first"
	colTSDiffsVals       = "ts_diffs_vals"
)

// TicksPerWIBEthFrame is the number of DTS clock ticks covered by one WIBEth
// frame: 64 samples of 32 ticks.
const TicksPerWIBEthFrame = 32 * 64

func notFound(table string) check.Result {
	return check.Resultf(check.Warning, "Could not find %s in dataset.", table)
}

func logger(l dqm.Logger) dqm.Logger {
	if l == nil {
		return dqm.NopLogger{}
	}
	return l
}

// rowsWhere returns the rows of t whose column holds want.
func rowsWhere(t *dqm.Table, column string, want int64) ([]dqm.Row, error) {
	var ret []dqm.Row
	for _, r := range t.Rows() {
		v, err := dqm.Int64(r, column)
		if err != nil {
			return nil, err
		}
		if v == want {
			ret = append(ret, r)
		}
	}
	return ret, nil
}
