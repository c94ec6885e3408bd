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

package fake

import (
	"fmt"
	"math/rand"

	"github.com/dunedaq/dqm"
)

// Decoders implements dqm.Decoders for the fragments a Reader produces.
type Decoders struct{}

var _ dqm.Decoders = Decoders{}

// WaveformTable is the table waveform rows of a detector and fragment type
// go to when a waveform prescale is set.
func WaveformTable(det dqm.DetID, ft dqm.FragmentType) string {
	return fmt.Sprintf("detw_%s_%s", det, ft)
}

// prescaled reports whether a record passes a prescale of n.
func prescaled(ri dqm.RecordIndex, n int) bool {
	return n <= 1 || ri.Trigger%uint64(n) == 0
}

// WIBEth implements dqm.Decoders.
func (Decoders) WIBEth(channelMap string, p dqm.Prescales) dqm.Unpacker {
	return dqm.UnpackerFunc(func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
		var pl wibPayload
		if err := decode(frag.Data, &pl); err != nil {
			return nil, err
		}
		rs := dqm.RowSets{}
		rs.Add(dqm.TableFragmentHeader, dqm.FragmentHeaderRow(ri, sid, frag))
		rs.Add(dqm.TableDAQHeader, dqm.DAQHeaderRow(ri, sid, frag.Detector, int(pl.NFrames), pl.FirstTS))

		cd := int64(pl.FirstTS&0x7fff) + int64(pl.CD0Offset)
		h := dqm.NewRecordRow(ri, dqm.ColSrcID).
			Set(dqm.ColSrcID, sid.ID).
			Set("channel_map", channelMap).
			Set("n_frames", int(pl.NFrames)).
			Set("sampling_period", TicksPerFrame).
			Set("timestamp_dts_first", pl.FirstTS).
			Set("timestamp_dts_diff_vals", []int64{TicksPerFrame}).
			Set("timestamp_dts_diff_counts", []int64{int64(pl.NFrames) - 1}).
			Set("colddata_timestamp_0_first", cd).
			Set("colddata_timestamp_1_first", cd)
		fields := map[string]int64{
			"colddata_timestamp_0_diff": TicksPerFrame,
			"colddata_timestamp_1_diff": TicksPerFrame,
			"crc_err":                   0,
			"pulser":                    int64(pl.Pulser),
			"calibration":               0,
			"ready":                     0,
			"context":                   0,
			"cd":                        0,
			"lol":                       0,
			"link_valid":                3,
			"wib_sync":                  0,
			"femb_sync":                 3,
		}
		for _, f := range headerFieldOrder {
			h.Set(f+"_vals", []int64{fields[f]}).Set(f+"_idx", []int64{0})
		}
		rs.Add(dqm.DetectorHeaderTable(frag.Detector, frag.Type), h)

		if prescaled(ri, p.Analysis) {
			r := newRand(pl.Seed)
			link := int64(sid.ID) - TPCSourceBase
			for i := 0; i < ChannelsPerLink; i++ {
				plane := i * 3 / ChannelsPerLink
				mean, rms := tpcChannel(r, plane, pulserMean(pl))
				if i < int(pl.Noisy) {
					rms = 150 + r.Float64()*10
				}
				rs.Add(dqm.DetectorDataTable(frag.Detector, frag.Type),
					dqm.NewRecordRow(ri, dqm.ColSrcID, "channel").
						Set(dqm.ColSrcID, sid.ID).
						Set("channel", link*ChannelsPerLink+int64(i)).
						Set("plane", plane).
						Set("apa", int(sid.Crate)).
						Set("adc_mean", mean).
						Set("adc_rms", rms))
			}
		}
		if p.Waveform != nil && prescaled(ri, *p.Waveform) {
			rs.Add(WaveformTable(frag.Detector, frag.Type), waveformRows(ri, sid, pl.Seed, int(pl.NFrames)*64, pl.FirstTS)...)
		}
		return rs, nil
	})
}

var headerFieldOrder = []string{
	"colddata_timestamp_0_diff", "colddata_timestamp_1_diff", "crc_err", "pulser", "calibration",
	"ready", "context", "cd", "lol", "link_valid", "wib_sync", "femb_sync",
}

func pulserMean(pl wibPayload) float64 {
	if pl.Pulser != 0 {
		return 400
	}
	return 0
}

// tpcChannel returns a plausible pedestal and noise level for a channel of
// the given plane.
func tpcChannel(r *rand.Rand, plane int, shift float64) (mean, rms float64) {
	if plane == 2 {
		return 900 + shift + r.NormFloat64()*20, 22 + r.Float64()*2
	}
	return 8192 + shift + r.NormFloat64()*40, 30 + r.Float64()*3
}

func waveformRows(ri dqm.RecordIndex, sid dqm.SourceID, seed int64, n int, first uint64) []dqm.Row {
	r := newRand(seed + 1)
	adcs := make([]int64, n)
	ts := make([]uint64, n)
	for i := range adcs {
		adcs[i] = 8192 + int64(r.NormFloat64()*30)
		ts[i] = first + uint64(i)*32
	}
	return []dqm.Row{dqm.NewRecordRow(ri, dqm.ColSrcID).
		Set(dqm.ColSrcID, sid.ID).
		Set("adcs", adcs).
		Set("timestamps", ts)}
}

func (d Decoders) daphne(p dqm.Prescales) dqm.Unpacker {
	return dqm.UnpackerFunc(func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
		rs := dqm.RowSets{}
		rs.Add(dqm.TableFragmentHeader, dqm.FragmentHeaderRow(ri, sid, frag))
		if len(frag.Data) == 0 {
			return rs, nil
		}
		var pl daphnePayload
		if err := decode(frag.Data, &pl); err != nil {
			return nil, err
		}
		rs.Add(dqm.TableDAQHeader, dqm.DAQHeaderRow(ri, sid, frag.Detector, int(pl.NFrames), pl.FirstTS))

		diffs := []int64{TicksPerFrame}
		counts := []int64{int64(pl.NFrames) - 1}
		if pl.BadTS != 0 {
			diffs = []int64{TicksPerFrame, 2 * TicksPerFrame}
			counts = []int64{int64(pl.NFrames) - 2, 1}
		}
		rs.Add(dqm.DetectorHeaderTable(frag.Detector, frag.Type),
			dqm.NewRecordRow(ri, dqm.ColSrcID).
				Set(dqm.ColSrcID, sid.ID).
				Set("ts_diffs_vals", diffs).
				Set("ts_diffs_counts", counts))

		if prescaled(ri, p.Analysis) {
			r := newRand(pl.Seed)
			link := int64(sid.ID) - PDSSourceBase
			for i := 0; i < ChannelsPerPDSLink; i++ {
				mean, rms := 1500+r.NormFloat64()*10, 4+r.Float64()
				if i < int(pl.Dead) {
					mean, rms = 0, 0
				}
				rs.Add(dqm.DetectorDataTable(frag.Detector, frag.Type),
					dqm.NewRecordRow(ri, dqm.ColSrcID, "channel").
						Set(dqm.ColSrcID, sid.ID).
						Set("channel", link*ChannelsPerPDSLink+int64(i)).
						Set("adc_mean", mean).
						Set("adc_rms", rms))
			}
		}
		if p.Waveform != nil && prescaled(ri, *p.Waveform) {
			rs.Add(WaveformTable(frag.Detector, frag.Type), waveformRows(ri, sid, pl.Seed, int(pl.NFrames)*16, pl.FirstTS)...)
		}
		return rs, nil
	})
}

// DAPHNE implements dqm.Decoders.
func (d Decoders) DAPHNE(p dqm.Prescales) dqm.Unpacker { return d.daphne(p) }

// DAPHNEStream implements dqm.Decoders.
func (d Decoders) DAPHNEStream(p dqm.Prescales) dqm.Unpacker { return d.daphne(p) }

func triggerObjects(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment, channelMap string) (dqm.RowSets, error) {
	rs := dqm.RowSets{}
	rs.Add(dqm.TableFragmentHeader, dqm.FragmentHeaderRow(ri, sid, frag))
	rs.Add(dqm.DetectorDataTable(frag.Detector, frag.Type),
		dqm.NewRecordRow(ri, dqm.ColSrcID).
			Set(dqm.ColSrcID, sid.ID).
			Set("channel_map", channelMap).
			Set("time_candidate", frag.Header.TriggerTimestamp).
			Set("algorithm", "fake"))
	return rs, nil
}

func (d Decoders) trigger(channelMap string) dqm.Unpacker {
	return dqm.UnpackerFunc(func(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
		return triggerObjects(ri, sid, frag, channelMap)
	})
}

// TriggerPrimitive implements dqm.Decoders.
func (d Decoders) TriggerPrimitive(channelMap string) dqm.Unpacker { return d.trigger(channelMap) }

// TriggerActivity implements dqm.Decoders.
func (d Decoders) TriggerActivity(channelMap string) dqm.Unpacker { return d.trigger(channelMap) }

// TriggerCandidate implements dqm.Decoders.
func (d Decoders) TriggerCandidate(channelMap string) dqm.Unpacker { return d.trigger(channelMap) }
