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
	"sort"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
	"github.com/pkg/errors"
)

// ErrInvalidThresholds is returned when a per-plane value list does not have
// one, two or three entries.
const ErrInvalidThresholds = check.Error("per-plane values need 1, 2 or 3 entries")

// PlaneValues expands a threshold list to one value per wire plane: one
// value applies to all planes, two values are induction then collection,
// three values are per plane.
func PlaneValues(vals ...float64) ([3]float64, error) {
	switch len(vals) {
	case 1:
		return [3]float64{vals[0], vals[0], vals[0]}, nil
	case 2:
		return [3]float64{vals[0], vals[0], vals[1]}, nil
	case 3:
		return [3]float64{vals[0], vals[1], vals[2]}, nil
	}
	return [3]float64{}, errors.Wrapf(ErrInvalidThresholds, "got %d: %v", len(vals), vals)
}

// Comparison decides when a channel value is out of range.
type Comparison int

const (
	// Above flags values greater than the threshold.
	Above Comparison = iota
	// Below flags values less than the threshold.
	Below
)

func (c Comparison) out(v, threshold float64) bool {
	if c == Below {
		return v < threshold
	}
	return v > threshold
}

func (c Comparison) String() string {
	if c == Below {
		return "<"
	}
	return ">"
}

type channelAgg struct {
	plane int
	sum   float64
	n     int
}

// channelMeans averages column over all rows of each channel. Rows on
// planes other than 0, 1 and 2 are ignored.
func channelMeans(t *dqm.Table, column string) (map[int64]*channelAgg, error) {
	ret := make(map[int64]*channelAgg)
	for _, r := range t.Rows() {
		plane, err := dqm.Int64(r, colPlane)
		if err != nil {
			return nil, err
		}
		if plane < 0 || plane > 2 {
			continue
		}
		ch, err := dqm.Int64(r, colChannel)
		if err != nil {
			return nil, err
		}
		v, err := dqm.Float64(r, column)
		if err != nil {
			return nil, err
		}
		a, ok := ret[ch]
		if !ok {
			a = &channelAgg{plane: int(plane)}
			ret[ch] = a
		}
		a.sum += v
		a.n++
	}
	return ret, nil
}

func sortedChannels(m map[int64]*channelAgg) []int64 {
	ret := make([]int64, 0, len(m))
	for ch := range m {
		ret = append(ret, ch)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// RMS flags channels whose mean ADC RMS is above (or below) a per-plane
// threshold.
type RMS struct {
	check.Base
	Thresholds [3]float64
	Op         Comparison
	Log        dqm.Logger
	table      string
}

// NewRMS returns an RMS check for one detector. See PlaneValues for how
// thresholds are interpreted.
func NewRMS(det dqm.DetID, op Comparison, thresholds ...float64) (*RMS, error) {
	th, err := PlaneValues(thresholds...)
	if err != nil {
		return nil, errors.Wrap(err, "RMS thresholds")
	}
	return &RMS{
		Base:       check.Base{TestName: "CheckRMS_" + det.Name()},
		Thresholds: th,
		Op:         op,
		table:      dqm.DetectorDataTable(det, dqm.FragmentWIBEth),
	}, nil
}

// Run implements check.Test.
func (c *RMS) Run(ds *dqm.Dataset) (check.Result, error) {
	detd, ok := ds.Table(c.table)
	if !ok {
		return notFound(c.table), nil
	}
	means, err := channelMeans(detd, colADCRMS)
	if err != nil {
		return check.Result{}, err
	}
	bad := 0
	for _, ch := range sortedChannels(means) {
		a := means[ch]
		rms := a.sum / float64(a.n)
		if c.Op.out(rms, c.Thresholds[a.plane]) {
			bad++
			logger(c.Log).Debugf("channel %d plane %d rms %.2f %s %.2f", ch, a.plane, rms, c.Op, c.Thresholds[a.plane])
		}
	}
	if bad > 0 {
		return check.Resultf(check.Bad, "%d channels have RMS outside of range.", bad), nil
	}
	return check.Okay(), nil
}

// Default pedestal bounds, induction then collection.
var (
	DefaultPedestalLower = []float64{7500, 200}
	DefaultPedestalUpper = []float64{9500, 2000}
)

// Pedestal flags channels whose mean ADC value lies outside per-plane
// bounds.
type Pedestal struct {
	check.Base
	Lower, Upper [3]float64
	Log          dqm.Logger
	table        string
}

// NewPedestal returns a Pedestal check for one detector. Nil bounds select
// the defaults.
func NewPedestal(det dqm.DetID, lower, upper []float64) (*Pedestal, error) {
	if lower == nil {
		lower = DefaultPedestalLower
	}
	if upper == nil {
		upper = DefaultPedestalUpper
	}
	lo, err := PlaneValues(lower...)
	if err != nil {
		return nil, errors.Wrap(err, "lower pedestal bounds")
	}
	hi, err := PlaneValues(upper...)
	if err != nil {
		return nil, errors.Wrap(err, "upper pedestal bounds")
	}
	return &Pedestal{
		Base:  check.Base{TestName: "CheckPedestal_" + det.Name()},
		Lower: lo,
		Upper: hi,
		table: dqm.DetectorDataTable(det, dqm.FragmentWIBEth),
	}, nil
}

// Run implements check.Test.
func (c *Pedestal) Run(ds *dqm.Dataset) (check.Result, error) {
	detd, ok := ds.Table(c.table)
	if !ok {
		return notFound(c.table), nil
	}
	means, err := channelMeans(detd, colADCMean)
	if err != nil {
		return check.Result{}, err
	}
	bad := 0
	for _, ch := range sortedChannels(means) {
		a := means[ch]
		mean := a.sum / float64(a.n)
		if mean < c.Lower[a.plane] || mean > c.Upper[a.plane] {
			bad++
			logger(c.Log).Debugf("channel %d plane %d pedestal %.2f outside [%.2f, %.2f]", ch, a.plane, mean, c.Lower[a.plane], c.Upper[a.plane])
		}
	}
	if bad > 0 {
		return check.Resultf(check.Bad, "%d channels have pedestal outside of range.", bad), nil
	}
	return check.Okay(), nil
}
