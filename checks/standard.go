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
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
	"github.com/pkg/errors"
)

// SuiteConfig selects which checks NewStandardSuite registers.
type SuiteConfig struct {
	// VD selects the vertical drift TPC instead of the horizontal drift one.
	VD bool

	// PDS adds the photon detector sub-suite.
	PDS bool

	// WIBPulser means the WIBs ran in pulser mode, which disables the noise
	// and pedestal checks.
	WIBPulser bool

	Log   dqm.Logger
	Clock func() time.Time
}

// TPC settings per drift technology.
type tpcSettings struct {
	det     dqm.DetID
	rmsHigh []float64
	rmsLow  []float64
}

func (c SuiteConfig) tpc() tpcSettings {
	if c.VD {
		return tpcSettings{det: dqm.DetVDBottomTPC, rmsHigh: []float64{100}, rmsLow: []float64{12, 20}}
	}
	return tpcSettings{det: dqm.DetHDTPC, rmsHigh: []float64{100}, rmsLow: []float64{20, 15}}
}

func (c SuiteConfig) suiteOptions() []check.SuiteOption {
	opts := []check.SuiteOption{check.OptSuiteLogger(c.Log)}
	if c.Clock != nil {
		opts = append(opts, check.OptSuiteClock(c.Clock))
	}
	return opts
}

// Names of the suites NewStandardSuite builds.
const (
	StandardSuiteName = "dqm"
	PDSSuiteName      = "pds"
)

// NewStandardSuite builds the suite the analyzer runs after every batch of
// records.
func NewStandardSuite(cfg SuiteConfig) (*check.Suite, error) {
	tpc := cfg.tpc()
	name := tpc.det.Name()

	s := check.NewSuite(StandardSuiteName, cfg.suiteOptions()...)
	tests := []check.Test{
		NewAllExpectedFragments(),
		NewNFramesWIBEth(),
		NewTimestampDiffsWIBEth(tpc.det),
	}
	headers := HeaderValueChecks(tpc.det)
	tests = append(tests, headers[0], headers[1], NewCOLDDATATimestampsAligned(tpc.det))
	for _, h := range headers[2:] {
		tests = append(tests, h)
	}
	aligned := NewTimestampsAligned(tpc.det)
	aligned.Log = cfg.Log
	tests = append(tests, aligned)
	for _, t := range tests {
		if err := s.Register(t); err != nil {
			return nil, err
		}
	}

	if !cfg.WIBPulser {
		high, err := NewRMS(tpc.det, Above, tpc.rmsHigh...)
		if err != nil {
			return nil, err
		}
		low, err := NewRMS(tpc.det, Below, tpc.rmsLow...)
		if err != nil {
			return nil, err
		}
		ped, err := NewPedestal(tpc.det, nil, nil)
		if err != nil {
			return nil, err
		}
		high.Log, low.Log, ped.Log = cfg.Log, cfg.Log, cfg.Log
		if err := s.Register(high, "CheckRMS_"+name+"_High"); err != nil {
			return nil, err
		}
		if err := s.Register(low, "CheckRMS_"+name+"_Low"); err != nil {
			return nil, err
		}
		if err := s.Register(ped); err != nil {
			return nil, err
		}
	}

	if cfg.PDS {
		if err := s.Register(NewPDSSuite(cfg)); err != nil {
			return nil, errors.Wrap(err, "registering PDS suite")
		}
	}
	return s, nil
}

// NewPDSSuite builds the photon detector sub-suite.
func NewPDSSuite(cfg SuiteConfig) *check.Suite {
	aligned := NewTimestampsAligned(dqm.DetHDPDS)
	aligned.Log = cfg.Log
	return check.NewSuite(PDSSuiteName, cfg.suiteOptions()...).
		MustRegister(aligned, "CheckTimestampsAligned_PDS").
		MustRegister(NewEmptyFragmentsDAPHNE()).
		MustRegister(NewTimestampDiffsDAPHNE()).
		MustRegister(NewADCDataDAPHNE())
}
