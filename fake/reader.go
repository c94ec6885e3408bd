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
	"net/url"

	"github.com/dunedaq/dqm"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Faults are defects injected into a synthetic run so that checks have
// something to find.
type Faults struct {
	// MisalignedLinks TPC links start one frame late in every record.
	MisalignedLinks int

	// NoisyChannels channels of every TPC link have a very high RMS.
	NoisyChannels int

	// DeadPDSChannels channels of every PDS link read zero.
	DeadPDSChannels int

	// EmptyPDS makes every self-triggered DAPHNE fragment empty.
	EmptyPDS bool

	// BadPDSTimestamps makes DAPHNE links report irregular frame spacing.
	BadPDSTimestamps bool

	// MissingLinks TPC links never send their fragment although the trigger
	// record header requests them.
	MissingLinks int

	// COLDDATAOffset shifts the COLDDATA timestamps of every TPC link.
	COLDDATAOffset uint16
}

// Config describes a synthetic run.
type Config struct {
	Run         uint64
	Environment string
	Records     int
	Seed        int64

	// VD reads out the vertical drift bottom TPC instead of the horizontal
	// drift one.
	VD       bool
	TPCLinks int
	PDSLinks int

	// PDSStream reads the photon detectors out in streaming mode.
	PDSStream bool

	// Pulser sets the WIB pulser flag in every frame.
	Pulser bool

	// Frames per TPC fragment.
	Frames int

	Faults Faults
}

// DefaultConfig is a small healthy horizontal drift run.
func DefaultConfig() Config {
	return Config{
		Run:         1,
		Environment: "np04hd",
		Records:     5,
		TPCLinks:    4,
		PDSLinks:    2,
		Frames:      8,
	}
}

// Layout and timing of the synthetic detector.
const (
	TPCSourceBase     = 100
	PDSSourceBase     = 200
	TriggerSourceID   = 300
	triggerPeriodDTS  = 1000000
	preTriggerFrames  = 2
	windowTrailerDTS  = 1000
	triggerRecordTime = 62500000
)

// Reader is a dqm.RecordReader over a synthetic run.
type Reader struct {
	cfg  Config
	name string
	sids []dqm.SourceID
}

// NewReader returns a Reader for cfg.
func NewReader(cfg Config) *Reader {
	if cfg.Frames <= 0 {
		cfg.Frames = DefaultConfig().Frames
	}
	r := &Reader{
		cfg:  cfg,
		name: fmt.Sprintf("fake://run%06d", cfg.Run),
	}
	r.sids = append(r.sids, dqm.SourceID{Subsystem: dqm.SubsystemTRBuilder})
	for i := 0; i < cfg.TPCLinks-cfg.Faults.MissingLinks; i++ {
		r.sids = append(r.sids, dqm.SourceID{
			Subsystem: dqm.SubsystemDetectorReadout,
			ID:        uint32(TPCSourceBase + i),
			Detector:  r.tpcDetector(),
			Crate:     1,
			Slot:      uint16(i / 2),
			Stream:    uint16(i % 2),
		})
	}
	for i := 0; i < cfg.PDSLinks; i++ {
		r.sids = append(r.sids, dqm.SourceID{
			Subsystem: dqm.SubsystemDetectorReadout,
			ID:        uint32(PDSSourceBase + i),
			Detector:  dqm.DetHDPDS,
			Crate:     2,
			Slot:      uint16(i),
		})
	}
	r.sids = append(r.sids, dqm.SourceID{
		Subsystem: dqm.SubsystemTrigger,
		ID:        TriggerSourceID,
		Detector:  dqm.DetDAQ,
	})
	return r
}

func (r *Reader) tpcDetector() dqm.DetID {
	if r.cfg.VD {
		return dqm.DetVDBottomTPC
	}
	return dqm.DetHDTPC
}

// Name implements dqm.RecordReader.
func (r *Reader) Name() string { return r.name }

// RunInfo implements dqm.RecordReader.
func (r *Reader) RunInfo() (dqm.RunInfo, error) {
	return dqm.RunInfo{Run: r.cfg.Run, Environment: r.cfg.Environment}, nil
}

// RecordIDs implements dqm.RecordReader. Records are numbered from 1.
func (r *Reader) RecordIDs() ([]dqm.RecordID, error) {
	ret := make([]dqm.RecordID, r.cfg.Records)
	for i := range ret {
		ret[i] = dqm.RecordID{Trigger: uint64(i + 1)}
	}
	return ret, nil
}

func (r *Reader) checkRecord(rid dqm.RecordID) error {
	if rid.Trigger < 1 || rid.Trigger > uint64(r.cfg.Records) || rid.Sequence != 0 {
		return errors.Errorf("no record %v in %s", rid, r.name)
	}
	return nil
}

// SourceIDs implements dqm.RecordReader.
func (r *Reader) SourceIDs(rid dqm.RecordID) ([]dqm.SourceID, error) {
	if err := r.checkRecord(rid); err != nil {
		return nil, err
	}
	return append([]dqm.SourceID(nil), r.sids...), nil
}

func (r *Reader) triggerTimestamp(rid dqm.RecordID) uint64 {
	return triggerRecordTime + rid.Trigger*triggerPeriodDTS
}

// TriggerRecordHeader implements dqm.RecordReader.
func (r *Reader) TriggerRecordHeader(rid dqm.RecordID) (*dqm.TriggerRecordHeader, error) {
	if err := r.checkRecord(rid); err != nil {
		return nil, err
	}
	return &dqm.TriggerRecordHeader{
		TriggerNumber:       rid.Trigger,
		TriggerTimestamp:    r.triggerTimestamp(rid),
		Sequence:            rid.Sequence,
		TriggerType:         1,
		RequestedComponents: r.cfg.TPCLinks + r.cfg.PDSLinks + 1,
	}, nil
}

// Fragment implements dqm.RecordReader.
func (r *Reader) Fragment(rid dqm.RecordID, sid dqm.SourceID) (*dqm.Fragment, error) {
	if err := r.checkRecord(rid); err != nil {
		return nil, err
	}
	ts := r.triggerTimestamp(rid)
	begin := ts - preTriggerFrames*TicksPerFrame
	frames := r.cfg.Frames
	hdr := dqm.FragmentHeader{
		TriggerNumber:    rid.Trigger,
		TriggerTimestamp: ts,
		WindowBegin:      begin,
		WindowEnd:        begin + uint64(frames-1)*TicksPerFrame + windowTrailerDTS,
		RunNumber:        r.cfg.Run,
		Sequence:         rid.Sequence,
	}
	seed := r.cfg.Seed ^ int64(rid.Trigger<<20) ^ int64(sid.ID)
	frag := &dqm.Fragment{Detector: sid.Detector, Header: hdr}

	switch {
	case sid.Subsystem == dqm.SubsystemTrigger:
		frag.Type = dqm.FragmentTriggerCandidate
	case sid.Detector == dqm.DetHDPDS:
		frag.Type = dqm.FragmentDAPHNE
		if r.cfg.PDSStream {
			frag.Type = dqm.FragmentDAPHNEStream
		}
		if r.cfg.Faults.EmptyPDS && !r.cfg.PDSStream {
			break
		}
		p := daphnePayload{NFrames: uint32(frames), FirstTS: begin, Seed: seed, Dead: uint16(r.cfg.Faults.DeadPDSChannels)}
		if r.cfg.Faults.BadPDSTimestamps {
			p.BadTS = 1
		}
		frag.Data = encode(&p)
	case sid.Detector == r.tpcDetector():
		frag.Type = dqm.FragmentWIBEth
		link := int(sid.ID) - TPCSourceBase
		first := begin
		if link < r.cfg.Faults.MisalignedLinks {
			first += TicksPerFrame
		}
		p := wibPayload{
			NFrames:   uint32(frames),
			FirstTS:   first,
			Seed:      seed,
			Noisy:     uint16(r.cfg.Faults.NoisyChannels),
			CD0Offset: r.cfg.Faults.COLDDATAOffset,
		}
		if r.cfg.Pulser {
			p.Pulser = 1
		}
		frag.Data = encode(&p)
	default:
		return nil, errors.Errorf("no fragment for source %v", sid)
	}
	return frag, nil
}

// FromURL builds a Config from the query of a fake:// location, e.g.
// fake://?run=100&records=10&tpc=4&pds=2&noisy=1. Unset parameters keep
// their DefaultConfig values.
func FromURL(u *url.URL) (Config, error) {
	cfg := DefaultConfig()
	q := u.Query()
	var err error
	ints := map[string]*int{
		"records":    &cfg.Records,
		"tpc":        &cfg.TPCLinks,
		"pds":        &cfg.PDSLinks,
		"frames":     &cfg.Frames,
		"misaligned": &cfg.Faults.MisalignedLinks,
		"noisy":      &cfg.Faults.NoisyChannels,
		"dead":       &cfg.Faults.DeadPDSChannels,
		"missing":    &cfg.Faults.MissingLinks,
	}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			if *dst, err = cast.ToIntE(v); err != nil {
				return cfg, errors.Wrapf(err, "parameter %s", key)
			}
		}
	}
	bools := map[string]*bool{
		"vd":       &cfg.VD,
		"stream":   &cfg.PDSStream,
		"pulser":   &cfg.Pulser,
		"emptypds": &cfg.Faults.EmptyPDS,
		"badpdsts": &cfg.Faults.BadPDSTimestamps,
	}
	for key, dst := range bools {
		if v := q.Get(key); v != "" {
			if *dst, err = cast.ToBoolE(v); err != nil {
				return cfg, errors.Wrapf(err, "parameter %s", key)
			}
		}
	}
	if v := q.Get("run"); v != "" {
		if cfg.Run, err = cast.ToUint64E(v); err != nil {
			return cfg, errors.Wrap(err, "parameter run")
		}
	}
	if v := q.Get("seed"); v != "" {
		if cfg.Seed, err = cast.ToInt64E(v); err != nil {
			return cfg, errors.Wrap(err, "parameter seed")
		}
	}
	if v := q.Get("cdoffset"); v != "" {
		off, err := cast.ToUint16E(v)
		if err != nil {
			return cfg, errors.Wrap(err, "parameter cdoffset")
		}
		cfg.Faults.COLDDATAOffset = off
	}
	if v := q.Get("env"); v != "" {
		cfg.Environment = v
	} else if cfg.VD {
		cfg.Environment = "np02vd"
	}
	if cfg.Faults.MissingLinks > cfg.TPCLinks {
		return cfg, errors.Errorf("cannot drop %d of %d TPC links", cfg.Faults.MissingLinks, cfg.TPCLinks)
	}
	return cfg, nil
}

// Open is the dqm.OpenFunc for the fake scheme.
func Open(u *url.URL) (dqm.RecordReader, error) {
	cfg, err := FromURL(u)
	if err != nil {
		return nil, errors.Wrapf(err, "configuring %s", u)
	}
	return NewReader(cfg), nil
}

func init() {
	dqm.RegisterOpener("fake", Open)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
