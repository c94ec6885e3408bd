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
	"sync"

	"github.com/dunedaq/dqm"
	"github.com/pkg/errors"
)

// stubReader serves the same set of fragments for every record.
type stubReader struct {
	name  string
	info  dqm.RunInfo
	rids  []dqm.RecordID
	sids  []dqm.SourceID
	frags map[uint32]*dqm.Fragment
}

func newStubReader(name string, run uint64, env string, triggers ...uint64) *stubReader {
	r := &stubReader{
		name:  name,
		info:  dqm.RunInfo{Run: run, Environment: env},
		frags: make(map[uint32]*dqm.Fragment),
	}
	for _, t := range triggers {
		r.rids = append(r.rids, dqm.RecordID{Trigger: t})
	}
	r.sids = append(r.sids, dqm.SourceID{Subsystem: dqm.SubsystemTRBuilder, ID: 0})
	return r
}

func (r *stubReader) addFragment(id uint32, ft dqm.FragmentType, det dqm.DetID) *stubReader {
	sub := dqm.SubsystemDetectorReadout
	if det == dqm.DetDAQ {
		sub = dqm.SubsystemTrigger
	}
	r.sids = append(r.sids, dqm.SourceID{Subsystem: sub, ID: id, Detector: det, Crate: 1, Slot: uint16(id % 5), Stream: uint16(id)})
	r.frags[id] = &dqm.Fragment{Type: ft, Detector: det, Data: make([]byte, 64)}
	return r
}

func (r *stubReader) Name() string {
	return r.name
}

func (r *stubReader) RunInfo() (dqm.RunInfo, error) {
	return r.info, nil
}

func (r *stubReader) RecordIDs() ([]dqm.RecordID, error) {
	return r.rids, nil
}

func (r *stubReader) SourceIDs(rid dqm.RecordID) ([]dqm.SourceID, error) {
	return r.sids, nil
}

func (r *stubReader) Fragment(rid dqm.RecordID, sid dqm.SourceID) (*dqm.Fragment, error) {
	f, ok := r.frags[sid.ID]
	if !ok {
		return nil, errors.Errorf("no fragment for %v", sid)
	}
	c := *f
	c.Header.TriggerNumber = rid.Trigger
	c.Header.Sequence = rid.Sequence
	c.Header.RunNumber = r.info.Run
	return &c, nil
}

func (r *stubReader) TriggerRecordHeader(rid dqm.RecordID) (*dqm.TriggerRecordHeader, error) {
	return &dqm.TriggerRecordHeader{TriggerNumber: rid.Trigger, Sequence: rid.Sequence, RequestedComponents: len(r.frags)}, nil
}

// stubDecoders hands out the same unpack function for every decoder and
// remembers which channel maps were requested.
type stubDecoders struct {
	unpack dqm.UnpackerFunc

	mu   sync.Mutex
	maps []string
}

func (d *stubDecoders) saw(decoder, cm string) dqm.Unpacker {
	d.mu.Lock()
	d.maps = append(d.maps, decoder+":"+cm)
	d.mu.Unlock()
	if d.unpack == nil {
		return dqm.UnpackerFunc(headerRows)
	}
	return d.unpack
}

func (d *stubDecoders) requested() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.maps...)
}

func (d *stubDecoders) WIBEth(cm string, p dqm.Prescales) dqm.Unpacker {
	return d.saw("WIBEth", cm)
}

func (d *stubDecoders) DAPHNE(p dqm.Prescales) dqm.Unpacker {
	return d.saw("DAPHNE", "")
}

func (d *stubDecoders) DAPHNEStream(p dqm.Prescales) dqm.Unpacker {
	return d.saw("DAPHNEStream", "")
}

func (d *stubDecoders) TriggerPrimitive(cm string) dqm.Unpacker {
	return d.saw("TriggerPrimitive", cm)
}

func (d *stubDecoders) TriggerActivity(cm string) dqm.Unpacker {
	return d.saw("TriggerActivity", cm)
}

func (d *stubDecoders) TriggerCandidate(cm string) dqm.Unpacker {
	return d.saw("TriggerCandidate", cm)
}

func headerRows(ri dqm.RecordIndex, sid dqm.SourceID, frag *dqm.Fragment) (dqm.RowSets, error) {
	rs := dqm.RowSets{}
	rs.Add(dqm.TableFragmentHeader, dqm.FragmentHeaderRow(ri, sid, frag))
	rs.Add(dqm.TableDAQHeader, dqm.DAQHeaderRow(ri, sid, frag.Detector, 10, 1000))
	return rs, nil
}
