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

package dqm

import (
	"github.com/pkg/errors"
)

// RecordContext is what every unpacking task of one record shares.
type RecordContext struct {
	Index       RecordIndex
	ID          RecordID
	Environment string
	NFragments  int
	Prescales   Prescales
}

// FragmentProcessor unpacks everything one source id contributed to a
// record.
type FragmentProcessor struct {
	Dispatcher *Dispatcher
	Log        Logger
	Stats      Statter
}

// Process unpacks the source id metadata and, depending on the subsystem,
// the trigger record header or the fragment payload. A fragment without a
// known unpacker is logged and yields only the metadata.
func (p *FragmentProcessor) Process(r RecordReader, rc RecordContext, sid SourceID) (RowSets, error) {
	ret := RowSets{}
	ret.Add(TableSourceID, SourceIDRow(rc.Index, sid))

	switch sid.Subsystem {
	case SubsystemTRBuilder:
		trh, err := r.TriggerRecordHeader(rc.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "reading trigger record header of %v", rc.ID)
		}
		ret.Add(TableTriggerRecordHdr, TriggerRecordHeaderRow(rc.Index, trh, rc.NFragments))
		return ret, nil
	case SubsystemDetectorReadout, SubsystemTrigger:
		frag, err := r.Fragment(rc.ID, sid)
		if err != nil {
			return nil, errors.Wrapf(err, "reading fragment %v of %v", sid, rc.ID)
		}
		u, err := p.Dispatcher.Resolve(frag.Type, frag.Detector, rc.Environment, rc.Prescales)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving unpacker for %v", sid)
		}
		if u == nil {
			p.log().Printf("unknown fragment %s_%s. source id %v", frag.Detector.Name(), frag.Type, sid)
			p.stats().Count(StatFragmentsUnknown, 1, 1)
			return ret, nil
		}
		out, err := u.Unpack(rc.Index, sid, frag)
		if err != nil {
			return nil, errors.Wrapf(err, "unpacking %s_%s fragment %v", frag.Detector.Name(), frag.Type, sid)
		}
		return ret.Merge(out), nil
	}
	return ret, nil
}

func (p *FragmentProcessor) log() Logger {
	if p.Log == nil {
		return NopLogger{}
	}
	return p.Log
}

func (p *FragmentProcessor) stats() Statter {
	if p.Stats == nil {
		return NopStatter{}
	}
	return p.Stats
}

// SourceIDRow is the metadata row every source id contributes to the "sid"
// table.
func SourceIDRow(ri RecordIndex, sid SourceID) *MapRow {
	return NewRecordRow(ri, ColSrcID).
		Set(ColSrcID, sid.ID).
		Set("subsystem", int(sid.Subsystem)).
		Set("subsystem_name", sid.Subsystem.String()).
		Set("det_id", int(sid.Detector)).
		Set("crate_id", sid.Crate).
		Set("slot_id", sid.Slot).
		Set("stream_id", sid.Stream)
}

// TriggerRecordHeaderRow is the row a record's header contributes to the
// "trh" table.
func TriggerRecordHeaderRow(ri RecordIndex, trh *TriggerRecordHeader, nFragments int) *MapRow {
	return NewRecordRow(ri).
		Set("trigger_number", trh.TriggerNumber).
		Set("trigger_timestamp_dts", trh.TriggerTimestamp).
		Set("trigger_type", trh.TriggerType).
		Set("max_sequence_number", trh.MaxSequenceNumber).
		Set("error_bits", trh.ErrorBits).
		Set("n_requested_components", trh.RequestedComponents).
		Set("n_fragments", nFragments)
}

// FragmentHeaderRow is the row decoders emit into the "frh" table for every
// fragment they unpack.
func FragmentHeaderRow(ri RecordIndex, sid SourceID, frag *Fragment) *MapRow {
	return NewRecordRow(ri, ColSrcID).
		Set(ColSrcID, sid.ID).
		Set("trigger_number", frag.Header.TriggerNumber).
		Set("trigger_timestamp_dts", frag.Header.TriggerTimestamp).
		Set("window_begin_dts", frag.Header.WindowBegin).
		Set("window_end_dts", frag.Header.WindowEnd).
		Set("run_number", frag.Header.RunNumber).
		Set("error_bits", frag.Header.ErrorBits).
		Set("sequence_number", frag.Header.Sequence).
		Set("fragment_type", int(frag.Type)).
		Set("det_id", int(frag.Detector)).
		Set("data_size_bytes", len(frag.Data))
}

// DAQHeaderRow is the row decoders emit into the "daqh" table: the readout
// geography of a fragment, how many frames it holds and the timestamp of
// the first one.
func DAQHeaderRow(ri RecordIndex, sid SourceID, det DetID, nObj int, firstTimestamp uint64) *MapRow {
	return NewRecordRow(ri, ColSrcID).
		Set(ColSrcID, sid.ID).
		Set("det_id", int(det)).
		Set("crate_id", sid.Crate).
		Set("slot_id", sid.Slot).
		Set("stream_id", sid.Stream).
		Set("n_obj", nObj).
		Set("timestamp_first_dts", firstTimestamp)
}
