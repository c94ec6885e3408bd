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
	"sort"

	"github.com/pkg/errors"
)

// Unpacker turns one fragment into rows grouped by table name.
// Implementations must be safe to call from several goroutines.
type Unpacker interface {
	Unpack(ri RecordIndex, sid SourceID, frag *Fragment) (RowSets, error)
}

// UnpackerFunc adapts a function to the Unpacker interface.
type UnpackerFunc func(ri RecordIndex, sid SourceID, frag *Fragment) (RowSets, error)

// Unpack implements Unpacker.
func (f UnpackerFunc) Unpack(ri RecordIndex, sid SourceID, frag *Fragment) (RowSets, error) {
	return f(ri, sid, frag)
}

// Prescales reduce the number of analysis and waveform rows decoders emit.
// A nil Waveform prescale means no waveform rows at all.
type Prescales struct {
	Analysis int
	Waveform *int
}

// DefaultPrescales keeps every analysis row and no waveforms.
func DefaultPrescales() Prescales {
	return Prescales{Analysis: 1}
}

// Decoders is the set of hardware specific field decoders. They are provided
// from outside this package; the Dispatcher only decides which one applies to
// a fragment.
type Decoders interface {
	WIBEth(channelMap string, p Prescales) Unpacker
	DAPHNE(p Prescales) Unpacker
	DAPHNEStream(p Prescales) Unpacker
	TriggerPrimitive(channelMap string) Unpacker
	TriggerActivity(channelMap string) Unpacker
	TriggerCandidate(channelMap string) Unpacker
}

// AnyDetector in an UnpackerKey matches fragments from every detector.
const AnyDetector DetID = -1

// UnpackerKey selects a dispatch entry.
type UnpackerKey struct {
	Fragment FragmentType
	Detector DetID
}

// UnpackerFactory builds an Unpacker for a resolved channel map.
type UnpackerFactory func(channelMap string, p Prescales) Unpacker

// ChannelMaps maps operating environment names to channel map names.
type ChannelMaps map[string]string

// Channel maps of the known operating environments.
var (
	HDChannelMaps = ChannelMaps{
		"np04hd":        "PD2HDChannelMap",
		"np04hdcoldbox": "HDColdboxChannelMap",
		"iceberghd":     "ICEBERGChannelMap",
		"iceberg":       "ICEBERGChannelMap",
	}
	VDChannelMaps = ChannelMaps{
		"np02vd":        "PD2HDChannelMap",
		"np02vdcoldbox": "VDColdboxChannelMap",
		"icebergvd":     "ICEBERGChannelMap",
	}
	TriggerChannelMaps = mergeMaps(HDChannelMaps, VDChannelMaps)
)

func mergeMaps(ms ...ChannelMaps) ChannelMaps {
	ret := ChannelMaps{}
	for _, m := range ms {
		for k, v := range m {
			ret[k] = v
		}
	}
	return ret
}

// ErrUnknownEnvironment is returned by a strict Dispatcher when an operating
// environment has no channel map.
const ErrUnknownEnvironment = Error("unknown operating environment")

type dispatchEntry struct {
	factory UnpackerFactory
	maps    ChannelMaps
}

// Dispatcher selects the Unpacker for a fragment from a fixed table keyed by
// fragment type and detector.
type Dispatcher struct {
	entries map[UnpackerKey]dispatchEntry
	strict  bool
	log     Logger
}

// DispatcherOption is a functional option for NewDispatcher.
type DispatcherOption func(d *Dispatcher)

// OptDispatcherStrict makes Resolve fail with ErrUnknownEnvironment instead
// of continuing with an empty channel map name.
func OptDispatcherStrict(strict bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

// OptDispatcherLogger sets the logger diagnostics are written to.
func OptDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher builds the dispatch table over the given decoders.
func NewDispatcher(dec Decoders, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		entries: make(map[UnpackerKey]dispatchEntry),
		log:     NopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.entries[UnpackerKey{FragmentWIBEth, DetHDTPC}] = dispatchEntry{factory: dec.WIBEth, maps: HDChannelMaps}
	d.entries[UnpackerKey{FragmentWIBEth, DetVDBottomTPC}] = dispatchEntry{factory: dec.WIBEth, maps: VDChannelMaps}
	d.entries[UnpackerKey{FragmentDAPHNEStream, AnyDetector}] = dispatchEntry{
		factory: func(_ string, p Prescales) Unpacker { return dec.DAPHNEStream(p) },
	}
	d.entries[UnpackerKey{FragmentDAPHNE, AnyDetector}] = dispatchEntry{
		factory: func(_ string, p Prescales) Unpacker { return dec.DAPHNE(p) },
	}
	d.entries[UnpackerKey{FragmentTriggerPrimitive, AnyDetector}] = dispatchEntry{
		factory: func(cm string, _ Prescales) Unpacker { return dec.TriggerPrimitive(cm) },
		maps:    TriggerChannelMaps,
	}
	d.entries[UnpackerKey{FragmentTriggerActivity, AnyDetector}] = dispatchEntry{
		factory: func(cm string, _ Prescales) Unpacker { return dec.TriggerActivity(cm) },
		maps:    TriggerChannelMaps,
	}
	d.entries[UnpackerKey{FragmentTriggerCandidate, AnyDetector}] = dispatchEntry{
		factory: func(cm string, _ Prescales) Unpacker { return dec.TriggerCandidate(cm) },
		maps:    TriggerChannelMaps,
	}
	return d
}

// Keys returns the dispatch table keys ordered by fragment type then detector.
func (d *Dispatcher) Keys() []UnpackerKey {
	keys := make([]UnpackerKey, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Fragment != keys[j].Fragment {
			return keys[i].Fragment < keys[j].Fragment
		}
		return keys[i].Detector < keys[j].Detector
	})
	return keys
}

// Resolve returns the Unpacker for a fragment type and detector in the given
// operating environment. A nil Unpacker with a nil error means the
// combination is not known.
func (d *Dispatcher) Resolve(ft FragmentType, det DetID, env string, p Prescales) (Unpacker, error) {
	e, ok := d.entries[UnpackerKey{ft, det}]
	if !ok {
		e, ok = d.entries[UnpackerKey{ft, AnyDetector}]
		if !ok {
			return nil, nil
		}
	}
	var mapName string
	if e.maps != nil {
		mapName, ok = e.maps[env]
		if !ok {
			if d.strict {
				return nil, errors.Wrapf(ErrUnknownEnvironment, "'%s' for %s_%s", env, det.Name(), ft)
			}
			d.log.Printf("no channel map for operating environment '%s' (%s_%s), continuing without one", env, det.Name(), ft)
		}
	}
	return e.factory(mapName, p), nil
}
