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
	"net/url"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// RecordReader is the capability to read trigger records out of one raw data
// file. Implementations must allow concurrent calls to Fragment for
// different source ids of the same record.
type RecordReader interface {
	// Name identifies the underlying file in logs.
	Name() string

	// RunInfo returns the run level metadata of the file.
	RunInfo() (RunInfo, error)

	// RecordIDs returns the records in the file in file order.
	RecordIDs() ([]RecordID, error)

	// SourceIDs returns the sources which contributed to a record.
	SourceIDs(rid RecordID) ([]SourceID, error)

	// Fragment returns the fragment a source contributed to a record.
	Fragment(rid RecordID, sid SourceID) (*Fragment, error)

	// TriggerRecordHeader returns the header of a record.
	TriggerRecordHeader(rid RecordID) (*TriggerRecordHeader, error)
}

// RunInfo is the run level metadata stored with every raw data file.
type RunInfo struct {
	Run         uint64
	Environment string
}

// FragmentHeader holds the generic header fields every fragment carries.
type FragmentHeader struct {
	TriggerNumber    uint64
	TriggerTimestamp uint64
	WindowBegin      uint64
	WindowEnd        uint64
	RunNumber        uint64
	ErrorBits        uint32
	Sequence         uint64
}

// Fragment is one source's raw contribution to a record.
type Fragment struct {
	Type     FragmentType
	Detector DetID
	Header   FragmentHeader
	Data     []byte
}

// TriggerRecordHeader holds the fields of a record's header.
type TriggerRecordHeader struct {
	TriggerNumber       uint64
	TriggerTimestamp    uint64
	Sequence            uint64
	MaxSequenceNumber   uint64
	TriggerType         uint64
	ErrorBits           uint32
	RequestedComponents int
}

// OpenFunc opens a RecordReader for a location.
type OpenFunc func(u *url.URL) (RecordReader, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]OpenFunc{}
)

// RegisterOpener makes a reader implementation available to Open for
// locations with the given URL scheme. Plain paths have the scheme "file".
func RegisterOpener(scheme string, fn OpenFunc) {
	openersMu.Lock()
	defer openersMu.Unlock()
	if fn == nil {
		panic("dqm: RegisterOpener with nil OpenFunc")
	}
	if _, dup := openers[scheme]; dup {
		panic("dqm: RegisterOpener called twice for scheme " + scheme)
	}
	openers[scheme] = fn
}

// Schemes returns the sorted list of registered reader schemes.
func Schemes() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	ret := make([]string, 0, len(openers))
	for s := range openers {
		ret = append(ret, s)
	}
	sort.Strings(ret)
	return ret
}

// Open resolves a RecordReader for location using the opener registered for
// its scheme.
func Open(location string) (RecordReader, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing location '%s'", location)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "file"
	}
	openersMu.RLock()
	fn, ok := openers[scheme]
	openersMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no record reader registered for scheme '%s' (have %v)", scheme, Schemes())
	}
	r, err := fn(u)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", location)
	}
	return r, nil
}
