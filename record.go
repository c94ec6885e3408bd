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
	"fmt"
)

// Error is a constant error type for the sentinel errors of this package.
type Error string

func (e Error) Error() string { return string(e) }

// RecordIndex identifies one trigger record. Sequence distinguishes the
// pieces of a record which was split or resent under the same trigger number.
type RecordIndex struct {
	Run      uint64
	Trigger  uint64
	Sequence uint64
}

// IndexNames returns the names of the columns which hold a RecordIndex in
// every table.
func (r RecordIndex) IndexNames() []string {
	return []string{ColRun, ColTrigger, ColSequence}
}

func (r RecordIndex) String() string {
	return fmt.Sprintf("(run=%d, trigger=%d, sequence=%d)", r.Run, r.Trigger, r.Sequence)
}

// Column names shared by the rows of all tables.
const (
	ColRun      = "run"
	ColTrigger  = "trigger"
	ColSequence = "sequence"
	ColSrcID    = "src_id"
)

// RecordID is the key of a record within a single raw data file.
type RecordID struct {
	Trigger  uint64
	Sequence uint64
}

func (r RecordID) String() string {
	return fmt.Sprintf("(%d, %d)", r.Trigger, r.Sequence)
}

// Subsystem is the DAQ subsystem a source id belongs to.
type Subsystem int

// Subsystems, numbered as the DAQ numbers them.
const (
	SubsystemUnknown Subsystem = iota
	SubsystemDetectorReadout
	SubsystemHwSignalsInterface
	SubsystemTrigger
	SubsystemTRBuilder
)

var subsystemNames = map[Subsystem]string{
	SubsystemUnknown:            "kUnknown",
	SubsystemDetectorReadout:    "kDetectorReadout",
	SubsystemHwSignalsInterface: "kHwSignalsInterface",
	SubsystemTrigger:            "kTrigger",
	SubsystemTRBuilder:          "kTRBuilder",
}

func (s Subsystem) String() string {
	if n, ok := subsystemNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Subsystem(%d)", int(s))
}

// SourceID identifies one hardware data source within a record. The geo
// fields are only meaningful for detector readout sources.
type SourceID struct {
	Subsystem Subsystem
	ID        uint32
	Detector  DetID
	Crate     uint16
	Slot      uint16
	Stream    uint16
}

func (s SourceID) String() string {
	return fmt.Sprintf("%s:%d", s.Subsystem, s.ID)
}

// FragmentType is the kind of payload carried by a fragment.
type FragmentType int

// Fragment types.
const (
	FragmentUnknown          FragmentType = 0
	FragmentProtoWIB         FragmentType = 1
	FragmentWIB              FragmentType = 2
	FragmentDAPHNE           FragmentType = 3
	FragmentTDEAMC           FragmentType = 4
	FragmentFWTriggerPrim    FragmentType = 5
	FragmentTriggerPrimitive FragmentType = 6
	FragmentTriggerActivity  FragmentType = 7
	FragmentTriggerCandidate FragmentType = 8
	FragmentHardwareSignal   FragmentType = 9
	FragmentPACMAN           FragmentType = 10
	FragmentMPD              FragmentType = 11
	FragmentWIBEth           FragmentType = 12
	FragmentDAPHNEStream     FragmentType = 13
	FragmentCRT              FragmentType = 14
	FragmentCTB              FragmentType = 15
)

var fragmentTypeNames = map[FragmentType]string{
	FragmentUnknown:          "kUnknown",
	FragmentProtoWIB:         "kProtoWIB",
	FragmentWIB:              "kWIB",
	FragmentDAPHNE:           "kDAPHNE",
	FragmentTDEAMC:           "kTDE_AMC",
	FragmentFWTriggerPrim:    "kFW_TriggerPrimitive",
	FragmentTriggerPrimitive: "kTriggerPrimitive",
	FragmentTriggerActivity:  "kTriggerActivity",
	FragmentTriggerCandidate: "kTriggerCandidate",
	FragmentHardwareSignal:   "kHardwareSignal",
	FragmentPACMAN:           "kPACMAN",
	FragmentMPD:              "kMPD",
	FragmentWIBEth:           "kWIBEth",
	FragmentDAPHNEStream:     "kDAPHNEStream",
	FragmentCRT:              "kCRT",
	FragmentCTB:              "kCTB",
}

func (f FragmentType) String() string {
	if n, ok := fragmentTypeNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FragmentType(%d)", int(f))
}

// DetID is the subdetector a fragment was read out from.
type DetID int

// Subdetectors.
const (
	DetUnknown       DetID = 0
	DetDAQ           DetID = 1
	DetHDPDS         DetID = 2
	DetHDTPC         DetID = 3
	DetHDCRT         DetID = 4
	DetVDCathodePDS  DetID = 8
	DetVDMembranePDS DetID = 9
	DetVDBottomTPC   DetID = 10
	DetVDTopTPC      DetID = 11
	DetNDLArTPC      DetID = 32
	DetNDLArPDS      DetID = 33
	DetNDGAr         DetID = 34
)

var detIDNames = map[DetID]string{
	DetUnknown:       "kUnknown",
	DetDAQ:           "kDAQ",
	DetHDPDS:         "kHD_PDS",
	DetHDTPC:         "kHD_TPC",
	DetHDCRT:         "kHD_CRT",
	DetVDCathodePDS:  "kVD_CathodePDS",
	DetVDMembranePDS: "kVD_MembranePDS",
	DetVDBottomTPC:   "kVD_BottomTPC",
	DetVDTopTPC:      "kVD_TopTPC",
	DetNDLArTPC:      "kNDLAr_TPC",
	DetNDLArPDS:      "kNDLAr_PDS",
	DetNDGAr:         "kND_GAr",
}

func (d DetID) String() string {
	if n, ok := detIDNames[d]; ok {
		return n
	}
	return fmt.Sprintf("DetID(%d)", int(d))
}

// Name is the detector name without the enum prefix, e.g. "HD_TPC".
func (d DetID) Name() string {
	s := d.String()
	if len(s) > 1 && s[0] == 'k' {
		return s[1:]
	}
	return s
}

// Names of the tables produced by the ingestion core itself or by every
// decoder.
const (
	TableSourceID         = "sid"
	TableTriggerRecordHdr = "trh"
	TableFragmentHeader   = "frh"
	TableDAQHeader        = "daqh"
	detectorHeaderPrefix  = "deth"
	detectorPayloadPrefix = "detd"
)

// DetectorHeaderTable is the name of the table holding per-fragment header
// summaries for a detector and fragment type, e.g. "deth_kHD_TPC_kWIBEth".
func DetectorHeaderTable(det DetID, ft FragmentType) string {
	return fmt.Sprintf("%s_%s_%s", detectorHeaderPrefix, det, ft)
}

// DetectorDataTable is the name of the table holding per-channel payload
// summaries for a detector and fragment type, e.g. "detd_kHD_TPC_kWIBEth".
func DetectorDataTable(det DetID, ft FragmentType) string {
	return fmt.Sprintf("%s_%s_%s", detectorPayloadPrefix, det, ft)
}
