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

// Package dqm provides the ingestion half of the data quality monitoring
// pipeline: it turns the trigger records of raw data files into indexed
// tables which checks (see the check package) can inspect.
//
// Processing happens in the following stages:
//
// 1. RecordReader
//
//    A RecordReader gives access to one raw data file: its run number and
//    operating environment, the records it holds, the source ids of each
//    record and the fragment each source contributed. The file format is
//    not known to this package; readers are registered by URL scheme with
//    RegisterOpener.
//
// 2. Dispatcher and Unpacker
//
//    Every fragment is decoded by an Unpacker chosen by the Dispatcher from a
//    fixed table keyed by fragment type and detector. The operating
//    environment selects the channel map handed to the decoder. Fragments
//    without an entry in the table are reported and only their source id
//    metadata is kept.
//
// 3. RecordProcessor
//
//    The RecordProcessor runs one unpacking task per source id of a record
//    on a bounded pool of goroutines and appends the rows of each task to a
//    shared Accumulator as it completes. A failing task is logged and
//    skipped unless the processor is configured to abort the record.
//
// 4. Finalize
//
//    Once every record has been processed, Finalize turns each accumulated
//    row set into a Table indexed by the columns its rows declare. The
//    resulting Dataset is read-only.
package dqm
