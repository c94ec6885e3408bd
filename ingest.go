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
	"context"

	"github.com/pkg/errors"
)

// Ingester drives a RecordProcessor over the records of one or more files
// and collects everything in a single Accumulator.
type Ingester struct {
	// NRecords is the total number of records to process over all files. A
	// negative value processes everything.
	NRecords int

	processor *RecordProcessor
	log       Logger
}

// NewIngester returns an Ingester processing one record.
func NewIngester(p *RecordProcessor, log Logger) *Ingester {
	if log == nil {
		log = NopLogger{}
	}
	return &Ingester{
		NRecords:  1,
		processor: p,
		log:       log,
	}
}

// Run processes records from each reader in turn until NRecords have been
// processed, and returns the filled Accumulator.
func (n *Ingester) Run(ctx context.Context, readers ...RecordReader) (*Accumulator, error) {
	acc := NewAccumulator()
	processed := 0
	for _, r := range readers {
		if n.NRecords >= 0 && processed >= n.NRecords {
			break
		}
		n.log.Printf("processing file %s", r.Name())
		rids, err := r.RecordIDs()
		if err != nil {
			return acc, errors.Wrapf(err, "listing records of %s", r.Name())
		}
		todo := rids
		if n.NRecords >= 0 && n.NRecords-processed < len(rids) {
			todo = rids[:n.NRecords-processed]
		}
		n.log.Printf("will process %d of %d records", len(todo), len(rids))
		for _, rid := range todo {
			n.log.Debugf("processing record %v", rid)
			if _, err := n.processor.ProcessRecord(ctx, r, rid, acc); err != nil {
				return acc, errors.Wrapf(err, "file %s", r.Name())
			}
			processed++
		}
	}
	return acc, nil
}

// RunLocations opens a RecordReader for every location with Open and runs
// over them in order.
func (n *Ingester) RunLocations(ctx context.Context, locations ...string) (*Accumulator, error) {
	readers := make([]RecordReader, 0, len(locations))
	for _, loc := range locations {
		r, err := Open(loc)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	return n.Run(ctx, readers...)
}
