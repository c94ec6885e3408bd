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
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxWorkers is the default number of concurrent unpacking tasks per
// record.
const DefaultMaxWorkers = 10

// ErrTaskTimeout is the failure of an unpacking task which ran longer than
// the processor's TaskTimeout.
const ErrTaskTimeout = Error("unpacking task timed out")

// FailurePolicy decides what a failed unpacking task does to its record.
type FailurePolicy int

const (
	// SkipFailed logs a failed task and keeps the rows of its siblings.
	SkipFailed FailurePolicy = iota
	// AbortRecord discards the whole record when any task fails and returns
	// the error.
	AbortRecord
)

func (f FailurePolicy) String() string {
	switch f {
	case SkipFailed:
		return "skip"
	case AbortRecord:
		return "abort"
	}
	return "unknown"
}

// ParseFailurePolicy parses "skip" or "abort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "skip", "":
		return SkipFailed, nil
	case "abort":
		return AbortRecord, nil
	}
	return SkipFailed, errors.Errorf("unknown failure policy '%s', want skip or abort", s)
}

// RecordProcessor fans the source ids of a record out to a bounded pool of
// unpacking tasks and merges their rows into an Accumulator as they
// complete.
type RecordProcessor struct {
	MaxWorkers  int
	Prescales   Prescales
	TaskTimeout time.Duration
	Policy      FailurePolicy

	Dispatcher *Dispatcher
	Log        Logger
	Stats      Statter
}

// NewRecordProcessor returns a RecordProcessor with the default settings.
func NewRecordProcessor(d *Dispatcher) *RecordProcessor {
	return &RecordProcessor{
		MaxWorkers: DefaultMaxWorkers,
		Prescales:  DefaultPrescales(),
		Policy:     SkipFailed,
		Dispatcher: d,
		Log:        NopLogger{},
		Stats:      NopStatter{},
	}
}

// ProcessRecord unpacks every source id of one record and appends the rows
// to acc, which is returned. acc may be shared by many calls.
func (p *RecordProcessor) ProcessRecord(ctx context.Context, r RecordReader, rid RecordID, acc *Accumulator) (*Accumulator, error) {
	start := time.Now()
	info, err := r.RunInfo()
	if err != nil {
		return acc, errors.Wrapf(err, "reading run info of %s", r.Name())
	}
	sids, err := r.SourceIDs(rid)
	if err != nil {
		return acc, errors.Wrapf(err, "listing source ids of %v", rid)
	}
	rc := RecordContext{
		Index:       RecordIndex{Run: info.Run, Trigger: rid.Trigger, Sequence: rid.Sequence},
		ID:          rid,
		Environment: info.Environment,
		NFragments:  countFragments(sids),
		Prescales:   p.Prescales,
	}
	fp := &FragmentProcessor{Dispatcher: p.Dispatcher, Log: p.log(), Stats: p.stats()}

	// Rows are staged per record and reach acc only once the record is
	// complete, so a cancelled or aborted record leaves acc untouched.
	target := NewAccumulator()

	var failed int64
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers())
	for _, sid := range sids {
		if gctx.Err() != nil {
			break
		}
		sid := sid
		eg.Go(func() error {
			rs, err := p.runTask(gctx, fp, r, rc, sid)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				p.stats().Count(StatTasksFailed, 1, 1)
				if p.Policy == AbortRecord {
					return errors.Wrapf(err, "source id %v", sid)
				}
				p.log().Printf("skipping source id %v of record %v: %v", sid, rc.Index, err)
				return nil
			}
			n := target.Merge(rs)
			p.stats().Count(StatFragmentsProcessed, 1, 1)
			p.stats().Count(StatRowsMerged, int64(n), 1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return acc, errors.Wrapf(err, "processing record %v", rc.Index)
	}
	if err := ctx.Err(); err != nil {
		return acc, errors.Wrapf(err, "processing record %v", rc.Index)
	}
	acc.Merge(target.RowSets())
	p.stats().Count(StatRecordsProcessed, 1, 1)
	p.stats().Timing(StatRecordProcess, time.Since(start), 1)
	p.log().Debugf("processed record %v: %d source ids, %d failed", rc.Index, len(sids), atomic.LoadInt64(&failed))
	return acc, nil
}

type taskResult struct {
	rs  RowSets
	err error
}

// runTask runs one FragmentProcessor call, turning a panic or a timeout into
// an error. A timed out call keeps running in the background but its rows
// are dropped.
func (p *RecordProcessor) runTask(ctx context.Context, fp *FragmentProcessor, r RecordReader, rc RecordContext, sid SourceID) (RowSets, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan taskResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- taskResult{err: errors.Errorf("panic: %v", rec)}
			}
		}()
		rs, err := fp.Process(r, rc, sid)
		done <- taskResult{rs: rs, err: err}
	}()

	var timeout <-chan time.Time
	if p.TaskTimeout > 0 {
		t := time.NewTimer(p.TaskTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case res := <-done:
		return res.rs, res.err
	case <-timeout:
		return nil, errors.Wrapf(ErrTaskTimeout, "after %v", p.TaskTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *RecordProcessor) workers() int {
	if p.MaxWorkers <= 0 {
		return DefaultMaxWorkers
	}
	return p.MaxWorkers
}

func (p *RecordProcessor) log() Logger {
	if p.Log == nil {
		return NopLogger{}
	}
	return p.Log
}

func (p *RecordProcessor) stats() Statter {
	if p.Stats == nil {
		return NopStatter{}
	}
	return p.Stats
}

func countFragments(sids []SourceID) int {
	n := 0
	for _, sid := range sids {
		if sid.Subsystem != SubsystemTRBuilder {
			n++
		}
	}
	return n
}
