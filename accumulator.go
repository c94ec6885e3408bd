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
	"sync"
)

// Accumulator collects rows by table name across every record of a run. It
// is append only and safe for concurrent use; merges are serialized.
type Accumulator struct {
	mu     sync.Mutex
	tables map[string][]Row
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		tables: make(map[string][]Row),
	}
}

// Merge appends the rows of every table in rs to the accumulated rows of the
// same name, creating tables as needed.
func (a *Accumulator) Merge(rs RowSets) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for name, rows := range rs {
		a.tables[name] = append(a.tables[name], rows...)
		n += len(rows)
	}
	return n
}

// Names returns the sorted names of all tables seen so far, including those
// which have no rows.
func (a *Accumulator) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.tables))
	for name := range a.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rows returns a copy of the rows accumulated for a table.
func (a *Accumulator) Rows(name string) []Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.tables[name]
	ret := make([]Row, len(rows))
	copy(ret, rows)
	return ret
}

// Len returns the number of rows accumulated for a table.
func (a *Accumulator) Len(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tables[name])
}

// RowSets returns a snapshot of every accumulated table.
func (a *Accumulator) RowSets() RowSets {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := make(RowSets, len(a.tables))
	for name, rows := range a.tables {
		cp := make([]Row, len(rows))
		copy(cp, rows)
		ret[name] = cp
	}
	return ret
}
