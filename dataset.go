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
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrIndexMismatch means the rows of one table do not declare the same index
// columns. It points at a decoder bug, not at bad data.
const ErrIndexMismatch = Error("rows declare different index columns")

// Table is a finalized, read-only relation indexed by the index columns its
// rows declare. Rows keep their insertion order and rows sharing an index
// tuple are all retained.
type Table struct {
	name    string
	index   []string
	columns []string
	rows    []Row
	keys    map[string][]int

	records []RecordIndex
	recRows map[RecordIndex][]int
}

func newTable(name string, rows []Row) (*Table, error) {
	index := rows[0].IndexNames()
	t := &Table{
		name:    name,
		index:   append([]string(nil), index...),
		rows:    rows,
		keys:    make(map[string][]int),
		recRows: make(map[RecordIndex][]int),
	}
	seen := make(map[string]struct{})
	byRecord := hasRecordIndex(index)
	for i, r := range rows {
		if !sameStrings(r.IndexNames(), index) {
			return nil, errors.Wrapf(ErrIndexMismatch, "table %s: row %d has index %v, want %v", name, i, r.IndexNames(), index)
		}
		for _, col := range r.Columns() {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				t.columns = append(t.columns, col)
			}
		}
		key, err := t.keyOf(r)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s: row %d", name, i)
		}
		t.keys[key] = append(t.keys[key], i)
		if byRecord {
			ri, err := RecordOf(r)
			if err != nil {
				return nil, errors.Wrapf(err, "table %s: row %d", name, i)
			}
			if _, ok := t.recRows[ri]; !ok {
				t.records = append(t.records, ri)
			}
			t.recRows[ri] = append(t.recRows[ri], i)
		}
	}
	return t, nil
}

func hasRecordIndex(index []string) bool {
	n := 0
	for _, col := range index {
		switch col {
		case ColRun, ColTrigger, ColSequence:
			n++
		}
	}
	return n == 3
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Table) keyOf(r Row) (string, error) {
	parts := make([]string, len(t.index))
	for i, col := range t.index {
		v, ok := r.Value(col)
		if !ok {
			return "", errors.Wrapf(ErrIndexMismatch, "missing index column %s", col)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f"), nil
}

func keyOfValues(vals []interface{}) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Index returns the index column names.
func (t *Table) Index() []string { return append([]string(nil), t.index...) }

// Columns returns every column name in the order it was first seen.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the i'th row in insertion order.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns all rows in insertion order.
func (t *Table) Rows() []Row { return append([]Row(nil), t.rows...) }

// Lookup returns the rows whose index tuple equals key, in insertion order.
func (t *Table) Lookup(key ...interface{}) []Row {
	idxs := t.keys[keyOfValues(key)]
	ret := make([]Row, len(idxs))
	for i, idx := range idxs {
		ret[i] = t.rows[idx]
	}
	return ret
}

// LookupRow returns the rows sharing r's index tuple.
func (t *Table) LookupRow(r Row) []Row {
	key, err := t.keyOf(r)
	if err != nil {
		return nil
	}
	idxs := t.keys[key]
	ret := make([]Row, len(idxs))
	for i, idx := range idxs {
		ret[i] = t.rows[idx]
	}
	return ret
}

// Records returns the distinct record identities in the order their first
// row was inserted.
func (t *Table) Records() []RecordIndex {
	return append([]RecordIndex(nil), t.records...)
}

// Record returns the sub-table of the rows belonging to one record.
func (t *Table) Record(ri RecordIndex) *Table {
	return t.subset(t.recRows[ri])
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	var idxs []int
	for i, r := range t.rows {
		if keep(r) {
			idxs = append(idxs, i)
		}
	}
	return t.subset(idxs)
}

func (t *Table) subset(idxs []int) *Table {
	rows := make([]Row, len(idxs))
	for i, idx := range idxs {
		rows[i] = t.rows[idx]
	}
	if len(rows) == 0 {
		return &Table{
			name:    t.name,
			index:   t.Index(),
			keys:    map[string][]int{},
			recRows: map[RecordIndex][]int{},
		}
	}
	// rows were validated when t was built.
	sub, _ := newTable(t.name, rows)
	return sub
}

// Copy returns a deep copy of the table whose rows are MapRows which may be
// modified freely, e.g. to stage derived columns.
func (t *Table) Copy() *Table {
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = CopyRow(r)
	}
	if len(rows) == 0 {
		return t.subset(nil)
	}
	c, _ := newTable(t.name, rows)
	return c
}

// Dataset is the finalized set of tables of one pipeline run.
type Dataset struct {
	tables map[string]*Table
}

// NewDataset returns a Dataset holding the given tables.
func NewDataset(tables ...*Table) *Dataset {
	ds := &Dataset{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		ds.tables[t.Name()] = t
	}
	return ds
}

// Table returns the named table. Tables nothing contributed to are absent.
func (d *Dataset) Table(name string) (*Table, bool) {
	t, ok := d.tables[name]
	return t, ok
}

// Names returns the sorted table names.
func (d *Dataset) Names() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tables.
func (d *Dataset) Len() int { return len(d.tables) }

// Finalize builds a Dataset from everything accumulated so far. It does not
// modify acc, so finalizing twice gives the same result. Tables without rows
// are logged and left out.
func Finalize(acc *Accumulator, log Logger) (*Dataset, error) {
	if log == nil {
		log = NopLogger{}
	}
	ds := &Dataset{tables: make(map[string]*Table)}
	for _, name := range acc.Names() {
		rows := acc.Rows(name)
		if len(rows) == 0 {
			log.Printf("table %s has no rows, skipping", name)
			continue
		}
		t, err := newTable(name, rows)
		if err != nil {
			return nil, errors.Wrap(err, "finalizing")
		}
		ds.tables[name] = t
	}
	return ds, nil
}

// Concat joins several datasets table by table, keeping the rows of earlier
// datasets first.
func Concat(datasets ...*Dataset) (*Dataset, error) {
	acc := NewAccumulator()
	for _, ds := range datasets {
		for _, name := range ds.Names() {
			t, _ := ds.Table(name)
			acc.Merge(RowSets{name: t.Rows()})
		}
	}
	return Finalize(acc, nil)
}

// NotFoundError is returned by SelectRecord when no record matches.
type NotFoundError struct {
	Table  string
	Filter string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record matching '%s' in table %s", e.Filter, e.Table)
}

// IsNotFound reports whether err was caused by a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type recordFilter struct {
	run, trigger, sequence *uint64
}

func (f recordFilter) match(ri RecordIndex) bool {
	if f.run != nil && *f.run != ri.Run {
		return false
	}
	if f.trigger != nil && *f.trigger != ri.Trigger {
		return false
	}
	if f.sequence != nil && *f.sequence != ri.Sequence {
		return false
	}
	return true
}

func (f recordFilter) String() string {
	var parts []string
	if f.run != nil {
		parts = append(parts, fmt.Sprintf("run==%d", *f.run))
	}
	if f.trigger != nil {
		parts = append(parts, fmt.Sprintf("trigger==%d", *f.trigger))
	}
	if f.sequence != nil {
		parts = append(parts, fmt.Sprintf("sequence==%d", *f.sequence))
	}
	if len(parts) == 0 {
		return "first record"
	}
	return strings.Join(parts, " and ")
}

// SelectOption narrows the record SelectRecord picks.
type SelectOption func(f *recordFilter)

// OptRun selects records of the given run.
func OptRun(run uint64) SelectOption {
	return func(f *recordFilter) { f.run = &run }
}

// OptTrigger selects records with the given trigger number.
func OptTrigger(trigger uint64) SelectOption {
	return func(f *recordFilter) { f.trigger = &trigger }
}

// OptSequence selects records with the given sequence number.
func OptSequence(sequence uint64) SelectOption {
	return func(f *recordFilter) { f.sequence = &sequence }
}

// SelectRecord returns the rows of one record of t and its identity. Without
// options it picks the record whose first row was inserted first; with
// options it picks the first record, in the same order, matching all of
// them.
func SelectRecord(t *Table, opts ...SelectOption) (*Table, RecordIndex, error) {
	var f recordFilter
	for _, opt := range opts {
		opt(&f)
	}
	for _, ri := range t.records {
		if f.match(ri) {
			return t.Record(ri), ri, nil
		}
	}
	return nil, RecordIndex{}, &NotFoundError{Table: t.Name(), Filter: f.String()}
}
