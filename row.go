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
	"github.com/spf13/cast"
)

// Row is one row of a table. Every row declares which of its columns make up
// the table index; all rows appended under the same table name must declare
// the same index columns.
type Row interface {
	IndexNames() []string
	Columns() []string
	Value(column string) (interface{}, bool)
}

// MapRow is a Row backed by a map which remembers the order in which columns
// were set.
type MapRow struct {
	index []string
	names []string
	vals  map[string]interface{}
}

// NewMapRow returns an empty row whose index is made of the given columns.
func NewMapRow(index ...string) *MapRow {
	return &MapRow{
		index: index,
		vals:  make(map[string]interface{}),
	}
}

// NewRecordRow returns a row indexed by the record index columns followed by
// extraIndex, with the record index columns already set.
func NewRecordRow(ri RecordIndex, extraIndex ...string) *MapRow {
	r := NewMapRow(append(ri.IndexNames(), extraIndex...)...)
	return r.Set(ColRun, ri.Run).Set(ColTrigger, ri.Trigger).Set(ColSequence, ri.Sequence)
}

// Set sets column to val and returns the row so calls can be chained.
func (r *MapRow) Set(column string, val interface{}) *MapRow {
	if _, ok := r.vals[column]; !ok {
		r.names = append(r.names, column)
	}
	r.vals[column] = val
	return r
}

// IndexNames implements Row.
func (r *MapRow) IndexNames() []string { return r.index }

// Columns implements Row.
func (r *MapRow) Columns() []string { return r.names }

// Value implements Row.
func (r *MapRow) Value(column string) (interface{}, bool) {
	v, ok := r.vals[column]
	return v, ok
}

// CopyRow returns a MapRow holding the same index and values as r. Slice
// values are shared.
func CopyRow(r Row) *MapRow {
	idx := make([]string, len(r.IndexNames()))
	copy(idx, r.IndexNames())
	c := NewMapRow(idx...)
	for _, col := range r.Columns() {
		v, _ := r.Value(col)
		c.Set(col, v)
	}
	return c
}

// RowSets maps table names to the rows produced for them.
type RowSets map[string][]Row

// Add appends rows to the named table.
func (rs RowSets) Add(table string, rows ...Row) {
	rs[table] = append(rs[table], rows...)
}

// Merge appends every table of other into rs.
func (rs RowSets) Merge(other RowSets) RowSets {
	for name, rows := range other {
		rs[name] = append(rs[name], rows...)
	}
	return rs
}

// NumRows is the total number of rows over all tables.
func (rs RowSets) NumRows() int {
	n := 0
	for _, rows := range rs {
		n += len(rows)
	}
	return n
}

// ErrNoColumn is returned by the typed accessors when a row lacks a column.
const ErrNoColumn = Error("no such column")

func value(r Row, column string) (interface{}, error) {
	v, ok := r.Value(column)
	if !ok {
		return nil, errors.Wrap(ErrNoColumn, column)
	}
	return v, nil
}

// Int64 returns column of r converted to int64.
func Int64(r Row, column string) (int64, error) {
	v, err := value(r, column)
	if err != nil {
		return 0, err
	}
	i, err := cast.ToInt64E(v)
	return i, errors.Wrapf(err, "column %s", column)
}

// Uint64 returns column of r converted to uint64.
func Uint64(r Row, column string) (uint64, error) {
	v, err := value(r, column)
	if err != nil {
		return 0, err
	}
	i, err := cast.ToUint64E(v)
	return i, errors.Wrapf(err, "column %s", column)
}

// Float64 returns column of r converted to float64.
func Float64(r Row, column string) (float64, error) {
	v, err := value(r, column)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	return f, errors.Wrapf(err, "column %s", column)
}

// String returns column of r converted to a string.
func String(r Row, column string) (string, error) {
	v, err := value(r, column)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(v)
	return s, errors.Wrapf(err, "column %s", column)
}

// Float64s returns an array valued column of r as []float64.
func Float64s(r Row, column string) ([]float64, error) {
	v, err := value(r, column)
	if err != nil {
		return nil, err
	}
	switch vt := v.(type) {
	case []float64:
		return vt, nil
	case []int64:
		ret := make([]float64, len(vt))
		for i, x := range vt {
			ret[i] = float64(x)
		}
		return ret, nil
	case []interface{}:
		ret := make([]float64, len(vt))
		for i, x := range vt {
			ret[i], err = cast.ToFloat64E(x)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s element %d", column, i)
			}
		}
		return ret, nil
	default:
		return nil, errors.Errorf("column %s: %T is not an array", column, v)
	}
}

// Int64s returns an array valued column of r as []int64.
func Int64s(r Row, column string) ([]int64, error) {
	v, err := value(r, column)
	if err != nil {
		return nil, err
	}
	switch vt := v.(type) {
	case []int64:
		return vt, nil
	case []int:
		ret := make([]int64, len(vt))
		for i, x := range vt {
			ret[i] = int64(x)
		}
		return ret, nil
	case []interface{}:
		ret := make([]int64, len(vt))
		for i, x := range vt {
			ret[i], err = cast.ToInt64E(x)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s element %d", column, i)
			}
		}
		return ret, nil
	default:
		return nil, errors.Errorf("column %s: %T is not an array", column, v)
	}
}

// RecordOf returns the record index held in r's run, trigger and sequence
// columns.
func RecordOf(r Row) (RecordIndex, error) {
	var ri RecordIndex
	var err error
	if ri.Run, err = Uint64(r, ColRun); err != nil {
		return ri, err
	}
	if ri.Trigger, err = Uint64(r, ColTrigger); err != nil {
		return ri, err
	}
	ri.Sequence, err = Uint64(r, ColSequence)
	return ri, err
}
