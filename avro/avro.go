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

// Package avro exports finalized tables and check reports as Avro.
//
// Each table is written as one object container file. Column types are
// inferred from the values: integers become long, floats double, and arrays
// of either become arrays. Every field is nullable since rows of one table
// may set different columns.
package avro

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/dunedaq/dqm"
	goavro "github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Namespace of every generated schema.
const Namespace = "dunedaq.dqm"

// Metadata keys written into every table file.
const (
	MetaTable   = "dqm.table"
	MetaIndex   = "dqm.index"
	MetaColumns = "dqm.columns"
)

// Avro type names used for columns.
const (
	typeLong    = "long"
	typeDouble  = "double"
	typeString  = "string"
	typeBoolean = "boolean"
	typeArray   = "array"
)

// column is the inferred Avro type of a table column. item is set for
// arrays.
type column struct {
	name  string
	field string
	typ   string
	item  string
}

func (c column) schema() interface{} {
	if c.typ == typeArray {
		return []interface{}{"null", map[string]interface{}{"type": typeArray, "items": c.item}}
	}
	return []interface{}{"null", c.typ}
}

// Name turns a table or column name into a valid Avro name.
func Name(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// scalarType maps a Go kind to an Avro primitive.
func scalarType(k reflect.Kind) (string, bool) {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return typeLong, true
	case reflect.Float32, reflect.Float64:
		return typeDouble, true
	case reflect.String:
		return typeString, true
	case reflect.Bool:
		return typeBoolean, true
	}
	return "", false
}

// typeOf infers the Avro type of v. Empty and nil values give "".
func typeOf(v interface{}) (typ, item string, err error) {
	if v == nil {
		return "", "", nil
	}
	rv := reflect.ValueOf(v)
	if t, ok := scalarType(rv.Kind()); ok {
		return t, "", nil
	}
	if rv.Kind() != reflect.Slice {
		return "", "", errors.Errorf("unsupported value type %T", v)
	}
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		et, ok := scalarType(e.Kind())
		if !ok {
			return "", "", errors.Errorf("unsupported array element type %v in %T", e.Kind(), v)
		}
		if item, err = widen(item, et); err != nil {
			return "", "", err
		}
	}
	if item == "" {
		if et, ok := scalarType(rv.Type().Elem().Kind()); ok {
			item = et
		}
	}
	return typeArray, item, nil
}

// widen merges two inferred types: long and double give double.
func widen(a, b string) (string, error) {
	switch {
	case a == "" || a == b:
		return b, nil
	case b == "":
		return a, nil
	case (a == typeLong && b == typeDouble) || (a == typeDouble && b == typeLong):
		return typeDouble, nil
	}
	return "", errors.Errorf("conflicting types %s and %s", a, b)
}

func inferColumns(t *dqm.Table) ([]column, error) {
	cols := make([]column, len(t.Columns()))
	seen := make(map[string]string)
	for i, name := range t.Columns() {
		cols[i] = column{name: name, field: Name(name)}
		if prev, dup := seen[cols[i].field]; dup {
			return nil, errors.Errorf("columns %s and %s have the same Avro name", prev, name)
		}
		seen[cols[i].field] = name
	}
	for _, r := range t.Rows() {
		for i := range cols {
			v, ok := r.Value(cols[i].name)
			if !ok {
				continue
			}
			typ, item, err := typeOf(v)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", cols[i].name)
			}
			if typ == "" {
				continue
			}
			if cols[i].typ == typeArray || typ == typeArray {
				if cols[i].typ != "" && cols[i].typ != typ {
					return nil, errors.Errorf("column %s mixes arrays and scalars", cols[i].name)
				}
				cols[i].typ = typeArray
				if cols[i].item, err = widen(cols[i].item, item); err != nil {
					return nil, errors.Wrapf(err, "column %s", cols[i].name)
				}
				continue
			}
			if cols[i].typ, err = widen(cols[i].typ, typ); err != nil {
				return nil, errors.Wrapf(err, "column %s", cols[i].name)
			}
		}
	}
	for i := range cols {
		if cols[i].typ == "" {
			cols[i].typ = typeString
		}
		if cols[i].typ == typeArray && cols[i].item == "" {
			cols[i].item = typeLong
		}
	}
	return cols, nil
}

// Schema returns the Avro schema of a table.
func Schema(t *dqm.Table) (string, error) {
	cols, err := inferColumns(t)
	if err != nil {
		return "", errors.Wrapf(err, "table %s", t.Name())
	}
	return schemaJSON(t.Name(), cols)
}

func schemaJSON(table string, cols []column) (string, error) {
	fields := make([]interface{}, len(cols))
	for i, c := range cols {
		fields[i] = map[string]interface{}{
			"name":    c.field,
			"type":    c.schema(),
			"default": nil,
		}
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":      "record",
		"name":      Name(table),
		"namespace": Namespace,
		"fields":    fields,
	})
	return string(data), errors.Wrap(err, "marshalling schema")
}

func scalar(typ string, v interface{}) (interface{}, error) {
	switch typ {
	case typeLong:
		return cast.ToInt64E(v)
	case typeDouble:
		return cast.ToFloat64E(v)
	case typeBoolean:
		return cast.ToBoolE(v)
	default:
		return cast.ToStringE(v)
	}
}

func native(c column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if c.typ != typeArray {
		s, err := scalar(c.typ, v)
		if err != nil {
			return nil, err
		}
		return goavro.Union(c.typ, s), nil
	}
	rv := reflect.ValueOf(v)
	items := make([]interface{}, rv.Len())
	for i := range items {
		s, err := scalar(c.item, rv.Index(i).Interface())
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		items[i] = s
	}
	return goavro.Union(typeArray, items), nil
}

// WriteTable writes t to w as an object container file.
func WriteTable(w io.Writer, t *dqm.Table) error {
	cols, err := inferColumns(t)
	if err != nil {
		return errors.Wrapf(err, "table %s", t.Name())
	}
	schema, err := schemaJSON(t.Name(), cols)
	if err != nil {
		return err
	}
	index, _ := json.Marshal(t.Index())
	names, _ := json.Marshal(t.Columns())
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Schema:          schema,
		CompressionName: goavro.CompressionDeflateLabel,
		MetaData: map[string][]byte{
			MetaTable:   []byte(t.Name()),
			MetaIndex:   index,
			MetaColumns: names,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "creating writer for %s", t.Name())
	}
	recs := make([]interface{}, 0, t.Len())
	for i, r := range t.Rows() {
		rec := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			v, _ := r.Value(c.name)
			if rec[c.field], err = native(c, v); err != nil {
				return errors.Wrapf(err, "table %s row %d column %s", t.Name(), i, c.name)
			}
		}
		recs = append(recs, rec)
	}
	return errors.Wrapf(ocfw.Append(recs), "appending rows of %s", t.Name())
}

// FileName is the name Export gives the file of a table.
func FileName(table string) string {
	return Name(table) + ".avro"
}

// Export writes every table of ds to its own file in dir and returns the
// paths written.
func Export(dir string, ds *dqm.Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	var paths []string
	for _, name := range ds.Names() {
		t, _ := ds.Table(name)
		p := filepath.Join(dir, FileName(name))
		if err := writeFile(p, t); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeFile(path string, t *dqm.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = errors.Wrapf(cerr, "closing %s", path)
		}
	}()
	return WriteTable(f, t)
}

// ReadTable reads a file written by WriteTable back into rows, restoring
// the original table name, index and column names. Integers come back as
// int64, floats as float64 and arrays as []int64 or []float64.
func ReadTable(r io.Reader) (string, []dqm.Row, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "creating reader")
	}
	meta := ocfr.MetaData()
	var index, names []string
	if err := json.Unmarshal(meta[MetaIndex], &index); err != nil {
		return "", nil, errors.Wrap(err, "decoding index metadata")
	}
	if err := json.Unmarshal(meta[MetaColumns], &names); err != nil {
		return "", nil, errors.Wrap(err, "decoding column metadata")
	}
	table := string(meta[MetaTable])
	var rows []dqm.Row
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return "", nil, errors.Wrapf(err, "reading row %d", len(rows))
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return "", nil, errors.Errorf("row %d is a %T", len(rows), datum)
		}
		row := dqm.NewMapRow(index...)
		for _, name := range names {
			v, ok := rec[Name(name)]
			if !ok {
				return "", nil, errors.Errorf("row %d has no field for column %s", len(rows), name)
			}
			if v = fromUnion(v); v != nil {
				row.Set(name, v)
			}
		}
		rows = append(rows, row)
	}
	return table, rows, errors.Wrap(ocfr.Err(), "scanning")
}

func fromUnion(v interface{}) interface{} {
	u, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for typ, val := range u {
		if typ != typeArray {
			return val
		}
		items, _ := val.([]interface{})
		return fromItems(items)
	}
	return nil
}

func fromItems(items []interface{}) interface{} {
	ints := make([]int64, 0, len(items))
	for _, it := range items {
		i, ok := it.(int64)
		if !ok {
			break
		}
		ints = append(ints, i)
	}
	if len(ints) == len(items) {
		return ints
	}
	floats := make([]float64, 0, len(items))
	for _, it := range items {
		f, ok := it.(float64)
		if !ok {
			return items
		}
		floats = append(floats, f)
	}
	return floats
}
