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

// Package leveldb persists finalized datasets in a leveldb directory so that
// several analysis jobs can write one store and later jobs can read it back.
package leveldb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/dunedaq/dqm"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Error is a store error constant.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrExists is returned by Open when the directory already holds a store
	// and neither ModeForce nor ModeAppend was given.
	ErrExists = Error("store exists")
)

// Mode says what Open does with an existing store.
type Mode int

const (
	// ModeCreate refuses to open an existing, non-empty store.
	ModeCreate Mode = iota
	// ModeForce deletes an existing store first.
	ModeForce
	// ModeAppend adds rows to an existing store.
	ModeAppend
)

// Key layout:
//
//	m\x00<table>                  table meta (index and column names)
//	r\x00<table>\x00<seq uint64>  one row, seq big endian
var (
	metaPrefix = []byte("m\x00")
	rowPrefix  = []byte("r\x00")
)

func metaKey(table string) []byte {
	return append(append([]byte(nil), metaPrefix...), table...)
}

func tableRowPrefix(table string) []byte {
	k := append(append([]byte(nil), rowPrefix...), table...)
	return append(k, 0)
}

func rowKey(table string, seq uint64) []byte {
	k := tableRowPrefix(table)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

type tableMeta struct {
	Index   []string `json:"index"`
	Columns []string `json:"columns"`
}

type storedRow struct {
	Index   []string      `json:"index"`
	Columns []string      `json:"columns"`
	Values  []interface{} `json:"values"`
}

// Store is a dataset store backed by one leveldb database.
type Store struct {
	mu   sync.Mutex
	dir  string
	db   *leveldb.DB
	next map[string]uint64
	log  dqm.Logger
}

// StoreOption configures Open.
type StoreOption func(*storeOptions)

type storeOptions struct {
	mode Mode
	log  dqm.Logger
}

// OptStoreMode sets what happens to an existing store. The default is
// ModeCreate.
func OptStoreMode(m Mode) StoreOption {
	return func(o *storeOptions) { o.mode = m }
}

// OptStoreLogger sets the logger.
func OptStoreLogger(l dqm.Logger) StoreOption {
	return func(o *storeOptions) { o.log = l }
}

// Open opens or creates the store in dir.
func Open(dir string, opts ...StoreOption) (*Store, error) {
	o := storeOptions{log: dqm.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	exists, err := nonEmpty(dir)
	if err != nil {
		return nil, errors.Wrap(err, "checking store directory")
	}
	if exists {
		switch o.mode {
		case ModeForce:
			o.log.Printf("store %s exists, deleting", dir)
			if err := os.RemoveAll(dir); err != nil {
				return nil, errors.Wrap(err, "removing store")
			}
		case ModeAppend:
			o.log.Printf("store %s exists, appending", dir)
		default:
			return nil, errors.Wrapf(ErrExists, "%s: remove it or open it to force or append", dir)
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dir)
	}
	return &Store{
		dir:  dir,
		db:   db,
		next: make(map[string]uint64),
		log:  o.log,
	}, nil
}

func nonEmpty(dir string) (bool, error) {
	ents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return len(ents) > 0, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Close closes the underlying leveldb.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "closing leveldb")
}

// Save appends every row of every table of ds. Rows of a table already in
// the store must declare the same index columns as the stored ones.
func (s *Store) Save(ds *dqm.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	next := make(map[string]uint64)
	for _, name := range ds.Names() {
		t, _ := ds.Table(name)
		seq, err := s.prepare(batch, t)
		if err != nil {
			return errors.Wrapf(err, "table %s", name)
		}
		for i, r := range t.Rows() {
			data, err := encodeRow(r)
			if err != nil {
				return errors.Wrapf(err, "table %s row %d", name, i)
			}
			batch.Put(rowKey(name, seq), data)
			seq++
		}
		next[name] = seq
		s.log.Debugf("saving %d rows of %s", t.Len(), name)
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "writing batch")
	}
	for name, seq := range next {
		s.next[name] = seq
	}
	return nil
}

// prepare puts the merged meta of t into batch and returns the sequence
// number of t's first new row.
func (s *Store) prepare(batch *leveldb.Batch, t *dqm.Table) (uint64, error) {
	meta, found, err := s.meta(t.Name())
	if err != nil {
		return 0, err
	}
	if found && !sameStrings(meta.Index, t.Index()) {
		return 0, errors.Wrapf(dqm.ErrIndexMismatch, "stored index %v, new index %v", meta.Index, t.Index())
	}
	if !found {
		meta.Index = t.Index()
	}
	meta.Columns = union(meta.Columns, t.Columns())
	data, err := json.Marshal(meta)
	if err != nil {
		return 0, errors.Wrap(err, "marshalling meta")
	}
	batch.Put(metaKey(t.Name()), data)

	if seq, ok := s.next[t.Name()]; ok {
		return seq, nil
	}
	iter := s.db.NewIterator(util.BytesPrefix(tableRowPrefix(t.Name())), nil)
	defer iter.Release()
	var seq uint64
	if iter.Last() {
		k := iter.Key()
		seq = binary.BigEndian.Uint64(k[len(k)-8:]) + 1
	}
	return seq, errors.Wrap(iter.Error(), "finding last row")
}

func (s *Store) meta(table string) (tableMeta, bool, error) {
	var meta tableMeta
	data, err := s.db.Get(metaKey(table), nil)
	if err == leveldb.ErrNotFound {
		return meta, false, nil
	} else if err != nil {
		return meta, false, errors.Wrap(err, "reading meta")
	}
	return meta, true, errors.Wrap(json.Unmarshal(data, &meta), "decoding meta")
}

// TableInfo describes one stored table.
type TableInfo struct {
	Name    string
	Rows    int
	Index   []string
	Columns []string
}

// Tables describes every stored table, sorted by name.
func (s *Store) Tables() ([]TableInfo, error) {
	var ret []TableInfo
	iter := s.db.NewIterator(util.BytesPrefix(metaPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		var meta tableMeta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			return nil, errors.Wrapf(err, "decoding meta %q", iter.Key())
		}
		name := string(iter.Key()[len(metaPrefix):])
		n, err := s.count(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, TableInfo{Name: name, Rows: n, Index: meta.Index, Columns: meta.Columns})
	}
	return ret, errors.Wrap(iter.Error(), "iterating tables")
}

func (s *Store) count(table string) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix(tableRowPrefix(table)), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, errors.Wrapf(iter.Error(), "counting rows of %s", table)
}

// Load reads every stored row into an accumulator, in the order rows were
// saved.
func (s *Store) Load(acc *dqm.Accumulator) error {
	tables, err := s.Tables()
	if err != nil {
		return err
	}
	for _, ti := range tables {
		rows, err := s.rows(ti.Name)
		if err != nil {
			return errors.Wrapf(err, "table %s", ti.Name)
		}
		acc.Merge(dqm.RowSets{ti.Name: rows})
	}
	return nil
}

func (s *Store) rows(table string) ([]dqm.Row, error) {
	iter := s.db.NewIterator(util.BytesPrefix(tableRowPrefix(table)), nil)
	defer iter.Release()
	var rows []dqm.Row
	for iter.Next() {
		r, err := decodeRow(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "row key %q", iter.Key())
		}
		rows = append(rows, r)
	}
	return rows, errors.Wrap(iter.Error(), "iterating rows")
}

// Dataset reads and finalizes the whole store.
func (s *Store) Dataset() (*dqm.Dataset, error) {
	acc := dqm.NewAccumulator()
	if err := s.Load(acc); err != nil {
		return nil, err
	}
	return dqm.Finalize(acc, s.log)
}

// OpenReadOnly opens an existing store for reading. Save fails on it.
func OpenReadOnly(dir string, opts ...StoreOption) (*Store, error) {
	o := storeOptions{log: dqm.NopLogger{}}
	for _, fn := range opts {
		fn(&o)
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dir)
	}
	return &Store{dir: dir, db: db, next: make(map[string]uint64), log: o.log}, nil
}

// LoadDirs opens each store read only in turn and finalizes the rows of all
// of them as one dataset. Rows of earlier stores come first.
func LoadDirs(log dqm.Logger, dirs ...string) (*dqm.Dataset, error) {
	if log == nil {
		log = dqm.NopLogger{}
	}
	acc := dqm.NewAccumulator()
	for _, dir := range dirs {
		log.Printf("reading store %s", dir)
		s, err := OpenReadOnly(dir, OptStoreLogger(log))
		if err != nil {
			return nil, err
		}
		err = s.Load(acc)
		cerr := s.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", dir)
		}
		if cerr != nil {
			return nil, cerr
		}
	}
	return dqm.Finalize(acc, log)
}

func encodeRow(r dqm.Row) ([]byte, error) {
	sr := storedRow{
		Index:   r.IndexNames(),
		Columns: r.Columns(),
		Values:  make([]interface{}, len(r.Columns())),
	}
	for i, col := range sr.Columns {
		sr.Values[i], _ = r.Value(col)
	}
	return json.Marshal(sr)
}

func decodeRow(data []byte) (dqm.Row, error) {
	var sr storedRow
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&sr); err != nil {
		return nil, errors.Wrap(err, "decoding row")
	}
	if len(sr.Values) != len(sr.Columns) {
		return nil, errors.Errorf("%d values for %d columns", len(sr.Values), len(sr.Columns))
	}
	r := dqm.NewMapRow(sr.Index...)
	for i, col := range sr.Columns {
		r.Set(col, normalize(sr.Values[i]))
	}
	return r, nil
}

// normalize turns decoded JSON numbers into int64 where they are integral
// and float64 otherwise. Arrays of integers become []int64, other numeric
// arrays []float64.
func normalize(v interface{}) interface{} {
	switch vt := v.(type) {
	case json.Number:
		return number(vt)
	case []interface{}:
		ints := make([]int64, 0, len(vt))
		floats := make([]float64, 0, len(vt))
		for _, e := range vt {
			n, ok := e.(json.Number)
			if !ok {
				for i := range vt {
					vt[i] = normalize(vt[i])
				}
				return vt
			}
			f, err := n.Float64()
			if err != nil {
				return vt
			}
			floats = append(floats, f)
			if i, err := n.Int64(); err == nil && ints != nil {
				ints = append(ints, i)
			} else {
				ints = nil
			}
		}
		if ints != nil {
			return ints
		}
		return floats
	}
	return v
}

func number(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return u
	}
	f, _ := n.Float64()
	return f
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

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	ret := append([]string(nil), a...)
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			ret = append(ret, s)
		}
	}
	return ret
}
