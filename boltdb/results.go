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

// Package boltdb keeps the history of check results in a bolt file so that
// successive analysis jobs extend one log per suite.
package boltdb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/dunedaq/dqm/check"
	"github.com/pkg/errors"
)

var resultsBucket = []byte("results")

// PathSep joins the names of nested suites into the key of their bucket.
const PathSep = "/"

// ResultStore is a result history backed by boltdb. Every suite of a tree
// gets its own bucket, named by the path from the root suite.
type ResultStore struct {
	Db *bolt.DB
}

// Open opens or creates the bolt file.
func Open(filename string) (*ResultStore, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return errors.Wrap(err, "creating results bucket")
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &ResultStore{Db: db}, nil
}

// Close syncs and closes the underlying boltdb.
func (rs *ResultStore) Close() error {
	err := rs.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return rs.Db.Close()
}

// recordKey orders records by time. The pass id and name make the key of a
// record unique, so saving the same log twice stores it once.
func recordKey(rec check.RunRecord) []byte {
	k := make([]byte, 8, 8+len(rec.Pass)+1+len(rec.Name))
	binary.BigEndian.PutUint64(k, uint64(rec.Time.UnixNano()))
	k = append(k, rec.Pass...)
	k = append(k, 0)
	return append(k, rec.Name...)
}

// Save stores the whole log of s and of every nested suite.
func (rs *ResultStore) Save(s *check.Suite) error {
	return rs.Db.Update(func(tx *bolt.Tx) error {
		return saveSuite(tx.Bucket(resultsBucket), s.Name(), s)
	})
}

func saveSuite(rb *bolt.Bucket, path string, s *check.Suite) error {
	b, err := rb.CreateBucketIfNotExists([]byte(path))
	if err != nil {
		return errors.Wrapf(err, "adding %s to results bucket", path)
	}
	for _, rec := range s.AllResults() {
		data, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "encoding %s/%s", path, rec.Name)
		}
		if err := b.Put(recordKey(rec), data); err != nil {
			return errors.Wrapf(err, "inserting %s/%s", path, rec.Name)
		}
	}
	for _, sub := range s.SubSuites() {
		if err := saveSuite(rb, path+PathSep+sub.Name(), sub); err != nil {
			return err
		}
	}
	return nil
}

// Restore appends the stored history of s and its nested suites to their
// logs. It is meant for freshly built suites.
func (rs *ResultStore) Restore(s *check.Suite) error {
	return rs.Db.View(func(tx *bolt.Tx) error {
		return restoreSuite(tx.Bucket(resultsBucket), s.Name(), s)
	})
}

func restoreSuite(rb *bolt.Bucket, path string, s *check.Suite) error {
	recs, err := history(rb, path)
	if err != nil {
		return err
	}
	s.Restore(recs...)
	for _, sub := range s.SubSuites() {
		if err := restoreSuite(rb, path+PathSep+sub.Name(), sub); err != nil {
			return err
		}
	}
	return nil
}

// History returns the stored records of the suite at path, oldest first.
// An unknown path has no history.
func (rs *ResultStore) History(path string) (recs []check.RunRecord, err error) {
	err = rs.Db.View(func(tx *bolt.Tx) error {
		recs, err = history(tx.Bucket(resultsBucket), path)
		return err
	})
	return recs, err
}

func history(rb *bolt.Bucket, path string) ([]check.RunRecord, error) {
	b := rb.Bucket([]byte(path))
	if b == nil {
		return nil, nil
	}
	var ret []check.RunRecord
	err := b.ForEach(func(k, v []byte) error {
		var rec check.RunRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return errors.Wrapf(err, "decoding %s record %x", path, k)
		}
		ret = append(ret, rec)
		return nil
	})
	return ret, err
}

// Suites returns the paths of every suite with stored results, sorted.
func (rs *ResultStore) Suites() ([]string, error) {
	var ret []string
	err := rs.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(resultsBucket).ForEach(func(k, v []byte) error {
			if v == nil {
				ret = append(ret, string(k))
			}
			return nil
		})
	})
	return ret, err
}

// DeleteBefore removes every record older than t from suites whose path
// starts with prefix and returns how many were removed.
func (rs *ResultStore) DeleteBefore(prefix string, t time.Time) (int, error) {
	n := 0
	limit := make([]byte, 8)
	binary.BigEndian.PutUint64(limit, uint64(t.UnixNano()))
	err := rs.Db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(resultsBucket)
		var paths []string
		err := rb.ForEach(func(k, v []byte) error {
			if v == nil && strings.HasPrefix(string(k), prefix) {
				paths = append(paths, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			b := rb.Bucket([]byte(p))
			var old [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
				old = append(old, append([]byte(nil), k...))
			}
			for _, k := range old {
				if err := b.Delete(k); err != nil {
					return errors.Wrapf(err, "deleting from %s", p)
				}
			}
			n += len(old)
		}
		return nil
	})
	return n, err
}
