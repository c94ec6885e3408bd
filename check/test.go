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

package check

import (
	"fmt"
	"sync"
	"time"

	"github.com/dunedaq/dqm"
)

// Test is a named data quality check. Suites are Tests too, so they nest.
type Test interface {
	Name() string
	Run(ds *dqm.Dataset) (Result, error)

	claim(s *Suite) error
	owner() *Suite
}

// Base carries the name of a Test and remembers the Suite it was registered
// with. Concrete checks embed it.
type Base struct {
	TestName string

	mu     sync.Mutex
	parent *Suite
}

// Name implements Test.
func (b *Base) Name() string {
	return b.TestName
}

func (b *Base) claim(s *Suite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.parent != nil && b.parent != s {
		return ErrAlreadyRegistered
	}
	b.parent = s
	return nil
}

func (b *Base) owner() *Suite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// Leaf is a Test backed by a plain function.
type Leaf struct {
	Base
	fn func(ds *dqm.Dataset) (Result, error)
}

// NewLeaf wraps fn as a Test.
func NewLeaf(name string, fn func(ds *dqm.Dataset) (Result, error)) *Leaf {
	return &Leaf{Base: Base{TestName: name}, fn: fn}
}

// Run implements Test.
func (l *Leaf) Run(ds *dqm.Dataset) (Result, error) {
	return l.fn(ds)
}

// Do runs t against ds and returns the resulting record. An error or a panic
// from t becomes a BAD result; Do itself never fails.
func Do(t Test, ds *dqm.Dataset) RunRecord {
	return do(t, ds, time.Now)
}

func do(t Test, ds *dqm.Dataset, now func() time.Time) (rec RunRecord) {
	rec.Name = t.Name()
	defer func() {
		if r := recover(); r != nil {
			rec.Result = Result{Severity: Bad, Message: fmt.Sprintf("check raised exception: %v", r)}
		}
		rec.Time = now()
	}()
	res, err := t.Run(ds)
	if err != nil {
		res = Result{Severity: Bad, Message: fmt.Sprintf("check raised exception: %v", err)}
	}
	rec.Result = res
	return rec
}
