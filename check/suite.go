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
	"sort"
	"sync"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Registration errors.
const (
	ErrDuplicateTest     = Error("a test with this name is already registered")
	ErrAlreadyRegistered = Error("test is already registered with another suite")
	ErrCycle             = Error("registering the suite would create a cycle")
)

// Error is a constant error type for the sentinel errors of this package.
type Error string

func (e Error) Error() string { return string(e) }

// Suite is an ordered, named collection of Tests which keeps a log of every
// result its children produced. A Suite is itself a Test whose result is the
// roll-up of its log.
type Suite struct {
	Base

	mu      sync.Mutex
	names   []string
	tests   map[string]Test
	log     []RunRecord
	clock   func() time.Time
	newPass func() string
	logger  dqm.Logger
}

// SuiteOption is a functional option for NewSuite.
type SuiteOption func(s *Suite)

// OptSuiteClock sets the clock used to stamp results.
func OptSuiteClock(now func() time.Time) SuiteOption {
	return func(s *Suite) {
		s.clock = now
	}
}

// OptSuiteLogger sets the logger Run reports failures to.
func OptSuiteLogger(l dqm.Logger) SuiteOption {
	return func(s *Suite) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSuite returns an empty Suite.
func NewSuite(name string, opts ...SuiteOption) *Suite {
	s := &Suite{
		Base:    Base{TestName: name},
		tests:   make(map[string]Test),
		clock:   time.Now,
		newPass: uuid.NewString,
		logger:  dqm.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds t under name, or under t.Name() when no name is given. A
// Test belongs to at most one Suite and a Suite may not contain itself.
func (s *Suite) Register(t Test, name ...string) error {
	n := t.Name()
	if len(name) > 0 && name[0] != "" {
		n = name[0]
	}
	if sub, ok := t.(*Suite); ok {
		for p := s; p != nil; p = p.owner() {
			if p == sub {
				return errors.Wrapf(ErrCycle, "registering %s in %s", sub.Name(), s.Name())
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tests[n]; dup {
		return errors.Wrapf(ErrDuplicateTest, "registering %s in %s", n, s.Name())
	}
	if err := t.claim(s); err != nil {
		return errors.Wrapf(err, "registering %s in %s", n, s.Name())
	}
	s.names = append(s.names, n)
	s.tests[n] = t
	return nil
}

// MustRegister is Register that panics on error. It returns s so suites can
// be built in one expression.
func (s *Suite) MustRegister(t Test, name ...string) *Suite {
	if err := s.Register(t, name...); err != nil {
		panic(err)
	}
	return s
}

// Names returns the registered test names in registration order.
func (s *Suite) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Test returns the test registered under name.
func (s *Suite) Test(name string) (Test, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[name]
	return t, ok
}

// SubSuites returns the children which are suites, in registration order.
func (s *Suite) SubSuites() []*Suite {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []*Suite
	for _, n := range s.names {
		if sub, ok := s.tests[n].(*Suite); ok {
			ret = append(ret, sub)
		}
	}
	return ret
}

// Run runs every child in registration order, appends their results to the
// log and returns the roll-up of the whole log. Failing children are
// recorded as BAD and do not stop the others.
func (s *Suite) Run(ds *dqm.Dataset) (Result, error) {
	s.mu.Lock()
	names := append([]string(nil), s.names...)
	tests := make([]Test, len(names))
	for i, n := range names {
		tests[i] = s.tests[n]
	}
	s.mu.Unlock()

	pass := s.newPass()
	recs := make([]RunRecord, len(tests))
	for i, t := range tests {
		rec := do(t, ds, s.clock)
		rec.Name = names[i]
		rec.Pass = pass
		if !rec.Passed() {
			s.logger.Printf("%s/%s: %s", s.Name(), rec.Name, rec.Result)
		}
		recs[i] = rec
	}

	s.mu.Lock()
	s.log = append(s.log, recs...)
	s.mu.Unlock()
	return s.Summary(), nil
}

// Summary rolls up every logged result: BAD when any is BAD or INVALID,
// WARNING when any is WARNING, OK otherwise and INVALID when nothing was
// logged yet.
func (s *Suite) Summary() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.log)
}

// AllResults returns the whole log in insertion order.
func (s *Suite) AllResults() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.log...)
}

// LatestResults returns the most recent result of every test, ordered by
// test name. Of two results with the same time the later logged one wins.
func (s *Suite) LatestResults() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return latest(s.log)
}

func latest(log []RunRecord) []RunRecord {
	byName := make(map[string]RunRecord)
	for _, rec := range log {
		if prev, ok := byName[rec.Name]; ok && prev.Time.After(rec.Time) {
			continue
		}
		byName[rec.Name] = rec
	}
	ret := make([]RunRecord, 0, len(byName))
	for _, rec := range byName {
		ret = append(ret, rec)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// ClearResults empties the log.
func (s *Suite) ClearResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

// ClearOldResults keeps only the latest result of every test.
func (s *Suite) ClearOldResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = latest(s.log)
}

// Restore appends previously persisted results to the log, e.g. to continue
// a history kept in a result store.
func (s *Suite) Restore(recs ...RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, recs...)
}
