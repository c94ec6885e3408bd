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
	"time"
)

// Report is a snapshot of a suite and its sub-suites, suitable for encoding
// as JSON or Avro.
type Report struct {
	Name string `json:"name"`
	Result
	Time    time.Time   `json:"time"`
	Results []RunRecord `json:"results"`
	Suites  []Report    `json:"suites,omitempty"`
}

// Report snapshots the suite's roll-up and latest results, recursing into
// sub-suites.
func (s *Suite) Report() Report {
	r := Report{
		Name:    s.Name(),
		Result:  s.Summary(),
		Time:    s.clock(),
		Results: s.LatestResults(),
	}
	for _, sub := range s.SubSuites() {
		r.Suites = append(r.Suites, sub.Report())
	}
	return r
}

// Walk calls fn for r and every nested report, depth first. path holds the
// names of the enclosing reports.
func (r Report) Walk(fn func(path []string, r Report)) {
	r.walk(nil, fn)
}

func (r Report) walk(path []string, fn func(path []string, r Report)) {
	fn(path, r)
	inner := append(append([]string(nil), path...), r.Name)
	for _, sub := range r.Suites {
		sub.walk(inner, fn)
	}
}

// Failed returns the latest results of r and every nested report which did
// not pass.
func (r Report) Failed() []RunRecord {
	var ret []RunRecord
	r.Walk(func(_ []string, rep Report) {
		for _, rec := range rep.Results {
			if !rec.Passed() {
				ret = append(ret, rec)
			}
		}
	})
	return ret
}
