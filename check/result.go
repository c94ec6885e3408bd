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
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Severity is the verdict of a check.
type Severity int

// Severities. The numeric values are what result stores persist.
const (
	Invalid Severity = -1
	Bad     Severity = 0
	OK      Severity = 1
	Warning Severity = 2
)

var severityNames = map[Severity]string{
	Invalid: "INVALID",
	Bad:     "BAD",
	OK:      "OK",
	Warning: "WARNING",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Failed reports whether s counts as a failure when results are rolled up.
func (s Severity) Failed() bool {
	return s == Bad || s == Invalid
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, errors.Errorf("unknown severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	str := strings.ToUpper(string(text))
	for sev, name := range severityNames {
		if name == str {
			*s = sev
			return nil
		}
	}
	return errors.Errorf("unknown severity '%s'", text)
}

// Result is the outcome of one check.
type Result struct {
	Severity Severity `json:"result"`
	Message  string   `json:"message"`
}

// Passed is true for OK and WARNING results.
func (r Result) Passed() bool {
	return !r.Severity.Failed()
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %s", r.Severity, r.Message)
}

// Resultf builds a Result with a formatted message.
func Resultf(sev Severity, format string, args ...interface{}) Result {
	return Result{Severity: sev, Message: fmt.Sprintf(format, args...)}
}

// Okay is the plain OK result.
func Okay() Result {
	return Result{Severity: OK, Message: "OK"}
}

// RunRecord is one logged execution of a test.
type RunRecord struct {
	Name string `json:"name"`
	Result
	Time time.Time `json:"last_update"`

	// Pass identifies the Suite.Run call which produced the record.
	Pass string `json:"pass,omitempty"`
}

// summarize rolls a set of logged results up into one Result: any BAD or
// INVALID makes it BAD, otherwise any WARNING makes it WARNING.
func summarize(recs []RunRecord) Result {
	total := len(recs)
	if total == 0 {
		return Result{Severity: Invalid, Message: "no test results have been recorded."}
	}
	var nBad, nWarn int
	for _, rec := range recs {
		switch {
		case rec.Severity.Failed():
			nBad++
		case rec.Severity == Warning:
			nWarn++
		}
	}
	switch {
	case nBad > 0:
		return Resultf(Bad, "%d/%d results are bad or invalid.", nBad, total)
	case nWarn > 0:
		return Resultf(Warning, "%d/%d results have warning.", nWarn, total)
	}
	return Resultf(OK, "all %d results are OK.", total)
}
