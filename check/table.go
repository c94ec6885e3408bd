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
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
)

// TimeLayout is how result times are rendered in tables.
const TimeLayout = "Jan-02-2006, 15:04:05"

// TableOptions controls WriteTable.
type TableOptions struct {
	// Latest renders only the most recent result of each test.
	Latest bool

	// Names restricts the table to the given test names.
	Names []string

	// Pretty shortens test names with DisplayName.
	Pretty bool
}

// WriteTable renders the suite's results as an aligned text table.
func (s *Suite) WriteTable(w io.Writer, opts TableOptions) error {
	var recs []RunRecord
	if opts.Latest {
		recs = s.LatestResults()
	} else {
		recs = s.AllResults()
	}
	if len(opts.Names) > 0 {
		keep := make(map[string]struct{}, len(opts.Names))
		for _, n := range opts.Names {
			keep[n] = struct{}{}
		}
		var filtered []RunRecord
		for _, rec := range recs {
			if _, ok := keep[rec.Name]; ok {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST NAME\tRESULT\tMESSAGE\tLAST UPDATE TIME")
	for _, rec := range recs {
		name := rec.Name
		if opts.Pretty {
			name = DisplayName(name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, rec.Severity, rec.Message, rec.Time.Format(TimeLayout))
	}
	return errors.Wrap(tw.Flush(), "flushing table")
}

// DisplayName shortens a check name for display: "CheckWIBEth_RMS_U" becomes
// "RMS_U" and "CheckAllExpectedFragments" becomes "AllExpectedFragments".
func DisplayName(name string) string {
	first := name
	if i := strings.Index(name, "_"); i >= 0 {
		first = name[:i]
	}
	if strings.Contains(first, "CheckWIBEth") {
		return strings.TrimPrefix(name, "CheckWIBEth_")
	}
	return strings.TrimPrefix(name, "Check")
}
