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

// Package inspect summarizes table stores written by the dump command and
// prints the rows of single records.
package inspect

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/leveldb"
	kitlog "github.com/go-kit/log"
	"github.com/pkg/errors"
)

// Main holds the options of the inspect command.
type Main struct {
	Table     string `flag:"table" short:"t" help:"Print the rows of this table for one record instead of the summary."`
	RunNumber int64  `flag:"run" help:"Run number of the record to print, -1 for any."`
	Trigger   int64  `flag:"trigger" help:"Trigger number of the record to print, -1 for any."`
	Sequence  int64  `flag:"sequence" help:"Sequence number of the record to print, -1 for any."`
	Verbose   bool   `flag:"verbose" short:"v" help:"Log debug messages."`

	stdout io.Writer
	stderr io.Writer
	log    dqm.Logger
}

// NewMain returns a Main printing to stdout and logging to stderr.
func NewMain(stdout, stderr io.Writer) *Main {
	return &Main{
		RunNumber: -1,
		Trigger:   -1,
		Sequence:  -1,
		stdout:    stdout,
		stderr:    stderr,
	}
}

// Run reads the stores in dirs as one dataset and prints it.
func (m *Main) Run(dirs ...string) error {
	if len(dirs) == 0 {
		return errors.New("no store directories")
	}
	if m.log == nil {
		m.log = dqm.NewKitLogger(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(m.stderr)), m.Verbose)
	}
	ds, err := leveldb.LoadDirs(m.log, dirs...)
	if err != nil {
		return err
	}
	if m.Table != "" {
		return m.printRecord(ds)
	}
	return m.printSummary(ds)
}

func (m *Main) printSummary(ds *dqm.Dataset) error {
	tw := tabwriter.NewWriter(m.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tRECORDS\tINDEX\tCOLUMNS")
	for _, name := range ds.Names() {
		t, _ := ds.Table(name)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", name, t.Len(), len(t.Records()), strings.Join(t.Index(), ","), len(t.Columns()))
	}
	return errors.Wrap(tw.Flush(), "flushing summary")
}

func (m *Main) selectOptions() []dqm.SelectOption {
	var opts []dqm.SelectOption
	if m.RunNumber >= 0 {
		opts = append(opts, dqm.OptRun(uint64(m.RunNumber)))
	}
	if m.Trigger >= 0 {
		opts = append(opts, dqm.OptTrigger(uint64(m.Trigger)))
	}
	if m.Sequence >= 0 {
		opts = append(opts, dqm.OptSequence(uint64(m.Sequence)))
	}
	return opts
}

func (m *Main) printRecord(ds *dqm.Dataset) error {
	t, ok := ds.Table(m.Table)
	if !ok {
		return errors.Errorf("no table %s, have %v", m.Table, ds.Names())
	}
	sel, ri, err := dqm.SelectRecord(t, m.selectOptions()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.stdout, "%s run %d trigger %d sequence %d: %d rows\n", t.Name(), ri.Run, ri.Trigger, ri.Sequence, sel.Len())
	tw := tabwriter.NewWriter(m.stdout, 0, 8, 2, ' ', 0)
	cols := sel.Columns()
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	vals := make([]string, len(cols))
	for _, r := range sel.Rows() {
		for i, c := range cols {
			v, ok := r.Value(c)
			if !ok {
				vals[i] = "-"
				continue
			}
			vals[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	return errors.Wrap(tw.Flush(), "flushing rows")
}
