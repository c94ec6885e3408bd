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

// Package dump unpacks records into finalized tables and writes them to an
// on-disk store, optionally exporting them as Avro files. As with analyze,
// locations other than fake:// need a reader registered with
// dqm.RegisterOpener and matching Main.Decoders.
package dump

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/avro"
	"github.com/dunedaq/dqm/aws/s3"
	"github.com/dunedaq/dqm/fake"
	"github.com/dunedaq/dqm/leveldb"
	kitlog "github.com/go-kit/log"
	"github.com/pkg/errors"
)

// Main holds the options of the dump command.
type Main struct {
	Output           string `flag:"output" short:"o" help:"Directory of the table store."`
	Force            bool   `flag:"force" short:"f" help:"Delete an existing store first."`
	Append           bool   `flag:"append" short:"a" help:"Append to an existing store."`
	AvroDir          string `flag:"avro-dir" help:"Also export every table as an Avro file into this directory."`
	S3Bucket         string `flag:"s3-bucket" help:"Upload the Avro export to this S3 bucket."`
	S3Region         string `flag:"s3-region" help:"Region of the S3 bucket."`
	S3Prefix         string `flag:"s3-prefix" help:"Key prefix of uploaded exports."`
	NRecords         int    `flag:"nrecords" short:"n" help:"Number of records to process over all files, -1 for all."`
	NWorkers         int    `flag:"nworkers" short:"w" help:"Maximum number of fragments unpacked concurrently."`
	Prescale         int    `flag:"prescale" help:"Unpack analysis rows for one record in this many."`
	WaveformPrescale int    `flag:"waveform-prescale" help:"Unpack waveforms for one record in this many, 0 for none."`
	Verbose          bool   `flag:"verbose" short:"v" help:"Log debug messages."`

	Decoders dqm.Decoders `flag:"-"`

	stderr io.Writer
	log    dqm.Logger
	clock  func() time.Time
	up     []s3.UpOption
}

// NewMain returns a Main with default values.
func NewMain(stderr io.Writer) *Main {
	return &Main{
		Output:   "dqm-tables",
		NRecords: -1,
		NWorkers: dqm.DefaultMaxWorkers,
		Prescale: 1,
		S3Region: "us-east-1",
		Decoders: fake.Decoders{},
		stderr:   stderr,
		clock:    time.Now,
	}
}

func (m *Main) logger() dqm.Logger {
	if m.log == nil {
		m.log = dqm.NewKitLogger(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(m.stderr)), m.Verbose)
	}
	return m.log
}

func (m *Main) mode() (leveldb.Mode, error) {
	switch {
	case m.Force && m.Append:
		return 0, errors.New("force and append are mutually exclusive")
	case m.Force:
		return leveldb.ModeForce, nil
	case m.Append:
		return leveldb.ModeAppend, nil
	}
	return leveldb.ModeCreate, nil
}

// Run unpacks the records at locations and stores the resulting tables.
func (m *Main) Run(ctx context.Context, locations ...string) error {
	if len(locations) == 0 {
		return errors.New("no input locations")
	}
	if m.Decoders == nil {
		return errors.New("no fragment decoders")
	}
	log := m.logger()
	mode, err := m.mode()
	if err != nil {
		return err
	}
	// Open the store first so an existing one fails fast.
	store, err := leveldb.Open(m.Output, leveldb.OptStoreMode(mode), leveldb.OptStoreLogger(log))
	if err != nil {
		return err
	}
	defer store.Close()

	p := dqm.NewRecordProcessor(dqm.NewDispatcher(m.Decoders, dqm.OptDispatcherLogger(log)))
	p.MaxWorkers = m.NWorkers
	p.Prescales = dqm.Prescales{Analysis: m.Prescale}
	if m.WaveformPrescale > 0 {
		w := m.WaveformPrescale
		p.Prescales.Waveform = &w
	}
	p.Log = log
	ing := dqm.NewIngester(p, log)
	ing.NRecords = m.NRecords
	acc, err := ing.RunLocations(ctx, locations...)
	if err != nil {
		return errors.Wrap(err, "processing records")
	}
	ds, err := dqm.Finalize(acc, log)
	if err != nil {
		return errors.Wrap(err, "assembling dataset")
	}
	if err := store.Save(ds); err != nil {
		return errors.Wrap(err, "saving tables")
	}
	log.Printf("saved %d tables to %s", ds.Len(), store.Dir())

	if m.AvroDir == "" {
		return nil
	}
	files, err := avro.Export(m.AvroDir, ds)
	if err != nil {
		return errors.Wrap(err, "exporting avro")
	}
	log.Printf("exported %d avro files to %s", len(files), m.AvroDir)
	if m.S3Bucket == "" {
		return nil
	}
	opts := append([]s3.UpOption{
		s3.OptUpBucket(m.S3Bucket),
		s3.OptUpRegion(m.S3Region),
		s3.OptUpPrefix(m.S3Prefix),
		s3.OptUpLogger(log),
	}, m.up...)
	up, err := s3.NewUploader(opts...)
	if err != nil {
		return err
	}
	_, err = up.PutDir(m.AvroDir, path.Join("tables", s3.Stamp(m.clock())))
	return err
}
