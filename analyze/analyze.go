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

// Package analyze runs the standard DQM suite over records read from one or
// more raw data locations and distributes the report.
//
// Only the synthetic fake:// reader and its decoders are built in. Real
// inputs need a reader registered for their scheme with dqm.RegisterOpener
// and matching Main.Decoders.
package analyze

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/avro"
	"github.com/dunedaq/dqm/aws/s3"
	"github.com/dunedaq/dqm/boltdb"
	"github.com/dunedaq/dqm/check"
	"github.com/dunedaq/dqm/checks"
	"github.com/dunedaq/dqm/fake"
	"github.com/dunedaq/dqm/kafka"
	"github.com/dunedaq/dqm/prom"
	"github.com/dunedaq/dqm/termstat"
	kitlog "github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrBadResults is returned by Run when FailOnBad is set and the suite did
// not pass.
const ErrBadResults = dqm.Error("data quality checks failed")

// Main holds the options of the analyze command.
type Main struct {
	NRecords         int           `flag:"nrecords" short:"n" help:"Number of records to process over all files, -1 for all."`
	NWorkers         int           `flag:"nworkers" short:"w" help:"Maximum number of fragments unpacked concurrently."`
	Prescale         int           `flag:"prescale" help:"Unpack analysis rows for one record in this many."`
	WaveformPrescale int           `flag:"waveform-prescale" help:"Unpack waveforms for one record in this many, 0 for none."`
	TaskTimeout      time.Duration `flag:"task-timeout" help:"Timeout of one unpacking task, 0 for none."`
	Policy           string        `flag:"policy" help:"What a failed unpacking task does to its record: skip or abort."`
	StrictEnv        bool          `flag:"strict-env" help:"Fail on data from an unknown operational environment."`

	VD        bool `flag:"vd" help:"Analyze vertical drift instead of horizontal drift TPC data."`
	PDS       bool `flag:"pds" help:"Add the photon detector checks."`
	WIBPulser bool `flag:"wibpulser" help:"WIBs ran in pulser mode, skip the noise and pedestal checks."`
	FailOnBad bool `flag:"fail-on-bad" help:"Exit with an error unless every check passed."`

	ResultsDB     string        `flag:"results-db" help:"Bolt file keeping the result history between runs."`
	ResultsKeep   time.Duration `flag:"results-keep" help:"Delete stored results older than this before restoring the history, 0 keeps everything."`
	KafkaHosts    []string      `flag:"kafka-hosts" help:"Kafka brokers to publish results to."`
	KafkaTopic    string        `flag:"kafka-topic" help:"Kafka topic for results."`
	KafkaEncoding string        `flag:"kafka-encoding" help:"Encoding of published results: json or avro."`
	KafkaSchemaID int           `flag:"kafka-schema-id" help:"Schema registry id framing avro results, 0 for none."`
	S3Bucket      string        `flag:"s3-bucket" help:"S3 bucket receiving the JSON report."`
	S3Region      string        `flag:"s3-region" help:"Region of the S3 bucket."`
	S3Prefix      string        `flag:"s3-prefix" help:"Key prefix of uploaded reports."`
	AvroReport    string        `flag:"avro-report" help:"Write the latest results to this Avro file."`
	MetricsAddr   string        `flag:"metrics-addr" help:"Serve Prometheus metrics on this address while running."`
	TermStats     bool          `flag:"term-stats" help:"Print processing statistics to stderr."`
	Verbose       bool          `flag:"verbose" short:"v" help:"Log debug messages."`

	// Decoders unpack the fragments of every record. NewMain sets the
	// synthetic decoders matching fake:// locations.
	Decoders dqm.Decoders `flag:"-"`

	stdout io.Writer
	stderr io.Writer
	log    dqm.Logger
	stats  dqm.Statter
	clock  func() time.Time
	up     []s3.UpOption
}

// NewMain returns a Main with the defaults of the analyzer.
func NewMain(stdout, stderr io.Writer) *Main {
	return &Main{
		NRecords:      1,
		NWorkers:      dqm.DefaultMaxWorkers,
		Prescale:      1,
		Policy:        dqm.SkipFailed.String(),
		KafkaTopic:    "dqm-results",
		KafkaEncoding: kafka.EncodingJSON,
		S3Region:      "us-east-1",
		Decoders:      fake.Decoders{},

		stdout: stdout,
		stderr: stderr,
	}
}

func (m *Main) logger() dqm.Logger {
	if m.log == nil {
		m.log = dqm.NewKitLogger(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(m.stderr)), m.Verbose)
	}
	return m.log
}

func (m *Main) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now()
}

func (m *Main) prescales() dqm.Prescales {
	p := dqm.Prescales{Analysis: m.Prescale}
	if m.WaveformPrescale > 0 {
		w := m.WaveformPrescale
		p.Waveform = &w
	}
	return p
}

// Processor builds the record processor configured by m.
func (m *Main) Processor() (*dqm.RecordProcessor, error) {
	policy, err := dqm.ParseFailurePolicy(m.Policy)
	if err != nil {
		return nil, err
	}
	if m.Decoders == nil {
		return nil, errors.New("no fragment decoders")
	}
	d := dqm.NewDispatcher(m.Decoders,
		dqm.OptDispatcherStrict(m.StrictEnv), dqm.OptDispatcherLogger(m.logger()))
	p := dqm.NewRecordProcessor(d)
	p.MaxWorkers = m.NWorkers
	p.Prescales = m.prescales()
	p.TaskTimeout = m.TaskTimeout
	p.Policy = policy
	p.Log = m.logger()
	if m.stats != nil {
		p.Stats = m.stats
	}
	return p, nil
}

// setupStats starts the configured statistics sink and returns a function
// stopping it.
func (m *Main) setupStats(ctx context.Context) (stop func()) {
	switch {
	case m.MetricsAddr != "":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m.stats = prom.NewStatter(reg)
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := prom.Serve(ctx, m.MetricsAddr, reg, m.logger()); err != nil {
				m.logger().Printf("metrics server: %v", err)
			}
		}()
		return func() { cancel(); <-done }
	case m.TermStats:
		c := termstat.NewCollector(m.stderr, 0)
		m.stats = c
		return func() {
			c.Close()
			fmt.Fprintln(m.stderr)
		}
	}
	return func() {}
}

// Run processes the records at locations, runs the checks and distributes
// the report.
func (m *Main) Run(ctx context.Context, locations ...string) error {
	if len(locations) == 0 {
		return errors.New("no input locations")
	}
	log := m.logger()
	stop := m.setupStats(ctx)
	defer stop()

	p, err := m.Processor()
	if err != nil {
		return err
	}
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

	suite, err := checks.NewStandardSuite(checks.SuiteConfig{
		VD:        m.VD,
		PDS:       m.PDS,
		WIBPulser: m.WIBPulser,
		Log:       log,
		Clock:     m.clock,
	})
	if err != nil {
		return errors.Wrap(err, "building suite")
	}
	var store *boltdb.ResultStore
	if m.ResultsDB != "" {
		if store, err = boltdb.Open(m.ResultsDB); err != nil {
			return err
		}
		defer store.Close()
		if m.ResultsKeep > 0 {
			n, err := store.DeleteBefore(suite.Name(), m.now().Add(-m.ResultsKeep))
			if err != nil {
				return errors.Wrap(err, "pruning result history")
			}
			log.Printf("deleted %d stored results older than %v", n, m.ResultsKeep)
		}
		if err := store.Restore(suite); err != nil {
			return err
		}
	}
	summary, err := suite.Run(ds)
	if err != nil {
		return errors.Wrap(err, "running checks")
	}
	if store != nil {
		if err := store.Save(suite); err != nil {
			return err
		}
	}
	if err := m.writeTables(suite); err != nil {
		return err
	}
	if err := m.distribute(suite.Report()); err != nil {
		return err
	}
	log.Printf("suite %s: %s", suite.Name(), summary)
	if m.FailOnBad && !summary.Passed() {
		return errors.Wrapf(ErrBadResults, "%s", summary.Message)
	}
	return nil
}

func (m *Main) writeTables(s *check.Suite) error {
	suites := append([]*check.Suite{s}, s.SubSuites()...)
	for _, sub := range suites {
		fmt.Fprintf(m.stdout, "%s: %s\n", sub.Name(), sub.Summary())
		if err := sub.WriteTable(m.stdout, check.TableOptions{Latest: true, Pretty: true}); err != nil {
			return err
		}
		fmt.Fprintln(m.stdout)
	}
	return nil
}

// distribute sends rep to every configured destination.
func (m *Main) distribute(rep check.Report) error {
	log := m.logger()
	if m.AvroReport != "" {
		if err := writeAvroReport(m.AvroReport, rep); err != nil {
			return err
		}
		log.Printf("wrote report to %s", m.AvroReport)
	}
	if len(m.KafkaHosts) > 0 {
		pub, err := kafka.Dial(m.KafkaHosts, m.KafkaTopic,
			kafka.OptPublisherEncoding(m.KafkaEncoding),
			kafka.OptPublisherSchemaID(m.KafkaSchemaID),
			kafka.OptPublisherLogger(log))
		if err != nil {
			return errors.Wrap(err, "connecting to kafka")
		}
		_, err = pub.Publish(rep)
		cerr := pub.Close()
		if err != nil {
			return err
		}
		if cerr != nil {
			return cerr
		}
	}
	if m.S3Bucket != "" {
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
		if _, err := up.PutReport(rep); err != nil {
			return err
		}
	}
	return nil
}

func writeAvroReport(path string, rep check.Report) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "making report directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating report file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = errors.Wrap(cerr, "closing report file")
		}
	}()
	return avro.WriteReport(f, rep)
}
