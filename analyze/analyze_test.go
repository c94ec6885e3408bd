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

package analyze

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dunedaq/dqm/aws/s3"
	"github.com/dunedaq/dqm/boltdb"
	"github.com/dunedaq/dqm/mock"
	"github.com/dunedaq/dqm/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	keys []string
}

func (f *fakeS3) PutObject(in *awss3.PutObjectInput) (*awss3.PutObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	return &awss3.PutObjectOutput{}, nil
}

func newTestMain(t *testing.T) (*Main, *bytes.Buffer) {
	t.Helper()
	return newTestMainAt(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

// newTestMainAt returns a Main whose clock starts at ts and advances one
// second per reading.
func newTestMainAt(t *testing.T, ts time.Time) (*Main, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	m := NewMain(&out, &bytes.Buffer{})
	m.NRecords = -1
	m.PDS = true
	m.log = &mock.RecordingLogger{}
	m.clock = func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
	return m, &out
}

func TestRun(t *testing.T) {
	dir := test.TempDir(t)
	m, out := newTestMain(t)
	m.ResultsDB = filepath.Join(dir, "results.db")
	m.AvroReport = filepath.Join(dir, "reports", "latest.avro")
	m.FailOnBad = true
	up := &fakeS3{}
	m.S3Bucket = "dqm-reports"
	m.S3Prefix = "np04hd"
	m.up = append(m.up, s3.OptUpClient(up))

	require.NoError(t, m.Run(context.Background(), "fake://?records=3"))
	assert.Contains(t, out.String(), "dqm: OK: all 21 results are OK.")
	assert.Contains(t, out.String(), "pds: OK: all 4 results are OK.")
	assert.Contains(t, out.String(), "AllExpectedFragmentsTest")
	require.Len(t, up.keys, 1)
	assert.Regexp(t, `^np04hd/dqm/report-20240301T12\d{4}Z\.json$`, up.keys[0])

	f, err := os.Open(m.AvroReport)
	require.NoError(t, err)
	defer f.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("Obj\x01")))

	// a second run restores the history first and appends to it.
	m2, _ := newTestMain(t)
	m2.ResultsDB = m.ResultsDB
	require.NoError(t, m2.Run(context.Background(), "fake://?records=3"))

	store, err := boltdb.Open(m.ResultsDB)
	require.NoError(t, err)
	defer store.Close()
	suites, err := store.Suites()
	require.NoError(t, err)
	assert.Equal(t, []string{"dqm", "dqm/pds"}, suites)
	hist, err := store.History("dqm/pds")
	require.NoError(t, err)
	assert.Len(t, hist, 8)
}

func TestRunFailOnBad(t *testing.T) {
	m, out := newTestMain(t)
	m.FailOnBad = true
	err := m.Run(context.Background(), "fake://?records=2&noisy=2")
	require.Error(t, err)
	assert.Equal(t, ErrBadResults, errors.Cause(err))
	assert.Contains(t, out.String(), "RMS_HD_TPC_High")

	m.FailOnBad = false
	assert.NoError(t, m.Run(context.Background(), "fake://?records=2&noisy=2"))
}

func TestRunResultsKeep(t *testing.T) {
	db := filepath.Join(test.TempDir(t), "results.db")

	m, _ := newTestMainAt(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	m.ResultsDB = db
	require.NoError(t, m.Run(context.Background(), "fake://?records=2&noisy=2"))

	// clean data still fails while the stored BAD results are restored.
	later := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m, _ = newTestMainAt(t, later)
	m.ResultsDB = db
	m.FailOnBad = true
	err := m.Run(context.Background(), "fake://?records=2")
	assert.Equal(t, ErrBadResults, errors.Cause(err))

	m, out := newTestMainAt(t, later.Add(time.Hour))
	m.ResultsDB = db
	m.FailOnBad = true
	m.ResultsKeep = 24 * time.Hour
	require.NoError(t, m.Run(context.Background(), "fake://?records=2"))
	assert.Contains(t, out.String(), "dqm: OK")

	store, err := boltdb.Open(db)
	require.NoError(t, err)
	defer store.Close()
	for _, path := range []string{"dqm", "dqm/pds"} {
		hist, err := store.History(path)
		require.NoError(t, err)
		require.NotEmpty(t, hist, path)
		for _, rec := range hist {
			assert.True(t, rec.Time.After(later.Add(-24*time.Hour)), "%s %s at %v", path, rec.Name, rec.Time)
		}
	}
}

func TestRunErrors(t *testing.T) {
	m, _ := newTestMain(t)
	assert.Error(t, m.Run(context.Background()))
	assert.Error(t, m.Run(context.Background(), "nosuch://x"))
	m.Policy = "retry"
	assert.Error(t, m.Run(context.Background(), "fake://"))
}

func TestProcessor(t *testing.T) {
	m := NewMain(&bytes.Buffer{}, &bytes.Buffer{})
	m.WaveformPrescale = 3
	m.NWorkers = 2
	m.Policy = "abort"
	p, err := m.Processor()
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxWorkers)
	require.NotNil(t, p.Prescales.Waveform)
	assert.Equal(t, 3, *p.Prescales.Waveform)
	assert.Equal(t, "abort", p.Policy.String())

	m.Decoders = nil
	_, err = m.Processor()
	assert.EqualError(t, err, "no fragment decoders")
}
