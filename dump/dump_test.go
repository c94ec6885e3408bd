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

package dump

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/aws/s3"
	"github.com/dunedaq/dqm/leveldb"
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

func TestRun(t *testing.T) {
	dir := test.TempDir(t)
	m := NewMain(&bytes.Buffer{})
	m.Output = filepath.Join(dir, "tables")
	m.AvroDir = filepath.Join(dir, "avro")
	m.S3Bucket = "dqm"
	m.clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	up := &fakeS3{}
	m.up = append(m.up, s3.OptUpClient(up))
	require.NoError(t, m.Run(context.Background(), "fake://?records=2&pds=0"))

	ds, err := leveldb.LoadDirs(nil, m.Output)
	require.NoError(t, err)
	trh, ok := ds.Table(dqm.TableTriggerRecordHdr)
	require.True(t, ok)
	assert.Equal(t, 2, trh.Len())
	require.Len(t, up.keys, ds.Len())
	assert.Contains(t, up.keys, "tables/20240301T000000Z/"+dqm.TableTriggerRecordHdr+".avro")

	// a second dump into the same store needs force or append.
	m.AvroDir = ""
	err = m.Run(context.Background(), "fake://?records=2&run=2")
	assert.Equal(t, leveldb.ErrExists, errors.Cause(err))

	m.Append = true
	require.NoError(t, m.Run(context.Background(), "fake://?records=2&run=2&pds=0"))
	ds, err = leveldb.LoadDirs(nil, m.Output)
	require.NoError(t, err)
	trh, _ = ds.Table(dqm.TableTriggerRecordHdr)
	assert.Equal(t, 4, trh.Len())
	assert.Len(t, trh.Records(), 4)

	m.Append, m.Force = false, true
	require.NoError(t, m.Run(context.Background(), "fake://?records=1"))
	ds, err = leveldb.LoadDirs(nil, m.Output)
	require.NoError(t, err)
	trh, _ = ds.Table(dqm.TableTriggerRecordHdr)
	assert.Equal(t, 1, trh.Len())

	m.Append = true
	assert.Error(t, m.Run(context.Background(), "fake://"))
	m.Append, m.Force = false, false
	assert.Error(t, m.Run(context.Background()))

	// without decoders nothing is opened, so the store survives.
	m.Force = true
	m.Decoders = nil
	err = m.Run(context.Background(), "fake://?records=3")
	assert.EqualError(t, err, "no fragment decoders")
	ds, err = leveldb.LoadDirs(nil, m.Output)
	require.NoError(t, err)
	trh, _ = ds.Table(dqm.TableTriggerRecordHdr)
	assert.Equal(t, 1, trh.Len())
}
