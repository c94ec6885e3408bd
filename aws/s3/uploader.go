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

// Package s3 uploads check reports and table exports to an S3 bucket.
package s3

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/check"
	"github.com/pkg/errors"
)

// UpOption is a functional option type for Uploader.
type UpOption func(u *Uploader)

// OptUpBucket sets the S3 bucket objects are put in.
func OptUpBucket(bucket string) UpOption {
	return func(u *Uploader) {
		u.bucket = bucket
	}
}

// OptUpRegion sets the AWS region used when no client is given.
func OptUpRegion(region string) UpOption {
	return func(u *Uploader) {
		u.region = region
	}
}

// OptUpPrefix prepends prefix to every object key.
func OptUpPrefix(prefix string) UpOption {
	return func(u *Uploader) {
		u.prefix = strings.Trim(prefix, "/")
	}
}

// OptUpClient sets the S3 client, e.g. a fake in tests.
func OptUpClient(c s3iface.S3API) UpOption {
	return func(u *Uploader) {
		u.s3 = c
	}
}

// OptUpLogger sets the logger.
func OptUpLogger(l dqm.Logger) UpOption {
	return func(u *Uploader) {
		if l != nil {
			u.log = l
		}
	}
}

// Uploader puts objects into one bucket.
type Uploader struct {
	bucket string
	prefix string
	region string

	s3  s3iface.S3API
	log dqm.Logger
}

// NewUploader returns a new Uploader with the options applied. Without
// OptUpClient it opens an AWS session for the configured region.
func NewUploader(opts ...UpOption) (*Uploader, error) {
	u := &Uploader{
		region: "us-east-1",
		log:    dqm.NopLogger{},
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.bucket == "" {
		return nil, errors.New("no bucket given")
	}
	if u.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(u.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		u.s3 = s3.New(sess)
	}
	return u, nil
}

// Key returns the object key of name under the configured prefix.
func (u *Uploader) Key(name ...string) string {
	return path.Join(append([]string{u.prefix}, name...)...)
}

// Put uploads body under the key Key(name) and returns the key.
func (u *Uploader) Put(name string, body io.ReadSeeker, contentType string) (string, error) {
	key := u.Key(name)
	_, err := u.s3.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "putting %s", key)
	}
	u.log.Printf("uploaded s3://%s/%s", u.bucket, key)
	return key, nil
}

// ReportName is the object name of a report snapshot.
func ReportName(rep check.Report) string {
	return path.Join(rep.Name, "report-"+Stamp(rep.Time)+".json")
}

// PutReport uploads rep as JSON and returns its key.
func (u *Uploader) PutReport(rep check.Report) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshalling report")
	}
	return u.Put(ReportName(rep), bytes.NewReader(data), "application/json")
}

// PutDir uploads every regular file directly inside dir under
// Key(base, filename), in name order, and returns the keys.
func (u *Uploader) PutDir(dir, base string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading directory")
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name() < ents[j].Name() })
	var keys []string
	for _, e := range ents {
		if !e.Type().IsRegular() {
			continue
		}
		key, err := u.putFile(filepath.Join(dir, e.Name()), path.Join(base, e.Name()))
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (u *Uploader) putFile(file, name string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", errors.Wrap(err, "opening file")
	}
	defer f.Close()
	ct := "application/octet-stream"
	if filepath.Ext(file) == ".avro" {
		ct = "avro/binary"
	}
	return u.Put(name, f, ct)
}

// Stamp is the directory name used for exports made at t.
func Stamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
