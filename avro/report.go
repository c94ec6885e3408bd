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

package avro

import (
	"io"
	"strings"
	"time"

	"github.com/dunedaq/dqm/check"
	goavro "github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// ResultSchema describes one check result of a flattened report. suite is
// the slash separated path of the suite holding the result.
const ResultSchema = `{
  "type": "record",
  "name": "CheckResult",
  "namespace": "dunedaq.dqm",
  "fields": [
    {"name": "suite", "type": "string"},
    {"name": "name", "type": "string"},
    {"name": "result", "type": {"type": "enum", "name": "Severity", "symbols": ["INVALID", "BAD", "OK", "WARNING"]}},
    {"name": "message", "type": "string"},
    {"name": "last_update", "type": {"type": "long", "logicalType": "timestamp-millis"}},
    {"name": "pass", "type": "string", "default": ""}
  ]
}`

// ResultCodec returns a codec for ResultSchema.
func ResultCodec() (*goavro.Codec, error) {
	c, err := goavro.NewCodec(ResultSchema)
	return c, errors.Wrap(err, "parsing result schema")
}

// ResultNative converts a result of the suite at path to the native form
// ResultCodec encodes.
func ResultNative(path string, rec check.RunRecord) map[string]interface{} {
	return map[string]interface{}{
		"suite":       path,
		"name":        rec.Name,
		"result":      rec.Severity.String(),
		"message":     rec.Message,
		"last_update": rec.Time.UTC(),
		"pass":        rec.Pass,
	}
}

// ResultFromNative is the inverse of ResultNative.
func ResultFromNative(datum interface{}) (string, check.RunRecord, error) {
	var rec check.RunRecord
	m, ok := datum.(map[string]interface{})
	if !ok {
		return "", rec, errors.Errorf("result is a %T", datum)
	}
	path, _ := m["suite"].(string)
	rec.Name, _ = m["name"].(string)
	rec.Message, _ = m["message"].(string)
	rec.Pass, _ = m["pass"].(string)
	sev, _ := m["result"].(string)
	if err := rec.Severity.UnmarshalText([]byte(sev)); err != nil {
		return "", rec, err
	}
	ts, ok := m["last_update"].(time.Time)
	if !ok {
		return "", rec, errors.Errorf("last_update is a %T", m["last_update"])
	}
	rec.Time = ts
	return path, rec, nil
}

// Flatten lists the latest results of a report and all its nested reports,
// each with the path of its suite.
func Flatten(rep check.Report) (paths []string, recs []check.RunRecord) {
	rep.Walk(func(path []string, r check.Report) {
		p := strings.Join(append(append([]string(nil), path...), r.Name), "/")
		for _, rec := range r.Results {
			paths = append(paths, p)
			recs = append(recs, rec)
		}
	})
	return paths, recs
}

// WriteReport writes the flattened latest results of rep to w as an object
// container file.
func WriteReport(w io.Writer, rep check.Report) error {
	codec, err := ResultCodec()
	if err != nil {
		return err
	}
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{W: w, Codec: codec})
	if err != nil {
		return errors.Wrap(err, "creating writer")
	}
	paths, recs := Flatten(rep)
	natives := make([]interface{}, len(recs))
	for i := range recs {
		natives[i] = ResultNative(paths[i], recs[i])
	}
	return errors.Wrap(ocfw.Append(natives), "appending results")
}
