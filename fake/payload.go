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

package fake

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Fragment payloads are a fixed size little endian summary of the frames a
// real fragment would carry. Decoders expand them back into per-channel
// values with a random generator seeded from the payload, so the same
// fragment always decodes to the same rows.

// TicksPerFrame is the DTS tick distance between two WIBEth frames.
const TicksPerFrame = 32 * 64

// ChannelsPerLink is the number of TPC channels carried by one WIBEth link.
const ChannelsPerLink = 64

// ChannelsPerPDSLink is the number of photon detector channels per DAPHNE
// link.
const ChannelsPerPDSLink = 8

type wibPayload struct {
	NFrames   uint32
	FirstTS   uint64
	Seed      int64
	Noisy     uint16
	Pulser    uint8
	CD0Offset uint16
}

type daphnePayload struct {
	NFrames uint32
	FirstTS uint64
	Seed    int64
	Dead    uint16
	BadTS   uint8
}

func encode(p interface{}) []byte {
	var buf bytes.Buffer
	// writes of fixed size structs to a bytes.Buffer cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, p)
	return buf.Bytes()
}

func decode(data []byte, p interface{}) error {
	if want := binary.Size(p); len(data) != want {
		return errors.Errorf("payload has %d bytes, want %d", len(data), want)
	}
	return errors.Wrap(binary.Read(bytes.NewReader(data), binary.LittleEndian, p), "decoding payload")
}
