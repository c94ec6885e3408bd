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

// Package kafka publishes check results to a Kafka topic, one message per
// result, so that dashboards can follow the data quality of a run.
package kafka

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log"

	"github.com/Shopify/sarama"
	"github.com/dunedaq/dqm"
	"github.com/dunedaq/dqm/avro"
	"github.com/dunedaq/dqm/check"
	goavro "github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// Encodings of published messages.
const (
	EncodingJSON = "json"
	EncodingAvro = "avro"
)

// Message is the JSON form of one published result.
type Message struct {
	Suite string `json:"suite"`
	check.RunRecord
}

// Publisher sends the results of suite reports to a topic.
type Publisher struct {
	Topic string

	encoding string
	schemaID int
	codec    *goavro.Codec
	producer sarama.SyncProducer
	log      dqm.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(p *Publisher) error

// OptPublisherEncoding selects EncodingJSON (the default) or EncodingAvro.
func OptPublisherEncoding(enc string) PublisherOption {
	return func(p *Publisher) error {
		switch enc {
		case EncodingJSON, "":
			p.encoding = EncodingJSON
		case EncodingAvro:
			codec, err := avro.ResultCodec()
			if err != nil {
				return err
			}
			p.encoding, p.codec = enc, codec
		default:
			return errors.Errorf("unsupported kafka message encoding: '%v'", enc)
		}
		return nil
	}
}

// OptPublisherSchemaID prefixes Avro messages with the schema registry
// framing: a zero magic byte and the 4 byte schema id.
func OptPublisherSchemaID(id int) PublisherOption {
	return func(p *Publisher) error {
		p.schemaID = id
		return nil
	}
}

// OptPublisherLogger sets the logger.
func OptPublisherLogger(l dqm.Logger) PublisherOption {
	return func(p *Publisher) error {
		if l != nil {
			p.log = l
		}
		return nil
	}
}

// NewPublisher returns a Publisher sending through producer.
func NewPublisher(producer sarama.SyncProducer, topic string, opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		Topic:    topic,
		encoding: EncodingJSON,
		producer: producer,
		log:      dqm.NopLogger{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	return p, nil
}

// Dial connects a synchronous producer to hosts and returns a Publisher
// using it.
func Dial(hosts []string, topic string, opts ...PublisherOption) (*Publisher, error) {
	sarama.Logger = log.New(io.Discard, "", 0)
	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	p, err := NewPublisher(producer, topic, opts...)
	if err != nil {
		producer.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) encode(path string, rec check.RunRecord) ([]byte, error) {
	if p.encoding == EncodingJSON {
		return json.Marshal(Message{Suite: path, RunRecord: rec})
	}
	var buf []byte
	if p.schemaID != 0 {
		buf = make([]byte, 5, 256)
		binary.BigEndian.PutUint32(buf[1:], uint32(p.schemaID))
	}
	return p.codec.BinaryFromNative(buf, avro.ResultNative(path, rec))
}

// Publish sends the latest results of rep and its nested reports, keyed by
// suite path and test name, and returns how many messages were sent.
func (p *Publisher) Publish(rep check.Report) (int, error) {
	paths, recs := avro.Flatten(rep)
	msgs := make([]*sarama.ProducerMessage, len(recs))
	for i, rec := range recs {
		val, err := p.encode(paths[i], rec)
		if err != nil {
			return 0, errors.Wrapf(err, "encoding %s/%s", paths[i], rec.Name)
		}
		msgs[i] = &sarama.ProducerMessage{
			Topic: p.Topic,
			Key:   sarama.StringEncoder(paths[i] + "/" + rec.Name),
			Value: sarama.ByteEncoder(val),
		}
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		return 0, errors.Wrap(err, "sending results")
	}
	p.log.Printf("published %d results of %s to %s", len(msgs), rep.Name, p.Topic)
	return len(msgs), nil
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	return errors.Wrap(p.producer.Close(), "closing kafka producer")
}
