/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package packet

import (
	"bytes"
	"io"

	"github.com/yunqi/lighthouse/internal/xerror"
)

// Publish is an MQTT PUBLISH packet.
type Publish struct {
	Dup      bool
	QoS      QoS
	Retain   bool
	Topic    []byte
	PacketID uint16 // valid iff QoS > AtMostOnce
	Payload  []byte
}

func (p *Publish) Type() Type { return PUBLISH }

func decodePublish(header FixedHeader, r *bytes.Reader) (*Publish, error) {
	dup := header.Flags&0b1000 != 0
	qos := QoS((header.Flags >> 1) & 0b11)
	retain := header.Flags&0b0001 != 0

	if qos == Reserved {
		return nil, xerror.ErrMalformed
	}
	if qos == AtMostOnce && dup {
		return nil, xerror.ErrMalformed
	}

	bb := &bytes.Buffer{}
	if _, err := bb.ReadFrom(r); err != nil {
		return nil, xerror.ErrMalformed
	}

	topicBytes, err := UTF8DecodedStrings(true, bb)
	if err != nil {
		return nil, err
	}
	if err := validateTopicName(topicBytes); err != nil {
		return nil, err
	}

	p := &Publish{Dup: dup, QoS: qos, Retain: retain, Topic: topicBytes}
	if qos > AtMostOnce {
		id, err := readUint16(bb)
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		p.PacketID = id
	}
	p.Payload = append([]byte(nil), bb.Bytes()...)
	return p, nil
}

func (p *Publish) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	topicBytes, _, err := UTF8EncodedStrings(p.Topic)
	if err != nil {
		return err
	}
	buf.Write(topicBytes)
	if p.QoS > AtMostOnce {
		if err := writeUint16(buf, p.PacketID); err != nil {
			return err
		}
	}
	buf.Write(p.Payload)

	var flags byte
	if p.Dup {
		flags |= 0b1000
	}
	flags |= byte(p.QoS) << 1
	if p.Retain {
		flags |= 0b0001
	}
	header := FixedHeader{Type: PUBLISH, Flags: flags}
	return encode(&header, buf, w)
}

// Clone returns a deep-enough copy suitable for forwarding to multiple
// subscribers with independent Dup/QoS/PacketID/Retain per recipient.
func (p *Publish) Clone() *Publish {
	cp := *p
	cp.Topic = append([]byte(nil), p.Topic...)
	cp.Payload = append([]byte(nil), p.Payload...)
	return &cp
}
