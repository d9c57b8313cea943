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

// PubAck acknowledges a QoS 1 PUBLISH.
type PubAck struct{ PacketID uint16 }

func (p *PubAck) Type() Type { return PUBACK }
func (p *PubAck) Encode(w io.Writer) error { return encodeIDOnly(PUBACK, flagsReserved0000, p.PacketID, w) }

// PubRec is the first step of the QoS 2 PUBLISH handshake's acknowledgement.
type PubRec struct{ PacketID uint16 }

func (p *PubRec) Type() Type { return PUBREC }
func (p *PubRec) Encode(w io.Writer) error { return encodeIDOnly(PUBREC, flagsReserved0000, p.PacketID, w) }

// PubRel is the sender's response to PUBREC; MQTT-2.3.1-1 pins its fixed
// header flags to 0b0010.
type PubRel struct{ PacketID uint16 }

func (p *PubRel) Type() Type { return PUBREL }
func (p *PubRel) Encode(w io.Writer) error { return encodeIDOnly(PUBREL, flagsReserved0010, p.PacketID, w) }

// PubComp completes the QoS 2 handshake.
type PubComp struct{ PacketID uint16 }

func (p *PubComp) Type() Type { return PUBCOMP }
func (p *PubComp) Encode(w io.Writer) error { return encodeIDOnly(PUBCOMP, flagsReserved0000, p.PacketID, w) }

func encodeIDOnly(t Type, flags byte, id uint16, w io.Writer) error {
	buf := &bytes.Buffer{}
	if err := writeUint16(buf, id); err != nil {
		return err
	}
	header := FixedHeader{Type: t, Flags: flags}
	return encode(&header, buf, w)
}

func decodeIDOnly(header FixedHeader, wantFlags byte, r *bytes.Reader) (uint16, error) {
	if header.Flags != wantFlags {
		return 0, xerror.ErrMalformed
	}
	id, err := readUint16(r)
	if err != nil {
		return 0, xerror.ErrMalformed
	}
	return id, nil
}

func decodePubAck(header FixedHeader, r *bytes.Reader) (*PubAck, error) {
	id, err := decodeIDOnly(header, flagsReserved0000, r)
	if err != nil {
		return nil, err
	}
	return &PubAck{PacketID: id}, nil
}

func decodePubRec(header FixedHeader, r *bytes.Reader) (*PubRec, error) {
	id, err := decodeIDOnly(header, flagsReserved0000, r)
	if err != nil {
		return nil, err
	}
	return &PubRec{PacketID: id}, nil
}

func decodePubRel(header FixedHeader, r *bytes.Reader) (*PubRel, error) {
	id, err := decodeIDOnly(header, flagsReserved0010, r)
	if err != nil {
		return nil, err
	}
	return &PubRel{PacketID: id}, nil
}

func decodePubComp(header FixedHeader, r *bytes.Reader) (*PubComp, error) {
	id, err := decodeIDOnly(header, flagsReserved0000, r)
	if err != nil {
		return nil, err
	}
	return &PubComp{PacketID: id}, nil
}
