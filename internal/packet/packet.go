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

// Package packet implements the MQTT 3.1.1 codec: the typed packet
// variants and the single decode function that dispatches on the fixed
// header's type nibble to a per-type body decoder.
package packet

import (
	"bytes"
	"io"

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/xerror"
)

// Type identifies one of the fifteen MQTT control packet types.
type Type byte

const (
	_ Type = iota
	CONNECT
	CONNACK
	PUBLISH
	PUBACK
	PUBREC
	PUBREL
	PUBCOMP
	SUBSCRIBE
	SUBACK
	UNSUBSCRIBE
	UNSUBACK
	PINGREQ
	PINGRESP
	DISCONNECT
)

func (t Type) String() string {
	switch t {
	case CONNECT:
		return "CONNECT"
	case CONNACK:
		return "CONNACK"
	case PUBLISH:
		return "PUBLISH"
	case PUBACK:
		return "PUBACK"
	case PUBREC:
		return "PUBREC"
	case PUBREL:
		return "PUBREL"
	case PUBCOMP:
		return "PUBCOMP"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SUBACK:
		return "SUBACK"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case UNSUBACK:
		return "UNSUBACK"
	case PINGREQ:
		return "PINGREQ"
	case PINGRESP:
		return "PINGRESP"
	case DISCONNECT:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// QoS is the MQTT quality-of-service level carried by PUBLISH and
// SUBSCRIBE packets.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
	Reserved    QoS = 3
)

// Version is the CONNECT protocol level. This broker only accepts V311.
type Version byte

const V311 Version = 4

// FixedHeader is the 1-byte type+flags header plus the decoded
// remaining-length that every MQTT packet starts with.
type FixedHeader struct {
	Type         Type
	Flags        byte
	RemainLength uint32
}

// Packet is implemented by every encodable packet type.
type Packet interface {
	Type() Type
	Encode(w io.Writer) error
}

// flagsReserved0000/0010 are the flag bits MQTT-3.1.1 pins
// for packet types whose header flags carry no information.
const (
	flagsReserved0000 = 0b0000
	flagsReserved0010 = 0b0010
)

// Decode dispatches on header.Type to a per-type body decoder. body must
// hold exactly header.RemainLength bytes, as produced by the frame
// reader; a decoder that does not consume it fully returns
// xerror.ErrMalformed.
func Decode(header FixedHeader, body []byte) (Packet, error) {
	r := bytes.NewReader(body)
	var (
		p   Packet
		err error
	)
	switch header.Type {
	case CONNECT:
		p, err = decodeConnect(header, r)
	case PUBLISH:
		p, err = decodePublish(header, r)
	case PUBACK:
		p, err = decodePubAck(header, r)
	case PUBREC:
		p, err = decodePubRec(header, r)
	case PUBREL:
		p, err = decodePubRel(header, r)
	case PUBCOMP:
		p, err = decodePubComp(header, r)
	case SUBSCRIBE:
		p, err = decodeSubscribe(header, r)
	case UNSUBSCRIBE:
		p, err = decodeUnsubscribe(header, r)
	case PINGREQ:
		p, err = decodePingReq(header, r)
	case DISCONNECT:
		p, err = decodeDisconnect(header, r)
	case CONNACK:
		var b [2]byte
		if _, err = io.ReadFull(r, b[:]); err != nil || header.Flags != flagsReserved0000 || b[0] > 1 {
			return nil, xerror.ErrMalformed
		}
		p = &ConnAck{SessionPresent: b[0] == 1, Code: code.Code(b[1])}
	case SUBACK:
		var id uint16
		if id, err = decodeIDOnly(header, flagsReserved0000, r); err == nil {
			sa := &SubAck{PacketID: id}
			for r.Len() > 0 {
				c, _ := r.ReadByte()
				sa.ReturnCodes = append(sa.ReturnCodes, code.SubscribeCode(c))
			}
			p = sa
		}
	case UNSUBACK:
		var id uint16
		id, err = decodeIDOnly(header, flagsReserved0000, r)
		p = &UnsubAck{PacketID: id}
	case PINGRESP:
		err = checkEmptyHeaderOnly(header, r)
		p = &PingResp{}
	default:
		return nil, xerror.ErrMalformed
	}
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, xerror.ErrMalformed
	}
	return p, nil
}
