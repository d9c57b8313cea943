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

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/xerror"
)

// Subscription is one (topic filter, requested QoS) pair from a
// SUBSCRIBE packet's payload.
type Subscription struct {
	TopicFilter []byte
	QoS         QoS
}

// Subscribe is an MQTT SUBSCRIBE packet. MQTT-3.8.1-1 pins its fixed
// header flags to 0b0010.
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
}

func (s *Subscribe) Type() Type { return SUBSCRIBE }

func decodeSubscribe(header FixedHeader, r *bytes.Reader) (*Subscribe, error) {
	if header.Flags != flagsReserved0010 {
		return nil, xerror.ErrMalformed
	}
	id, err := readUint16(r)
	if err != nil {
		return nil, xerror.ErrMalformed
	}

	bb := &bytes.Buffer{}
	if _, err := bb.ReadFrom(r); err != nil {
		return nil, xerror.ErrMalformed
	}

	s := &Subscribe{PacketID: id}
	for bb.Len() > 0 {
		filter, err := UTF8DecodedStrings(true, bb)
		if err != nil {
			return nil, err
		}
		if err := validateTopicFilter(filter); err != nil {
			return nil, err
		}
		qosByte, err := bb.ReadByte()
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		if qosByte&0xFC != 0 { // [MQTT-3.8.3-4] reserved bits must be zero
			return nil, xerror.ErrMalformed
		}
		qos := QoS(qosByte)
		if qos == Reserved {
			return nil, xerror.ErrMalformed
		}
		s.Subscriptions = append(s.Subscriptions, Subscription{TopicFilter: filter, QoS: qos})
	}
	if len(s.Subscriptions) == 0 { // [MQTT-3.8.3-3]
		return nil, xerror.ErrMalformed
	}
	return s, nil
}

func (s *Subscribe) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	if err := writeUint16(buf, s.PacketID); err != nil {
		return err
	}
	for _, sub := range s.Subscriptions {
		b, _, err := UTF8EncodedStrings(sub.TopicFilter)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte(byte(sub.QoS))
	}
	header := FixedHeader{Type: SUBSCRIBE, Flags: flagsReserved0010}
	return encode(&header, buf, w)
}

// SubAck replies to SUBSCRIBE with one return code per requested
// subscription, in the same order [MQTT-3.9.3-1].
type SubAck struct {
	PacketID    uint16
	ReturnCodes []code.SubscribeCode
}

func (s *SubAck) Type() Type { return SUBACK }

func (s *SubAck) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	if err := writeUint16(buf, s.PacketID); err != nil {
		return err
	}
	for _, c := range s.ReturnCodes {
		buf.WriteByte(byte(c))
	}
	header := FixedHeader{Type: SUBACK, Flags: flagsReserved0000}
	return encode(&header, buf, w)
}

// Unsubscribe is an MQTT UNSUBSCRIBE packet. MQTT-3.10.1-1 pins its
// fixed header flags to 0b0010.
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters [][]byte
}

func (u *Unsubscribe) Type() Type { return UNSUBSCRIBE }

func decodeUnsubscribe(header FixedHeader, r *bytes.Reader) (*Unsubscribe, error) {
	if header.Flags != flagsReserved0010 {
		return nil, xerror.ErrMalformed
	}
	id, err := readUint16(r)
	if err != nil {
		return nil, xerror.ErrMalformed
	}

	bb := &bytes.Buffer{}
	if _, err := bb.ReadFrom(r); err != nil {
		return nil, xerror.ErrMalformed
	}

	u := &Unsubscribe{PacketID: id}
	for bb.Len() > 0 {
		filter, err := UTF8DecodedStrings(true, bb)
		if err != nil {
			return nil, err
		}
		if err := validateTopicFilter(filter); err != nil {
			return nil, err
		}
		u.TopicFilters = append(u.TopicFilters, filter)
	}
	if len(u.TopicFilters) == 0 { // [MQTT-3.10.3-2]
		return nil, xerror.ErrMalformed
	}
	return u, nil
}

func (u *Unsubscribe) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	if err := writeUint16(buf, u.PacketID); err != nil {
		return err
	}
	for _, f := range u.TopicFilters {
		b, _, err := UTF8EncodedStrings(f)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	header := FixedHeader{Type: UNSUBSCRIBE, Flags: flagsReserved0010}
	return encode(&header, buf, w)
}

// UnsubAck replies to UNSUBSCRIBE; it carries no payload beyond the
// packet identifier.
type UnsubAck struct{ PacketID uint16 }

func (u *UnsubAck) Type() Type { return UNSUBACK }
func (u *UnsubAck) Encode(w io.Writer) error {
	return encodeIDOnly(UNSUBACK, flagsReserved0000, u.PacketID, w)
}
