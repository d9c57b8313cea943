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
	"fmt"
	"io"

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/xerror"
)

// connectFlagsReserved is the only fixed-header flags value CONNECT
// accepts [MQTT-2.2.2-2].
const connectFlagsReserved = flagsReserved0000

// Connect represents the MQTT CONNECT packet.
type Connect struct {
	FixedHeader FixedHeader

	ProtocolName  []byte
	ProtocolLevel byte
	ConnectFlags
	// KeepAlive is a time interval measured in seconds: the maximum time
	// that may elapse between the client finishing one control packet and
	// starting the next.
	KeepAlive uint16

	WillTopic   []byte
	WillMessage []byte

	ClientID []byte
	Username []byte
	Password []byte
}

// ConnectFlags decodes the single CONNECT flags byte.
type ConnectFlags struct {
	CleanSession bool
	WillFlag     bool
	WillQoS      byte
	WillRetain   bool
	PasswordFlag bool
	UsernameFlag bool
}

func (c *Connect) Type() Type { return CONNECT }

var protocolNamePrefix = []byte{0x00, 0x04}

const (
	_ = 1 << iota
	cleanSessionTrue
	willFlagTrue
	willQoS1
	willQoS2
	willRetainTrue
	passwordFlagTrue
	usernameFlagTrue
)

func decodeConnect(header FixedHeader, r *bytes.Reader) (*Connect, error) {
	if header.Flags != connectFlagsReserved {
		return nil, xerror.ErrMalformed
	}
	c := &Connect{FixedHeader: header}
	if err := c.decodeBody(r); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connect) decodeBody(buf *bytes.Reader) error {
	bb := &bytes.Buffer{}
	if _, err := bb.ReadFrom(buf); err != nil {
		return xerror.ErrMalformed
	}

	protocolName, err := UTF8DecodedStrings(true, bb)
	if err != nil {
		return err
	}
	c.ProtocolName = protocolName

	c.ProtocolLevel, err = bb.ReadByte()
	if err != nil {
		return xerror.ErrMalformed
	}
	if string(c.ProtocolName) != "MQTT" || c.ProtocolLevel != byte(V311) {
		return xerror.ErrUnsupportedProtocolVersion
	}

	connectFlags, err := bb.ReadByte()
	if err != nil {
		return xerror.ErrMalformed
	}
	reserved := 1 & connectFlags
	if reserved != 0 { // [MQTT-3.1.2-3]
		return xerror.ErrMalformed
	}
	c.CleanSession = (1 & (connectFlags >> 1)) > 0
	c.WillFlag = (1 & (connectFlags >> 2)) > 0
	c.WillQoS = 3 & (connectFlags >> 3)
	if !c.WillFlag && c.WillQoS != 0 { // [MQTT-3.1.2-11]
		return xerror.ErrMalformed
	}
	if c.WillQoS == byte(Reserved) {
		return xerror.ErrMalformed
	}
	c.WillRetain = (1 & (connectFlags >> 5)) > 0
	if !c.WillFlag && c.WillRetain { // [MQTT-3.1.2-11]
		return xerror.ErrMalformed
	}
	c.PasswordFlag = (1 & (connectFlags >> 6)) > 0
	c.UsernameFlag = (1 & (connectFlags >> 7)) > 0
	if c.PasswordFlag && !c.UsernameFlag {
		return xerror.ErrMalformed
	}

	c.KeepAlive, err = readUint16(bb)
	if err != nil {
		return xerror.ErrMalformed
	}
	return c.decodePayload(bb)
}

func (c *Connect) decodePayload(buf *bytes.Buffer) error {
	var err error
	c.ClientID, err = UTF8DecodedStrings(true, buf)
	if err != nil {
		return err
	}
	if len(c.ClientID) == 0 && !c.CleanSession { // [MQTT-3.1.3-7],[MQTT-3.1.3-8]
		return xerror.ErrMalformed
	}

	if c.WillFlag {
		c.WillTopic, err = UTF8DecodedStrings(true, buf)
		if err != nil {
			return err
		}
		if err := validateTopicName(c.WillTopic); err != nil {
			return err
		}
		n, err := readUint16(buf)
		if err != nil {
			return xerror.ErrMalformed
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(buf, payload); err != nil {
			return xerror.ErrMalformed
		}
		c.WillMessage = payload
	}

	if c.UsernameFlag {
		c.Username, err = UTF8DecodedStrings(true, buf)
		if err != nil {
			return err
		}
	}

	if c.PasswordFlag {
		c.Password, err = UTF8DecodedStrings(true, buf)
		if err != nil {
			return err
		}
	}
	if buf.Len() != 0 {
		return xerror.ErrMalformed
	}
	return nil
}

func (c *Connect) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	buf.Write(protocolNamePrefix)
	buf.Write(c.ProtocolName)
	buf.WriteByte(c.ProtocolLevel)

	var (
		usernameFlag byte
		passwordFlag byte
		willRetain   byte
		willFlag     byte
		willQos      byte
		cleanSession byte
	)
	if c.UsernameFlag {
		usernameFlag = usernameFlagTrue
	}
	if c.PasswordFlag {
		passwordFlag = passwordFlagTrue
	}
	if c.WillRetain {
		willRetain = willRetainTrue
	}
	switch c.WillQoS {
	case 1:
		willQos = willQoS1
	case 2:
		willQos = willQoS2
	}
	if c.WillFlag {
		willFlag = willFlagTrue
	}
	if c.CleanSession {
		cleanSession = cleanSessionTrue
	}
	flags := usernameFlag | passwordFlag | willRetain | willFlag | willQos | cleanSession
	buf.WriteByte(flags)
	if err := writeUint16(buf, c.KeepAlive); err != nil {
		return err
	}

	clientIDBytes, _, err := UTF8EncodedStrings(c.ClientID)
	if err != nil {
		return err
	}
	buf.Write(clientIDBytes)

	if c.WillFlag {
		willTopicBytes, _, err := UTF8EncodedStrings(c.WillTopic)
		if err != nil {
			return err
		}
		buf.Write(willTopicBytes)

		if err := writeUint16(buf, uint16(len(c.WillMessage))); err != nil {
			return err
		}
		buf.Write(c.WillMessage)
	}
	if c.UsernameFlag {
		usernameBytes, _, err := UTF8EncodedStrings(c.Username)
		if err != nil {
			return err
		}
		buf.Write(usernameBytes)
	}
	if c.PasswordFlag {
		passwordBytes, _, err := UTF8EncodedStrings(c.Password)
		if err != nil {
			return err
		}
		buf.Write(passwordBytes)
	}
	header := FixedHeader{Type: CONNECT, Flags: connectFlagsReserved}
	return encode(&header, buf, w)
}

func (c *Connect) String() string {
	return fmt.Sprintf(
		"CONNECT - ClientId: %s, CleanSession: %v, KeepAlive: %v, WillFlag: %v, WillQoS: %v, WillRetain: %v",
		c.ClientID, c.CleanSession, c.KeepAlive, c.WillFlag, c.WillQoS, c.WillRetain)
}

// NewConnAck builds the CONNACK that answers this CONNECT. sessionPresent
// should be true only when cd is code.Success, CleanSession was false and
// the session manager found an existing session to resume.
func (c *Connect) NewConnAck(cd code.Code, sessionPresent bool) *ConnAck {
	ack := &ConnAck{Code: cd}
	if !c.CleanSession && sessionPresent && cd == code.Success {
		ack.SessionPresent = true // [MQTT-3.2.2-2]
	}
	return ack
}
