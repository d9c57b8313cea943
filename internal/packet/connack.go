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
)

// ConnAck is the server's reply to CONNECT.
type ConnAck struct {
	SessionPresent bool
	Code           code.Code
}

func (c *ConnAck) Type() Type { return CONNACK }

func (c *ConnAck) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	flags := byte(0)
	if c.SessionPresent {
		flags = 1
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(c.Code))
	header := FixedHeader{Type: CONNACK, Flags: flagsReserved0000}
	return encode(&header, buf, w)
}
