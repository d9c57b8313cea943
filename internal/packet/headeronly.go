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

// PingReq carries no payload; the client sends it to keep the
// connection alive and to confirm the server is still responsive.
type PingReq struct{}

func (p *PingReq) Type() Type { return PINGREQ }
func (p *PingReq) Encode(w io.Writer) error { return encodeHeaderOnly(PINGREQ, w) }

func decodePingReq(header FixedHeader, r *bytes.Reader) (*PingReq, error) {
	if err := checkEmptyHeaderOnly(header, r); err != nil {
		return nil, err
	}
	return &PingReq{}, nil
}

// PingResp answers PingReq.
type PingResp struct{}

func (p *PingResp) Type() Type { return PINGRESP }
func (p *PingResp) Encode(w io.Writer) error { return encodeHeaderOnly(PINGRESP, w) }

// Disconnect is the client's graceful close notification; its presence
// tells the session to discard the will message [MQTT-3.1.2-10].
type Disconnect struct{}

func (d *Disconnect) Type() Type { return DISCONNECT }
func (d *Disconnect) Encode(w io.Writer) error { return encodeHeaderOnly(DISCONNECT, w) }

func decodeDisconnect(header FixedHeader, r *bytes.Reader) (*Disconnect, error) {
	if err := checkEmptyHeaderOnly(header, r); err != nil {
		return nil, err
	}
	return &Disconnect{}, nil
}

func encodeHeaderOnly(t Type, w io.Writer) error {
	header := FixedHeader{Type: t, Flags: flagsReserved0000}
	return encode(&header, &bytes.Buffer{}, w)
}

func checkEmptyHeaderOnly(header FixedHeader, r *bytes.Reader) error {
	if header.Flags != flagsReserved0000 {
		return xerror.ErrMalformed
	}
	if r.Len() != 0 {
		return xerror.ErrMalformed
	}
	return nil
}
