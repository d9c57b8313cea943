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

// Package frame reads one complete MQTT frame (fixed header plus body)
// at a time off a connection's blocking byte stream. Each Connection
// owns exactly one goroutine calling Read in a loop, so the reader
// never has to juggle partial frames across calls the way a
// non-blocking, callback-driven transport would.
package frame

import (
	"bufio"
	"io"

	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/xerror"
)

// Reader pulls length-delimited MQTT frames off a buffered byte stream.
type Reader struct {
	br     *bufio.Reader
	maxLen uint32
}

// NewReader wraps r. maxLen caps the accepted remaining_length; 0 means
// packet.MaxRemainingLength.
func NewReader(r io.Reader, maxLen uint32) *Reader {
	if maxLen == 0 || maxLen > packet.MaxRemainingLength {
		maxLen = packet.MaxRemainingLength
	}
	return &Reader{br: bufio.NewReader(r), maxLen: maxLen}
}

// Read blocks until one complete frame is available, decodes its fixed
// header, and returns the header alongside the raw body slice — ready
// to hand to packet.Decode. A read that never completes a frame (EOF,
// i/o error, or a malformed variable-length integer) returns that error
// and the Reader must not be reused.
func (r *Reader) Read() (packet.FixedHeader, []byte, error) {
	typeAndFlags, err := r.br.ReadByte()
	if err != nil {
		return packet.FixedHeader{}, nil, err
	}

	rl, err := packet.DecodeRemainingLength(r.br)
	if err != nil {
		return packet.FixedHeader{}, nil, err
	}
	if rl > r.maxLen {
		return packet.FixedHeader{}, nil, xerror.ErrMalformed
	}

	header := packet.FixedHeader{
		Type:         packet.Type(typeAndFlags >> 4),
		Flags:        typeAndFlags & 0x0F,
		RemainLength: rl,
	}

	var body []byte
	if rl > 0 {
		body = make([]byte, rl)
		if _, err := io.ReadFull(r.br, body); err != nil {
			return packet.FixedHeader{}, nil, err
		}
	}
	return header, body, nil
}
