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
	"io"

	"github.com/yunqi/lighthouse/internal/xerror"
)

// MaxRemainingLength is the largest remaining-length value the 4-byte
// variable-length integer encoding can represent: 128^4 - 1.
const MaxRemainingLength = 268435455

// EncodeRemainingLength encodes n as an MQTT variable-length integer:
// each byte carries 7 bits of n, low-to-high, with the top bit set on
// every byte but the last.
func EncodeRemainingLength(n uint32) ([]byte, error) {
	if n > MaxRemainingLength {
		return nil, xerror.ErrMalformed
	}
	var out []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out, nil
}

// DecodeRemainingLength reads an MQTT variable-length integer one byte
// at a time, rejecting an encoding that would require a 5th
// continuation byte or a decoded value above MaxRemainingLength.
func DecodeRemainingLength(r io.ByteReader) (uint32, error) {
	var value uint32
	var multiplier uint32 = 1
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value += uint32(b&0x7f) * multiplier
		if b&0x80 == 0 {
			if value > MaxRemainingLength {
				return 0, xerror.ErrMalformed
			}
			return value, nil
		}
		multiplier *= 128
	}
	return 0, xerror.ErrMalformed
}

// TotalLength returns the total on-wire size of a frame whose
// remaining-length is rl: 1 header byte, the varint encoding of rl, and
// rl body bytes.
func TotalLength(rl uint32) (int, error) {
	enc, err := EncodeRemainingLength(rl)
	if err != nil {
		return 0, err
	}
	return 1 + len(enc) + int(rl), nil
}
