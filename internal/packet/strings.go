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
	"unicode/utf8"

	"github.com/yunqi/lighthouse/internal/binary"
	"github.com/yunqi/lighthouse/internal/xerror"
)

func readUint16(r io.Reader) (uint16, error) { return binary.ReadUint16(r) }
func writeUint16(w io.Writer, v uint16) error { return binary.WriteUint16(w, v) }

// UTF8EncodedStrings returns the on-wire length-prefixed encoding of b.
func UTF8EncodedStrings(b []byte) ([]byte, int, error) {
	buf := &bytes.Buffer{}
	if err := binary.WriteString(buf, b); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), buf.Len(), nil
}

// UTF8DecodedStrings reads a length-prefixed string from buf. When
// requireValidUTF8 is true (every string field in this codec except raw
// PUBLISH payload bytes), a decoded value that is not valid UTF-8 or
// that contains a NUL byte is rejected as MalformedPacket.
func UTF8DecodedStrings(requireValidUTF8 bool, buf *bytes.Buffer) ([]byte, error) {
	s, err := binary.ReadString(buf)
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	b := []byte(s)
	if requireValidUTF8 {
		if !utf8.Valid(b) {
			return nil, xerror.ErrMalformed
		}
		for _, c := range b {
			if c == 0 {
				return nil, xerror.ErrMalformed
			}
		}
	}
	return b, nil
}

// encode writes a complete frame: fixed header (type+flags, then the
// variable-length remaining_length computed from body.Len()) followed
// by body's bytes.
func encode(header *FixedHeader, body *bytes.Buffer, w io.Writer) error {
	rl, err := EncodeRemainingLength(uint32(body.Len()))
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(header.Type)<<4 | header.Flags}); err != nil {
		return err
	}
	if _, err := w.Write(rl); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}
