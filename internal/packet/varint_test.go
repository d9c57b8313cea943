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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/lighthouse/internal/xerror"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []struct {
		n     uint32
		bytes int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{268435455, 4},
	}
	for _, c := range cases {
		enc, err := EncodeRemainingLength(c.n)
		require.NoError(t, err)
		assert.Lenf(t, enc, c.bytes, "n=%d", c.n)

		got, err := DecodeRemainingLength(bytes.NewReader(enc))
		require.NoError(t, err)
		assert.Equal(t, c.n, got)
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	_, err := EncodeRemainingLength(268435456)
	assert.ErrorIs(t, err, xerror.ErrMalformed)
}

func TestDecodeRejectsFifthContinuationByte(t *testing.T) {
	_, err := DecodeRemainingLength(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x01}))
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedVarint(t *testing.T) {
	_, err := DecodeRemainingLength(bytes.NewReader([]byte{0xff, 0xff}))
	assert.Error(t, err)
}
