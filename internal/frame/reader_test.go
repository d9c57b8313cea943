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

package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/xerror"
)

func TestReader_ReadsPingReqFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&packet.PingReq{}).Encode(buf))

	r := NewReader(buf, 0)
	header, body, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.PINGREQ, header.Type)
	assert.Equal(t, uint32(0), header.RemainLength)
	assert.Len(t, body, 0)
}

func TestReader_ReadsPublishFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &packet.Publish{QoS: packet.AtLeastOnce, Topic: []byte("a/b"), PacketID: 9, Payload: []byte("payload")}
	require.NoError(t, p.Encode(buf))

	r := NewReader(buf, 0)
	header, body, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.PUBLISH, header.Type)
	decoded, err := packet.Decode(header, body)
	require.NoError(t, err)
	got := decoded.(*packet.Publish)
	assert.Equal(t, p.Topic, got.Topic)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestReader_MultipleFramesBackToBack(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&packet.PingReq{}).Encode(buf))
	require.NoError(t, (&packet.Disconnect{}).Encode(buf))

	r := NewReader(buf, 0)
	h1, _, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.PINGREQ, h1.Type)

	h2, _, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.DISCONNECT, h2.Type)
}

func TestReader_RejectsOversizedFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &packet.Publish{QoS: packet.AtMostOnce, Topic: []byte("a"), Payload: make([]byte, 100)}
	require.NoError(t, p.Encode(buf))

	r := NewReader(buf, 32)
	_, _, err := r.Read()
	assert.ErrorIs(t, err, xerror.ErrMalformed)
}

func TestReader_EOFOnEmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), 0)
	_, _, err := r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_TruncatedBodyReturnsUnexpectedEOF(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &packet.Publish{QoS: packet.AtMostOnce, Topic: []byte("a"), Payload: []byte("hello world")}
	require.NoError(t, p.Encode(buf))

	truncated := buf.Bytes()[:buf.Len()-3]
	r := NewReader(bytes.NewReader(truncated), 0)
	_, _, err := r.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
