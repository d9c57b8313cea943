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

package conn

import (
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/lighthouse/internal/dispatch"
	"github.com/yunqi/lighthouse/internal/frame"
	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/spi"
	"github.com/yunqi/lighthouse/internal/spi/mockspi"
)

func acceptingAuthenticator(t *testing.T) spi.Authenticator {
	m := mockspi.NewMockAuthenticator(gomock.NewController(t))
	m.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).Return(true).AnyTimes()
	return m
}

func rejectingAuthenticator(t *testing.T) spi.Authenticator {
	m := mockspi.NewMockAuthenticator(gomock.NewController(t))
	m.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).Return(false).AnyTimes()
	return m
}

func testDispatcher() *dispatch.Dispatcher {
	return dispatch.NewDispatcher(dispatch.NewSessionManager(dispatch.Config{
		AckTimeout: time.Second, MaxRetries: 3, MaximumQoS: packet.ExactlyOnce, RetainAvailable: true,
	}))
}

func testConnConfig() Config {
	return Config{ConnectDeadline: time.Second, ReadBufferSize: 256, WriteBufferSize: 256}
}

func TestConn_ConnectHandshakeAccepted(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := New(server, "peer", acceptingAuthenticator(t), testDispatcher(), testConnConfig())
	go c.Listen()

	require.NoError(t, (&packet.Connect{
		ProtocolName: []byte("MQTT"), ProtocolLevel: byte(packet.V311),
		ConnectFlags: packet.ConnectFlags{CleanSession: true}, ClientID: []byte("A"),
	}).Encode(client))

	r := frame.NewReader(client, 0)
	header, body, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.CONNACK, header.Type)
	ack, err := packet.Decode(header, body)
	require.NoError(t, err)
	assert.Equal(t, byte(0), byte(ack.(*packet.ConnAck).Code))
}

func TestConn_AuthenticationFailureClosesWithoutSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := New(server, "peer", rejectingAuthenticator(t), testDispatcher(), testConnConfig())
	go c.Listen()

	require.NoError(t, (&packet.Connect{
		ProtocolName: []byte("MQTT"), ProtocolLevel: byte(packet.V311),
		ConnectFlags: packet.ConnectFlags{CleanSession: true}, ClientID: []byte("A"),
	}).Encode(client))

	r := frame.NewReader(client, 0)
	header, body, err := r.Read()
	require.NoError(t, err)
	ack, err := packet.Decode(header, body)
	require.NoError(t, err)
	assert.EqualValues(t, 4, ack.(*packet.ConnAck).Code) // BadUsernameOrPassword
}

func TestConn_PingReqAnsweredLocally(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := New(server, "peer", acceptingAuthenticator(t), testDispatcher(), testConnConfig())
	go c.Listen()

	require.NoError(t, (&packet.Connect{
		ProtocolName: []byte("MQTT"), ProtocolLevel: byte(packet.V311),
		ConnectFlags: packet.ConnectFlags{CleanSession: true}, ClientID: []byte("A"),
	}).Encode(client))

	r := frame.NewReader(client, 0)
	_, _, err := r.Read() // CONNACK
	require.NoError(t, err)

	require.NoError(t, (&packet.PingReq{}).Encode(client))
	header, _, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, packet.PINGRESP, header.Type)
}

func TestConn_NonConnectFirstFrameCloses(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := New(server, "peer", acceptingAuthenticator(t), testDispatcher(), testConnConfig())
	done := make(chan struct{})
	go func() { c.Listen(); close(done) }()

	require.NoError(t, (&packet.PingReq{}).Encode(client))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection did not close after non-CONNECT first frame")
	}
}
