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

package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/packet"
	sessionstore "github.com/yunqi/lighthouse/internal/persistence/session"
	substore "github.com/yunqi/lighthouse/internal/persistence/subscription"
)

// fakeConn captures every packet Send writes, for assertions.
type fakeConn struct {
	mu     sync.Mutex
	addr   string
	sent   []packet.Packet
	closed bool
}

func newFakeConn(addr string) *fakeConn { return &fakeConn{addr: addr} }

func (c *fakeConn) Send(p packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, p)
	return nil
}
func (c *fakeConn) RemoteAddr() string { return c.addr }
func (c *fakeConn) Close() error       { c.mu.Lock(); defer c.mu.Unlock(); c.closed = true; return nil }

func (c *fakeConn) packets() []packet.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]packet.Packet(nil), c.sent...)
}

func testConfig() Config {
	return Config{AckTimeout: 50 * time.Millisecond, MaxRetries: 2, MaximumQoS: packet.ExactlyOnce, RetainAvailable: true}
}

func connectPacket(clientID string) *packet.Connect {
	return &packet.Connect{ClientID: []byte(clientID), ConnectFlags: packet.ConnectFlags{CleanSession: true}}
}

func TestSessionManager_QoS0Delivery(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connA, connB := newFakeConn("a"), newFakeConn("b")
	sm.ClientConnected(connectPacket("A"), connA)
	sm.ClientConnected(connectPacket("B"), connB)

	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("room/1"), QoS: packet.AtMostOnce}}})

	sm.ClientSentPublish("B", &packet.Publish{QoS: packet.AtMostOnce, Topic: []byte("room/1"), Payload: []byte{0x68, 0x69}})

	var pub *packet.Publish
	for _, p := range connA.packets() {
		if pp, ok := p.(*packet.Publish); ok {
			pub = pp
		}
	}
	require.NotNil(t, pub)
	assert.Equal(t, []byte{0x68, 0x69}, pub.Payload)
	assert.Equal(t, packet.AtMostOnce, pub.QoS)
	assert.False(t, pub.Retain)
}

func TestSessionManager_QoS1EndToEnd(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connA, connB := newFakeConn("a"), newFakeConn("b")
	sm.ClientConnected(connectPacket("A"), connA)
	sm.ClientConnected(connectPacket("B"), connB)
	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("room/1"), QoS: packet.AtLeastOnce}}})

	sm.ClientSentPublish("B", &packet.Publish{QoS: packet.AtLeastOnce, PacketID: 7, Topic: []byte("room/1"), Payload: []byte{0x01}})

	// B gets PUBACK(7) immediately.
	require.Len(t, connB.packets(), 1)
	ackToB, ok := connB.packets()[0].(*packet.PubAck)
	require.True(t, ok)
	assert.Equal(t, uint16(7), ackToB.PacketID)

	// A receives the PUBLISH at QoS 1 with a broker-allocated id.
	var toA *packet.Publish
	for _, p := range connA.packets() {
		if pp, ok := p.(*packet.Publish); ok {
			toA = pp
		}
	}
	require.NotNil(t, toA)
	assert.Equal(t, packet.AtLeastOnce, toA.QoS)
	assert.Equal(t, []byte{0x01}, toA.Payload)

	// A's PUBACK completes the broker's TX state for A.
	sm.ClientAckedPublish("A", toA.PacketID)
	sessA, _ := sm.session("A")
	assert.Empty(t, sessA.inflight.tx)
}

func TestSessionManager_QoS2RetryThenAbandon(t *testing.T) {
	cfg := testConfig()
	cfg.AckTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	sm := NewSessionManager(cfg)
	connB := newFakeConn("b")
	sm.ClientConnected(connectPacket("B"), connB)

	sm.ClientSentPublish("B", &packet.Publish{QoS: packet.ExactlyOnce, PacketID: 9, Topic: []byte("x"), Payload: []byte{0x02}})
	require.Len(t, connB.packets(), 1)
	_, ok := connB.packets()[0].(*packet.PubRec)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	// initial PUBREC + at least one retry
	assert.GreaterOrEqual(t, len(connB.packets()), 2)

	sessB, _ := sm.session("B")
	assert.Empty(t, sessB.inflight.rx, "rx state released once retries are exhausted")
}

func TestSessionManager_RetainedDeliveryThenDeletion(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connB := newFakeConn("b")
	sm.ClientConnected(connectPacket("B"), connB)

	sm.ClientPublished("B", &packet.Publish{Retain: true, Topic: []byte("cfg/x"), Payload: []byte{0xAA}, QoS: packet.AtMostOnce})

	connC1 := newFakeConn("c1")
	sm.ClientConnected(connectPacket("C1"), connC1)
	sm.ClientSubscribed("C1", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("cfg/#"), QoS: packet.AtMostOnce}}})

	var retained *packet.Publish
	for _, p := range connC1.packets() {
		if pp, ok := p.(*packet.Publish); ok {
			retained = pp
		}
	}
	require.NotNil(t, retained)
	assert.Equal(t, []byte{0xAA}, retained.Payload)

	sm.ClientPublished("B", &packet.Publish{Retain: true, Topic: []byte("cfg/x"), Payload: nil, QoS: packet.AtMostOnce})

	connC2 := newFakeConn("c2")
	sm.ClientConnected(connectPacket("C2"), connC2)
	sm.ClientSubscribed("C2", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("cfg/#"), QoS: packet.AtMostOnce}}})

	for _, p := range connC2.packets() {
		_, isPublish := p.(*packet.Publish)
		assert.False(t, isPublish, "no retained delivery after an empty-payload retain clears the topic")
	}
}

func TestSessionManager_LWTOnAbruptDisconnect(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connA := newFakeConn("a")
	c := connectPacket("A")
	c.WillFlag = true
	c.WillTopic = []byte("lwt/A")
	c.WillMessage = []byte{0xDE, 0xAD}
	c.WillQoS = 1
	sm.ClientConnected(c, connA)

	connC := newFakeConn("c")
	sm.ClientConnected(connectPacket("C"), connC)
	sm.ClientSubscribed("C", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("lwt/#"), QoS: packet.AtLeastOnce}}})

	sm.ClientDisconnected("A", ReasonNetworkOrServerFailure)

	var got *packet.Publish
	for _, p := range connC.packets() {
		if pp, ok := p.(*packet.Publish); ok {
			got = pp
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, []byte{0xDE, 0xAD}, got.Payload)
	assert.Equal(t, packet.AtLeastOnce, got.QoS)
	assert.False(t, got.Retain)
}

func TestSessionManager_GracefulDisconnectSuppressesLWT(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connA := newFakeConn("a")
	c := connectPacket("A")
	c.WillFlag = true
	c.WillTopic = []byte("lwt/A")
	c.WillMessage = []byte{0xDE, 0xAD}
	sm.ClientConnected(c, connA)

	connC := newFakeConn("c")
	sm.ClientConnected(connectPacket("C"), connC)
	sm.ClientSubscribed("C", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("lwt/#"), QoS: packet.AtMostOnce}}})

	sm.ClientDisconnected("A", ReasonClientDisconnect)

	for _, p := range connC.packets() {
		_, isPublish := p.(*packet.Publish)
		assert.False(t, isPublish)
	}
}

func TestSessionManager_SubscriberResolutionTakesMaxQoS(t *testing.T) {
	sm := NewSessionManager(testConfig())
	connA := newFakeConn("a")
	sm.ClientConnected(connectPacket("A"), connA)
	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{
		{TopicFilter: []byte("sport/+"), QoS: packet.AtMostOnce},
		{TopicFilter: []byte("sport/tennis"), QoS: packet.ExactlyOnce},
	}})

	subs := sm.index.resolve("sport/tennis")
	require.Len(t, subs, 1)
	assert.Equal(t, "A", subs[0].clientID)
	assert.Equal(t, packet.ExactlyOnce, subs[0].qos)
}

func TestSessionManager_SubAckReturnCodesCapAtMaximumQoS(t *testing.T) {
	cfg := testConfig()
	cfg.MaximumQoS = packet.AtLeastOnce
	sm := NewSessionManager(cfg)
	conn := newFakeConn("a")
	sm.ClientConnected(connectPacket("A"), conn)
	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{{TopicFilter: []byte("a/b"), QoS: packet.ExactlyOnce}}})

	var ack *packet.SubAck
	for _, p := range conn.packets() {
		if a, ok := p.(*packet.SubAck); ok {
			ack = a
		}
	}
	require.NotNil(t, ack)
	assert.Equal(t, code.SubscribeMaxQoS1, ack.ReturnCodes[0])
}

func TestSessionManager_PersistsAndResumesNonCleanSession(t *testing.T) {
	sessStore := sessionstore.NewMemoryStore()
	subStore := substore.NewMemoryStore()
	sm := NewSessionManager(testConfig(), WithSessionStore(sessStore), WithSubscriptionStore(subStore))

	connA := newFakeConn("a")
	c := connectPacket("A")
	c.CleanSession = false
	ack := sm.ClientConnected(c, connA)
	assert.False(t, ack.SessionPresent, "nothing on file yet for a first-time client-id")

	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{
		{TopicFilter: []byte("room/1"), QoS: packet.AtLeastOnce},
	}})

	exists, err := sessStore.Exists("A")
	require.NoError(t, err)
	assert.True(t, exists, "a non-clean CONNECT records a durable session marker")

	entries, err := subStore.Load("A")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "room/1", entries[0].Filter)

	// The client's socket drops without DISCONNECT; the in-process
	// session is torn down, but the durable record survives.
	sm.ClientDisconnected("A", ReasonNetworkOrServerFailure)
	exists, err = sessStore.Exists("A")
	require.NoError(t, err)
	assert.True(t, exists)

	// Reconnecting finds no live session, but the store remembers it —
	// CONNACK reports session-present, and the filter set comes back
	// without a fresh SUBSCRIBE.
	connA2 := newFakeConn("a2")
	c2 := connectPacket("A")
	c2.CleanSession = false
	ack2 := sm.ClientConnected(c2, connA2)
	assert.True(t, ack2.SessionPresent)

	subs := sm.index.filtersFor("A")
	require.Len(t, subs, 1)
	assert.Equal(t, "room/1", string(subs[0].TopicFilter))
}

func TestSessionManager_CleanSessionDisconnectErasesDurableRecord(t *testing.T) {
	sessStore := sessionstore.NewMemoryStore()
	subStore := substore.NewMemoryStore()
	sm := NewSessionManager(testConfig(), WithSessionStore(sessStore), WithSubscriptionStore(subStore))

	connA := newFakeConn("a")
	c := connectPacket("A")
	c.CleanSession = false
	sm.ClientConnected(c, connA)
	sm.ClientSubscribed("A", &packet.Subscribe{PacketID: 1, Subscriptions: []packet.Subscription{
		{TopicFilter: []byte("room/1"), QoS: packet.AtLeastOnce},
	}})

	// A later CONNECT with clean_session=1, followed by its clean
	// DISCONNECT, wipes the durable trail (ClientConnected's
	// destroy-then-replace path in sessionmanager.go also tears down the
	// old in-process session, but that's exercised elsewhere).
	connA2 := newFakeConn("a2")
	clean := connectPacket("A")
	clean.CleanSession = true
	sm.ClientConnected(clean, connA2)
	sm.ClientDisconnected("A", ReasonClientDisconnect)

	exists, err := sessStore.Exists("A")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := subStore.Load("A")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSessionManager_UnexpectedPubRelClosesConnection(t *testing.T) {
	sm := NewSessionManager(testConfig())
	conn := newFakeConn("b")
	sm.ClientConnected(connectPacket("B"), conn)

	sm.ClientReleasedPublish("B", 99)
	assert.True(t, conn.closed)
}
