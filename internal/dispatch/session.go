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
	"time"

	"github.com/yunqi/lighthouse/internal/packet"
)

// will is a session's last-will-and-testament, captured from CONNECT.
type will struct {
	topic   []byte
	payload []byte
	qos     packet.QoS
	retain  bool
}

// Session is the event-oriented client session: a session manager
// method call is the only way in, Connection.Send is the only way out.
// Every exported method takes s.mu, since in-flight retry timers fire
// from their own goroutine concurrently with session-manager calls.
type Session struct {
	mu sync.Mutex

	clientID     string
	cleanSession bool
	conn         Connection
	will         *will

	inflight *inflight
}

func newSession(clientID string, cleanSession bool, conn Connection, will *will, ackTimeout time.Duration, maxRetries int, onAbandon func(clientID string, pktID uint16)) *Session {
	s := &Session{clientID: clientID, cleanSession: cleanSession, conn: conn, will: will}
	s.inflight = newInflight(
		ackTimeout,
		maxRetries,
		func(p packet.Packet) error { return s.send(p) },
		func(pktID uint16) { onAbandon(clientID, pktID) },
		func() { _ = s.conn.Close() },
		s.mu.Lock,
		s.mu.Unlock,
	)
	return s
}

func (s *Session) send(p packet.Packet) error {
	return s.conn.Send(p)
}

// rebind swaps in a new connection, preserving in-flight state; only
// the delivery endpoint changes. ClientConnected does not call it: it
// destroys a still-live session for the same client-id and creates a
// new one.
func (s *Session) rebind(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.inflight.close = func() { _ = conn.Close() }
}

// destroy cancels every in-flight timer. Called once, when the session
// manager removes this session from the session map.
func (s *Session) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight.cancelAll()
}

// clientSentPublish handles an inbound PUBLISH from this session's
// client, calling deliver to forward it to subscribers (QoS 0/1
// deliver immediately; QoS 2 delivers only on first receipt of a given
// packet-id, not on retry). It returns the error of sending the
// acknowledgement, if any.
func (s *Session) clientSentPublish(p *packet.Publish, deliver func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.QoS {
	case packet.AtMostOnce:
		deliver()
		return nil
	case packet.AtLeastOnce:
		deliver()
		return s.send(&packet.PubAck{PacketID: p.PacketID})
	default: // ExactlyOnce
		return s.inflight.receivedPublish(p.PacketID, deliver)
	}
}

// clientAckedPublish handles an inbound PUBACK (our TX QoS-1 completion).
func (s *Session) clientAckedPublish(pktID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight.receivedAck(pktID)
}

// clientReceivedPublish handles an inbound PUBREC (our TX QoS-2, step 1).
func (s *Session) clientReceivedPublish(pktID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight.receivedRec(pktID)
}

// clientReleasedPublish handles an inbound PUBREL (their RX QoS-2).
func (s *Session) clientReleasedPublish(pktID uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight.receivedRel(pktID)
}

// clientCompletedPublish handles an inbound PUBCOMP (our TX QoS-2, step 2).
func (s *Session) clientCompletedPublish(pktID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight.receivedComp(pktID)
}

// publish delivers p to this session's client at the given effective
// qos, choosing the matching TX path.
func (s *Session) publish(p *packet.Publish, qos packet.QoS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p.Clone()
	cp.QoS = qos
	switch qos {
	case packet.AtMostOnce:
		cp.PacketID = 0
		return s.send(cp)
	case packet.AtLeastOnce:
		return s.inflight.sendQoS1(cp)
	default:
		return s.inflight.sendQoS2(cp)
	}
}
