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
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/xtrace"
)

// Dispatcher is stateless: it only routes a decoded packet,
// already bound to its client-id and Connection, to the matching
// SessionManager method. CONNECT is handled separately by Connection
// itself, since it needs a ConnAck return value the fire-and-forget
// packets below don't.
type Dispatcher struct {
	sm *SessionManager
}

// NewDispatcher builds a Dispatcher over sm.
func NewDispatcher(sm *SessionManager) *Dispatcher {
	return &Dispatcher{sm: sm}
}

// Dispatch routes p, already known to belong to clientID, to its
// session-manager method, wrapped in one span per packet so an
// operator can trace a PUBLISH from ingress through subscriber fan-out.
func (d *Dispatcher) Dispatch(clientID string, p packet.Packet) {
	_, span := xtrace.Tracer().Start(context.Background(), packetSpanName(p),
		trace.WithAttributes(attribute.String("mqtt.client_id", clientID)))
	defer span.End()

	switch pkt := p.(type) {
	case *packet.Disconnect:
		d.sm.ClientDisconnected(clientID, ReasonClientDisconnect)
	case *packet.Subscribe:
		d.sm.ClientSubscribed(clientID, pkt)
	case *packet.Unsubscribe:
		d.sm.ClientUnsubscribed(clientID, pkt)
	case *packet.Publish:
		span.SetAttributes(
			attribute.String("mqtt.topic", string(pkt.Topic)),
			attribute.Int("mqtt.qos", int(pkt.QoS)),
		)
		d.sm.ClientSentPublish(clientID, pkt)
	case *packet.PubAck:
		d.sm.ClientAckedPublish(clientID, pkt.PacketID)
	case *packet.PubRec:
		d.sm.ClientReceivedPublish(clientID, pkt.PacketID)
	case *packet.PubRel:
		d.sm.ClientReleasedPublish(clientID, pkt.PacketID)
	case *packet.PubComp:
		d.sm.ClientCompletedPublish(clientID, pkt.PacketID)
	}
}

func packetSpanName(p packet.Packet) string {
	switch p.(type) {
	case *packet.Disconnect:
		return "mqtt.disconnect"
	case *packet.Subscribe:
		return "mqtt.subscribe"
	case *packet.Unsubscribe:
		return "mqtt.unsubscribe"
	case *packet.Publish:
		return "mqtt.publish"
	case *packet.PubAck, *packet.PubRec, *packet.PubRel, *packet.PubComp:
		return "mqtt.publish.ack"
	default:
		return "mqtt.dispatch"
	}
}

// Connected hands a freshly authenticated CONNECT to the session
// manager and returns the CONNACK to send.
func (d *Dispatcher) Connected(c *packet.Connect, conn Connection) *packet.ConnAck {
	return d.sm.ClientConnected(c, conn)
}

// Disconnected tells the session manager a connection went away for a
// reason other than a graceful client DISCONNECT (I/O error,
// keep-alive timeout, protocol violation).
func (d *Dispatcher) Disconnected(clientID string, reason Reason) {
	d.sm.ClientDisconnected(clientID, reason)
}

// DestroyAll tears down every session; called on server shutdown.
func (d *Dispatcher) DestroyAll() {
	d.sm.DestroyAll()
}
