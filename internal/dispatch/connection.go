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

import "github.com/yunqi/lighthouse/internal/packet"

// Connection is the half of internal/conn.Conn the dispatch subsystem
// is allowed to call. It is safe to call Send from any goroutine: the
// connection enqueues the write on its own serialized per-connection
// path.
type Connection interface {
	// Send enqueues p for writing on this connection. Send on a
	// connection that has already been closed returns
	// xerror.ErrSessionClosed and must not panic.
	Send(p packet.Packet) error
	// RemoteAddr identifies the peer, for the Authenticator SPI and logs.
	RemoteAddr() string
	// Close tears the connection down from the session side (used when
	// the session's in-flight state detects a protocol violation, e.g. a
	// PUBREL or ack for an unknown packet identifier).
	Close() error
}

// Reason classifies why a session's connection went away, driving the
// LWT-suppression rule in ClientDisconnected.
type Reason int

const (
	// ReasonClientDisconnect is a graceful DISCONNECT; LWT is suppressed.
	ReasonClientDisconnect Reason = iota
	// ReasonAuthenticationFailed means no session was ever created; LWT
	// never applies.
	ReasonAuthenticationFailed
	// ReasonProtocolViolation is a decode or sequencing error; LWT fires.
	ReasonProtocolViolation
	// ReasonNetworkOrServerFailure is a socket I/O error; LWT fires.
	ReasonNetworkOrServerFailure
	// ReasonKeepAliveTimeout is a missed keep-alive deadline; LWT fires.
	ReasonKeepAliveTimeout
	// ReasonSessionTakenOver means client_connected replaced this
	// session with a new one for the same client-id; LWT is suppressed
	// (the client is still alive, just reconnecting).
	ReasonSessionTakenOver
)

// Graceful reports whether reason suppresses last-will publication.
func (r Reason) Graceful() bool {
	switch r {
	case ReasonClientDisconnect, ReasonAuthenticationFailed, ReasonSessionTakenOver:
		return true
	default:
		return false
	}
}
