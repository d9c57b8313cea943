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

// Package xerror collects the error taxonomy the broker core surfaces:
// malformed packets, protocol violations and the abrupt-disconnect causes
// that trigger last-will propagation.
package xerror

import "errors"

var (
	// ErrMalformed is returned when a byte sequence does not decode into a
	// well-formed MQTT packet: a bad variable-length integer, a truncated
	// UTF-8 string, illegal reserved bits or an empty SUBSCRIBE/UNSUBSCRIBE
	// filter list.
	ErrMalformed = errors.New("mqtt: malformed packet")

	// ErrProtocolViolation is returned when a packet decodes cleanly but the
	// connection or session context forbids it: a second CONNECT, a PUBREL
	// with no matching in-flight PUBLISH, an out-of-sequence QoS 2 ack.
	ErrProtocolViolation = errors.New("mqtt: protocol violation")

	// ErrUnsupportedProtocolVersion is returned by the CONNECT decoder when
	// the protocol name is not "MQTT" or the protocol level is not 4.
	ErrUnsupportedProtocolVersion = errors.New("mqtt: unsupported protocol version")

	// ErrAuthenticationFailed is returned when the configured Authenticator
	// rejects a CONNECT's credentials.
	ErrAuthenticationFailed = errors.New("mqtt: authentication failed")

	// ErrNetworkOrServerFailure wraps I/O errors observed on a connection's
	// socket once it has passed authentication.
	ErrNetworkOrServerFailure = errors.New("mqtt: network or server failure")

	// ErrKeepAliveTimeout is raised internally when a connection's
	// keep-alive timer fires before another frame arrives.
	ErrKeepAliveTimeout = errors.New("mqtt: keep-alive timeout expired")

	// ErrPublicationAbandoned marks an in-flight publication whose retry
	// budget is exhausted; it never reaches the wire as a packet.
	ErrPublicationAbandoned = errors.New("mqtt: publication abandoned")

	// ErrPacketIDExhausted is returned when a session cannot allocate a
	// fresh outbound packet identifier because all 65535 are in flight.
	ErrPacketIDExhausted = errors.New("mqtt: no free packet identifier")

	// ErrSessionClosed is returned by Connection.Send (internal/conn's
	// Conn.Send) once the connection has been closed.
	ErrSessionClosed = errors.New("mqtt: session has no live connection")
)
