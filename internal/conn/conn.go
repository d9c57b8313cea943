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

// Package conn implements the per-connection state machine: New,
// Connected and Closing. One goroutine per Conn runs Listen end to
// end, so within a connection there is no intra-connection parallelism
// — decode, dispatch hand-off and the keep-alive/deadline timers are
// all observed from that single goroutine (the timers' callbacks run
// on their own goroutine; they close the connection, which is safe to
// do more than once, and the keep-alive callback first reports the
// timeout to the dispatcher).
package conn

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/dispatch"
	"github.com/yunqi/lighthouse/internal/frame"
	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/spi"
	"github.com/yunqi/lighthouse/internal/xerror"
	"github.com/yunqi/lighthouse/internal/xlog"
)

type state int

const (
	stateNew state = iota
	stateConnected
	stateClosing
)

// Config is the slice of config.Mqtt a Conn needs.
type Config struct {
	ConnectDeadline  time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	MaxRemainingSize uint32
}

// Conn owns one client's byte stream end to end: the frame reader, the
// write half, the connect-deadline and keep-alive timers, and the
// New/Connected/Closing state machine that decides what an inbound
// frame means.
type Conn struct {
	rw   io.ReadWriteCloser
	addr string
	cfg  Config

	auth       spi.Authenticator
	dispatcher *dispatch.Dispatcher
	log        *xlog.Log

	reader *frame.Reader

	writeMu sync.Mutex
	bw      *bufio.Writer

	mu       sync.Mutex
	st       state
	clientID string

	connectDeadline *time.Timer
	keepAlive       *time.Timer
	keepAlivePeriod time.Duration

	closeOnce sync.Once
}

// New wraps rw (a net.Conn or a websocket-backed io.ReadWriteCloser)
// into a Conn ready for Listen.
func New(rw io.ReadWriteCloser, remoteAddr string, auth spi.Authenticator, dispatcher *dispatch.Dispatcher, cfg Config) *Conn {
	c := &Conn{
		rw:         rw,
		addr:       remoteAddr,
		cfg:        cfg,
		auth:       auth,
		dispatcher: dispatcher,
		log:        xlog.LoggerModule("conn").Named(remoteAddr),
		reader:     frame.NewReader(rw, cfg.MaxRemainingSize),
		bw:         bufio.NewWriterSize(rw, cfg.WriteBufferSize),
		st:         stateNew,
	}
	return c
}

// Listen drives the connection until it closes. It must be called
// exactly once, ideally from its own goroutine (internal/server hands
// this off to the internal/goroutine pool).
func (c *Conn) Listen() {
	c.connectDeadline = time.AfterFunc(c.cfg.ConnectDeadline, func() {
		c.mu.Lock()
		isNew := c.st == stateNew
		c.mu.Unlock()
		if isNew {
			c.log.Debug("connect deadline expired")
			c.closeConn()
		}
	})
	defer c.closeConn()

	for {
		header, body, err := c.reader.Read()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.mu.Lock()
		st := c.st
		c.mu.Unlock()

		if st == stateNew {
			if !c.handleFirstFrame(header, body) {
				return
			}
			continue
		}

		if !c.handleFrame(header, body) {
			return
		}
	}
}

func (c *Conn) handleReadError(err error) {
	c.mu.Lock()
	st, clientID := c.st, c.clientID
	c.mu.Unlock()

	if st == stateNew {
		return // no session exists yet; nothing to dispatch
	}
	reason := dispatch.ReasonNetworkOrServerFailure
	if errors.Is(err, xerror.ErrMalformed) {
		reason = dispatch.ReasonProtocolViolation
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		c.log.Debug("read error", zap.Error(err))
	}
	c.dispatcher.Disconnected(clientID, reason)
}

// handleFirstFrame implements state New. It returns false when the
// connection must close.
func (c *Conn) handleFirstFrame(header packet.FixedHeader, body []byte) bool {
	if header.Type != packet.CONNECT {
		c.log.Debug("first frame was not CONNECT")
		return false
	}
	p, err := packet.Decode(header, body)
	if err != nil {
		if errors.Is(err, xerror.ErrUnsupportedProtocolVersion) {
			_ = c.writePacket(&packet.ConnAck{Code: code.UnacceptableProtocolVersion})
		}
		return false
	}
	connectPkt := p.(*packet.Connect)

	var username, password *string
	if connectPkt.UsernameFlag {
		u := string(connectPkt.Username)
		username = &u
	}
	if connectPkt.PasswordFlag {
		pw := string(connectPkt.Password)
		password = &pw
	}
	if !c.auth.Authenticate(c.addr, username, password) {
		_ = c.writePacket(&packet.ConnAck{Code: code.BadUsernameOrPassword})
		return false
	}

	c.connectDeadline.Stop()

	c.mu.Lock()
	c.clientID = string(connectPkt.ClientID)
	c.st = stateConnected
	c.mu.Unlock()

	if connectPkt.KeepAlive > 0 {
		c.keepAlivePeriod = time.Duration(connectPkt.KeepAlive) * time.Second
		c.armKeepAlive()
	}

	ack := c.dispatcher.Connected(connectPkt, c)
	if err := c.writePacket(ack); err != nil {
		// The session now exists in the SessionManager, but the peer
		// never got its CONNACK — tear it down rather than leaving an
		// orphaned session with no LWT fired and no cleanup.
		c.dispatcher.Disconnected(string(connectPkt.ClientID), dispatch.ReasonNetworkOrServerFailure)
		return false
	}
	return true
}

// handleFrame implements state Connected. It returns false when the
// connection must close.
func (c *Conn) handleFrame(header packet.FixedHeader, body []byte) bool {
	c.rearmKeepAlive()

	if header.Type == packet.CONNECT {
		c.log.Debug("second CONNECT on an authenticated connection")
		return false
	}

	p, err := packet.Decode(header, body)
	if err != nil {
		c.mu.Lock()
		clientID := c.clientID
		c.mu.Unlock()
		c.dispatcher.Disconnected(clientID, dispatch.ReasonProtocolViolation)
		return false
	}

	switch pkt := p.(type) {
	case *packet.PingReq:
		_ = c.writePacket(&packet.PingResp{})
		return true
	case *packet.Disconnect:
		c.mu.Lock()
		clientID := c.clientID
		c.mu.Unlock()
		c.dispatcher.Dispatch(clientID, pkt)
		return false
	default:
		c.mu.Lock()
		clientID := c.clientID
		c.mu.Unlock()
		c.dispatcher.Dispatch(clientID, pkt)
		return true
	}
}

func (c *Conn) armKeepAlive() {
	c.keepAlive = time.AfterFunc(c.keepAlivePeriod, c.onKeepAliveExpired)
}

func (c *Conn) rearmKeepAlive() {
	if c.keepAlive == nil {
		return
	}
	c.keepAlive.Stop()
	c.keepAlive = time.AfterFunc(c.keepAlivePeriod, c.onKeepAliveExpired)
}

func (c *Conn) onKeepAliveExpired() {
	c.mu.Lock()
	st, clientID := c.st, c.clientID
	c.mu.Unlock()
	if st != stateConnected {
		return
	}
	c.dispatcher.Disconnected(clientID, dispatch.ReasonKeepAliveTimeout)
	c.closeConn()
}

// Send implements dispatch.Connection: it is safe to call from any
// goroutine, serializing writes behind writeMu. Once the connection is
// closing it returns xerror.ErrSessionClosed without writing.
func (c *Conn) Send(p packet.Packet) error {
	c.mu.Lock()
	closing := c.st == stateClosing
	c.mu.Unlock()
	if closing {
		return xerror.ErrSessionClosed
	}
	return c.writePacket(p)
}

// RemoteAddr implements dispatch.Connection.
func (c *Conn) RemoteAddr() string { return c.addr }

// Close implements dispatch.Connection and io.Closer.
func (c *Conn) Close() error {
	c.closeConn()
	return nil
}

func (c *Conn) writePacket(p packet.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := p.Encode(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) closeConn() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.st = stateClosing
		c.mu.Unlock()

		if c.connectDeadline != nil {
			c.connectDeadline.Stop()
		}
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		_ = c.rw.Close()
	})
}
