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

// Package server owns the listeners: a raw TCP listener and an
// optional MQTT-over-WebSocket listener, both feeding accepted
// connections into the same internal/conn.Conn state machine over the
// same internal/dispatch.Dispatcher.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yunqi/lighthouse/config"
	"github.com/yunqi/lighthouse/internal/conn"
	"github.com/yunqi/lighthouse/internal/dispatch"
	"github.com/yunqi/lighthouse/internal/goroutine"
	"github.com/yunqi/lighthouse/internal/persistence"
	"github.com/yunqi/lighthouse/internal/persistence/session"
	"github.com/yunqi/lighthouse/internal/persistence/subscription"
	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/spi"
	"github.com/yunqi/lighthouse/internal/xlog"
)

// Server runs the broker's listeners until Stop or a fatal accept error.
type Server interface {
	// Run starts every configured listener and blocks until one of
	// them returns a fatal error.
	Run() error
	// Stop tears down every session and closes every listener.
	Stop(ctx context.Context) error
}

type server struct {
	cfg *config.Config

	tcpListener net.Listener
	wsServer    *http.Server
	upgrader    websocket.Upgrader

	sessionStore      session.Store
	subscriptionStore subscription.Store
	dispatcher        *dispatch.Dispatcher
	auth              spi.Authenticator
	connCfg           conn.Config

	log *xlog.Log
}

// New builds a Server bound to cfg: it resolves the configured
// session/subscription store factories and the authenticator factory,
// but does not bind any listener yet — that happens in Run, so that
// construction itself cannot fail a already-running process.
func New(cfg *config.Config) (Server, error) {
	s := &server{cfg: cfg, log: xlog.LoggerModule("server")}

	sessionFactory, ok := persistence.GetSessionStore(cfg.Mqtt.Persistence.Session.Type)
	if !ok {
		return nil, persistence.ErrUnknownStore(cfg.Mqtt.Persistence.Session.Type)
	}
	sessionStore, err := sessionFactory(&cfg.Mqtt.Persistence.Session)
	if err != nil {
		return nil, fmt.Errorf("server: session store: %w", err)
	}
	s.sessionStore = sessionStore

	subscriptionFactory, ok := persistence.GetSubscriptionStore(cfg.Mqtt.Persistence.Subscription.Type)
	if !ok {
		return nil, persistence.ErrUnknownStore(cfg.Mqtt.Persistence.Subscription.Type)
	}
	subscriptionStore, err := subscriptionFactory(&cfg.Mqtt.Persistence.Subscription)
	if err != nil {
		return nil, fmt.Errorf("server: subscription store: %w", err)
	}
	s.subscriptionStore = subscriptionStore

	auth, err := spi.NewAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: authenticator: %w", err)
	}
	s.auth = auth

	s.dispatcher = dispatch.NewDispatcher(dispatch.NewSessionManager(dispatch.Config{
		AckTimeout:      cfg.Mqtt.PubAckTimeout,
		MaxRetries:      cfg.Mqtt.PubMaxRetries,
		MaximumQoS:      packet.QoS(cfg.Mqtt.MaximumQoS),
		RetainAvailable: cfg.Mqtt.RetainAvailable,
	}, dispatch.WithSessionStore(s.sessionStore), dispatch.WithSubscriptionStore(s.subscriptionStore)))

	s.connCfg = conn.Config{
		ConnectDeadline: cfg.Mqtt.ConnTimeout,
		ReadBufferSize:  cfg.Mqtt.ConnReadBufferSize,
		WriteBufferSize: cfg.Mqtt.ConnWriteBufferSize,
	}

	s.upgrader = websocket.Upgrader{
		Subprotocols:    []string{"mqtt"},
		CheckOrigin:     func(*http.Request) bool { return true },
		ReadBufferSize:  cfg.Mqtt.ConnReadBufferSize,
		WriteBufferSize: cfg.Mqtt.ConnWriteBufferSize,
	}

	return s, nil
}

// Run binds the TCP listener (and the WebSocket listener, if
// configured) and blocks until either returns. It does not close the
// listeners itself; Stop does.
func (s *server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Mqtt.ServerAddress, s.cfg.Mqtt.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen tcp %s: %w", addr, err)
	}
	s.tcpListener = ln
	s.log.Info("listening", zap.String("transport", "tcp"), zap.String("addr", addr))

	errCh := make(chan error, 2)
	goroutine.Go(func() { errCh <- s.serveTCP() })

	if s.cfg.Mqtt.WebsocketAddress != "" {
		wsAddr := fmt.Sprintf("%s:%d", s.cfg.Mqtt.WebsocketAddress, s.cfg.Mqtt.WebsocketPort)
		mux := http.NewServeMux()
		mux.HandleFunc("/mqtt", s.handleWebsocket)
		s.wsServer = &http.Server{Addr: wsAddr, Handler: mux}
		s.log.Info("listening", zap.String("transport", "websocket"), zap.String("addr", wsAddr))
		goroutine.Go(func() { errCh <- s.serveWS() })
	}

	return <-errCh
}

// serveTCP accepts raw TCP connections until the listener closes,
// backing off with capped exponential delay on transient accept
// errors (e.g. an fd limit hit) instead of spinning a hot loop.
func (s *server) serveTCP() error {
	var tempDelay time.Duration
	for {
		accepted, err := s.tcpListener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.Debug("accept temporary error", zap.Error(err), zap.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		c := conn.New(accepted, accepted.RemoteAddr().String(), s.auth, s.dispatcher, s.connCfg)
		goroutine.Go(c.Listen)
	}
}

func (s *server) serveWS() error {
	if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := conn.New(newWSConn(ws), r.RemoteAddr, s.auth, s.dispatcher, s.connCfg)
	goroutine.Go(c.Listen)
}

// Stop tears down every session, then closes both listeners and both
// persistence stores.
func (s *server) Stop(ctx context.Context) error {
	s.dispatcher.DestroyAll()

	var err error
	if s.tcpListener != nil {
		if closeErr := s.tcpListener.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if s.wsServer != nil {
		if shutdownErr := s.wsServer.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	if closeErr := s.sessionStore.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := s.subscriptionStore.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
