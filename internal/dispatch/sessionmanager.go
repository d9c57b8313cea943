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

// Package dispatch implements the broker's stateful core: the
// stateless Dispatcher that fans packets out to session-manager
// methods, the SessionManager owning the session map, the
// topic-subscription index and the retained store, and the per-client
// Session with its RX/TX in-flight state machines.
package dispatch

import (
	"sync"
	"time"

	"github.com/yunqi/lighthouse/internal/code"
	"github.com/yunqi/lighthouse/internal/packet"
	sessionstore "github.com/yunqi/lighthouse/internal/persistence/session"
	substore "github.com/yunqi/lighthouse/internal/persistence/subscription"
	"github.com/yunqi/lighthouse/internal/xlog"
	"go.uber.org/zap"
)

// Config is the slice of config.Mqtt the session manager needs.
type Config struct {
	AckTimeout      time.Duration
	MaxRetries      int
	MaximumQoS      packet.QoS
	RetainAvailable bool
}

// SessionManager owns every session, the subscription index and the
// retained store. All its methods are safe to call concurrently: the
// session map is guarded by its own mutex, and each Session serializes
// its own in-flight state internally.
type SessionManager struct {
	cfg Config
	log *xlog.Log

	mu       sync.Mutex
	sessions map[string]*Session

	index    *subscriptionIndex
	retained *retainedStore

	sessionStore      sessionstore.Store
	subscriptionStore substore.Store
}

// Option configures optional SessionManager dependencies.
type Option func(*SessionManager)

// WithSessionStore records, across reconnects of this process, which
// clean_session=0 client ids have a session on file, so CONNACK's
// session-present bit stays correct even when the in-process session
// was already torn down (or, for a durable backend, after a restart).
func WithSessionStore(store sessionstore.Store) Option {
	return func(m *SessionManager) { m.sessionStore = store }
}

// WithSubscriptionStore persists each clean_session=0 client's filter
// set so it can be restored the next time that client connects without
// an in-process session already carrying it.
func WithSubscriptionStore(store substore.Store) Option {
	return func(m *SessionManager) { m.subscriptionStore = store }
}

// NewSessionManager builds an empty SessionManager.
func NewSessionManager(cfg Config, opts ...Option) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		log:      xlog.LoggerModule("session-manager"),
		sessions: make(map[string]*Session),
		index:    newSubscriptionIndex(),
		retained: newRetainedStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClientConnected creates a session bound to conn. If a session
// already exists for this client-id, the old session is torn down
// first (timers cancelled, subscriptions removed) without publishing
// its LWT — the client is reconnecting, not disappearing.
func (m *SessionManager) ClientConnected(c *packet.Connect, conn Connection) *packet.ConnAck {
	clientID := string(c.ClientID)

	m.mu.Lock()
	old, hadOldSession := m.sessions[clientID]
	if hadOldSession {
		delete(m.sessions, clientID)
		m.index.removeClient(clientID)
		old.destroy()
	}

	var w *will
	if c.WillFlag {
		w = &will{topic: c.WillTopic, payload: c.WillMessage, qos: packet.QoS(c.WillQoS), retain: c.WillRetain}
	}

	sess := newSession(clientID, c.CleanSession, conn, w, m.cfg.AckTimeout, m.cfg.MaxRetries, m.abandon)
	m.sessions[clientID] = sess
	m.mu.Unlock()

	// A live in-process session always wins; otherwise fall back to the
	// durable record, which is the only trace left once that session was
	// torn down (or, with a restart-surviving backend, after the broker
	// itself restarted).
	sessionPresent := hadOldSession
	if !sessionPresent && !c.CleanSession && m.sessionStore != nil {
		existed, err := m.sessionStore.Exists(clientID)
		if err != nil {
			m.log.Warn("session store lookup failed", zap.String("client_id", clientID), zap.Error(err))
		}
		sessionPresent = existed
	}

	if m.sessionStore != nil {
		if c.CleanSession {
			if err := m.sessionStore.Delete(clientID); err != nil {
				m.log.Warn("session store delete failed", zap.String("client_id", clientID), zap.Error(err))
			}
		} else if err := m.sessionStore.Put(sessionstore.Record{ClientID: clientID, LastSeenAt: time.Now()}); err != nil {
			m.log.Warn("session store put failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}

	// A resumed session (sessionPresent but nothing already loaded into
	// the index because there was no live session to inherit from)
	// restores its last persisted filter set before CONNACK goes out, so
	// SUBSCRIBE isn't required again to keep receiving matching publishes.
	if !hadOldSession && sessionPresent && !c.CleanSession && m.subscriptionStore != nil {
		entries, err := m.subscriptionStore.Load(clientID)
		if err != nil {
			m.log.Warn("subscription store load failed", zap.String("client_id", clientID), zap.Error(err))
		} else if len(entries) > 0 {
			subs := make([]packet.Subscription, len(entries))
			for i, e := range entries {
				subs[i] = packet.Subscription{TopicFilter: []byte(e.Filter), QoS: packet.QoS(e.MaxQoS)}
			}
			m.index.subscribe(clientID, subs)
		}
	}

	m.log.Info("client connected", zap.String("client_id", clientID), zap.Bool("session_present", sessionPresent))
	return c.NewConnAck(code.Success, sessionPresent)
}

// ClientDisconnected removes clientID's session. Unless reason is
// graceful, the session's LWT (if any) is published first, exactly as
// if the client had sent that PUBLISH.
func (m *SessionManager) ClientDisconnected(clientID string, reason Reason) {
	m.mu.Lock()
	sess, ok := m.sessions[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, clientID)
	m.index.removeClient(clientID)
	m.mu.Unlock()

	sess.destroy()

	if sess.cleanSession {
		if m.sessionStore != nil {
			if err := m.sessionStore.Delete(clientID); err != nil {
				m.log.Warn("session store delete failed", zap.String("client_id", clientID), zap.Error(err))
			}
		}
		if m.subscriptionStore != nil {
			if err := m.subscriptionStore.Delete(clientID); err != nil {
				m.log.Warn("subscription store delete failed", zap.String("client_id", clientID), zap.Error(err))
			}
		}
	}

	if !reason.Graceful() && sess.will != nil {
		lwt := &packet.Publish{
			QoS:     sess.will.qos,
			Retain:  sess.will.retain,
			Topic:   sess.will.topic,
			Payload: sess.will.payload,
		}
		m.publishFromClient(clientID, lwt)
	}
	m.log.Info("client disconnected", zap.String("client_id", clientID), zap.Int("reason", int(reason)))
}

// ClientSubscribed inserts subscribe's filters into the index, answers
// with a SUBACK, then delivers any retained message matching the new
// filters.
func (m *SessionManager) ClientSubscribed(clientID string, s *packet.Subscribe) {
	sess, ok := m.session(clientID)
	if !ok {
		return
	}

	codes := make([]code.SubscribeCode, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		qos := sub.QoS
		if qos > m.cfg.MaximumQoS {
			qos = m.cfg.MaximumQoS
		}
		codes[i] = code.ForQoS(byte(qos))
		s.Subscriptions[i].QoS = qos
	}
	_ = sess.send(&packet.SubAck{PacketID: s.PacketID, ReturnCodes: codes})

	m.index.subscribe(clientID, s.Subscriptions)
	m.saveSubscriptions(clientID, sess)

	if !m.cfg.RetainAvailable {
		return
	}
	for _, match := range m.retained.matching(s.Subscriptions) {
		_ = sess.publish(match.publish, match.qos)
	}
}

// ClientUnsubscribed removes subscribe's filters from the index and
// answers with UNSUBACK.
func (m *SessionManager) ClientUnsubscribed(clientID string, u *packet.Unsubscribe) {
	sess, ok := m.session(clientID)
	if !ok {
		return
	}
	m.index.unsubscribe(clientID, u.TopicFilters)
	m.saveSubscriptions(clientID, sess)
	_ = sess.send(&packet.UnsubAck{PacketID: u.PacketID})
}

// saveSubscriptions replaces clientID's persisted filter set with its
// current one. Clean-session clients aren't durably tracked: their
// subscriptions vanish with the session, by definition.
func (m *SessionManager) saveSubscriptions(clientID string, sess *Session) {
	if m.subscriptionStore == nil || sess.cleanSession {
		return
	}
	subs := m.index.filtersFor(clientID)
	entries := make([]substore.Entry, len(subs))
	for i, s := range subs {
		entries[i] = substore.Entry{Filter: string(s.TopicFilter), MaxQoS: byte(s.QoS)}
	}
	if err := m.subscriptionStore.Save(clientID, entries); err != nil {
		m.log.Warn("subscription store save failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

// ClientPublished handles an inbound PUBLISH from clientID: forward first with
// retain forced to 0, then apply retention, to avoid a race with a
// concurrent subscribe observing a retained message before its live
// delivery.
func (m *SessionManager) ClientPublished(clientID string, p *packet.Publish) {
	m.publishFromClient(clientID, p)
}

func (m *SessionManager) publishFromClient(clientID string, p *packet.Publish) {
	forwarded := p.Clone()
	forwarded.Retain = false
	m.deliver(forwarded)

	if m.cfg.RetainAvailable && p.Retain {
		m.retained.retain(p)
	}
}

// deliver resolves subscribers for p's topic and publishes to each at
// its effective qos.
func (m *SessionManager) deliver(p *packet.Publish) {
	for _, sub := range m.index.resolve(string(p.Topic)) {
		sess, ok := m.session(sub.clientID)
		if !ok {
			continue
		}
		_ = sess.publish(p, sub.qos)
	}
}

// ClientAckedPublish, ClientReceivedPublish, ClientReleasedPublish and
// ClientCompletedPublish forward PUBACK/PUBREC/PUBREL/PUBCOMP to the
// owning session's in-flight tables.
func (m *SessionManager) ClientAckedPublish(clientID string, pktID uint16) {
	if sess, ok := m.session(clientID); ok {
		sess.clientAckedPublish(pktID)
	}
}

func (m *SessionManager) ClientReceivedPublish(clientID string, pktID uint16) {
	if sess, ok := m.session(clientID); ok {
		sess.clientReceivedPublish(pktID)
	}
}

func (m *SessionManager) ClientReleasedPublish(clientID string, pktID uint16) {
	if sess, ok := m.session(clientID); ok {
		_ = sess.clientReleasedPublish(pktID)
	}
}

func (m *SessionManager) ClientCompletedPublish(clientID string, pktID uint16) {
	if sess, ok := m.session(clientID); ok {
		sess.clientCompletedPublish(pktID)
	}
}

// ClientSentPublish handles an inbound PUBLISH from clientID, running
// it through that session's RX path before resolving subscribers — QoS
// 2 retries must not re-deliver (MQTT-4.3.3-2).
func (m *SessionManager) ClientSentPublish(clientID string, p *packet.Publish) {
	sess, ok := m.session(clientID)
	if !ok {
		return
	}
	_ = sess.clientSentPublish(p, func() { m.publishFromClient(clientID, p) })
}

// DestroyAll tears down every session, e.g. on server shutdown.
func (m *SessionManager) DestroyAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for clientID, sess := range sessions {
		m.index.removeClient(clientID)
		sess.destroy()
	}
}

func (m *SessionManager) session(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// abandon logs a publication whose retry budget is exhausted
// (xerror.ErrPublicationAbandoned never reaches the wire as a packet).
func (m *SessionManager) abandon(clientID string, pktID uint16) {
	m.log.Warn("publication abandoned", zap.String("client_id", clientID), zap.Uint16("packet_id", pktID))
}
