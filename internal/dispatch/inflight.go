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
	"time"

	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/xerror"
	"github.com/yunqi/lighthouse/internal/xsync"
)

var errPacketIDExhausted = xerror.ErrPacketIDExhausted

// rxState is the RX QoS-2 state machine: tracks one PUBLISH the peer
// sent us at QoS 2, keyed by the peer's packet-id, until the matching
// PUBREL arrives.
type rxState struct {
	timer *xsync.RetryTimer
}

// txState is the shared shape of the TX QoS-1 and TX QoS-2 state
// machines: one outbound publication, keyed by the server-allocated
// packet-id, until it is acked or abandoned.
type txState struct {
	publish *packet.Publish
	qos2    bool
	// phase is "rec" (TX QoS-2 only: awaiting PUBREC) or "comp"
	// (QoS-1 awaiting PUBACK, or QoS-2 awaiting PUBCOMP after PUBREL).
	phase string
	timer *xsync.RetryTimer
}

const (
	phaseAwaitingRec  = "rec"
	phaseAwaitingComp = "comp"
)

// inflight owns one session's RX and TX tables. Every method call
// arrives with the owning Session's mutex already held by the caller,
// except the retry-timer callbacks armed below, which run on their own
// goroutine (time.AfterFunc) and take the lock themselves via
// f.lock/f.unlock before touching rx/tx.
type inflight struct {
	rx map[uint16]*rxState
	tx map[uint16]*txState

	nextID uint16

	ackTimeout time.Duration
	maxRetries int

	send    func(p packet.Packet) error
	abandon func(id uint16)
	close   func()

	// lock/unlock guard the owning Session's mutex. Every exported
	// inflight method is already called with it held by the caller;
	// only the retry-timer callbacks below need to take it themselves,
	// since time.AfterFunc runs them on their own goroutine.
	lock   func()
	unlock func()
}

func newInflight(ackTimeout time.Duration, maxRetries int, send func(packet.Packet) error, abandon func(uint16), closeConn func(), lock, unlock func()) *inflight {
	return &inflight{
		rx:         make(map[uint16]*rxState),
		tx:         make(map[uint16]*txState),
		ackTimeout: ackTimeout,
		maxRetries: maxRetries,
		send:       send,
		abandon:    abandon,
		close:      closeConn,
		lock:       lock,
		unlock:     unlock,
	}
}

// allocateID returns the next free TX packet-id, skipping ids already
// in flight and never returning 0, wrapping from 0xFFFF back to 1.
func (f *inflight) allocateID() (uint16, bool) {
	for i := 0; i < 0xFFFF; i++ {
		f.nextID++
		if f.nextID == 0 {
			f.nextID = 1
		}
		if _, busy := f.tx[f.nextID]; !busy {
			return f.nextID, true
		}
	}
	return 0, false
}

// --- RX QoS-2 ---

// receivedPublish handles an inbound QoS-2 PUBLISH. When pktID is
// already in flight it is a retry, not a fresh delivery (MQTT-4.3.3-2):
// onDeliver is not called and PUBREC is re-sent.
func (f *inflight) receivedPublish(pktID uint16, onDeliver func()) error {
	if _, exists := f.rx[pktID]; exists {
		// Retry of an in-flight QoS-2 PUBLISH: do not re-deliver, just
		// re-acknowledge.
		return f.send(&packet.PubRec{PacketID: pktID})
	}
	onDeliver()

	st := &rxState{timer: &xsync.RetryTimer{}}
	f.rx[pktID] = st
	if err := f.send(&packet.PubRec{PacketID: pktID}); err != nil {
		return err
	}
	f.armRxTimer(pktID, st)
	return nil
}

func (f *inflight) armRxTimer(pktID uint16, st *rxState) {
	st.timer.Arm(f.ackTimeout, func() {
		f.lock()
		defer f.unlock()

		cur, ok := f.rx[pktID]
		if !ok || cur != st {
			return
		}
		if st.timer.Retries() >= f.maxRetries {
			delete(f.rx, pktID)
			return
		}
		st.timer.IncRetries()
		_ = f.send(&packet.PubRec{PacketID: pktID})
		f.armRxTimer(pktID, st)
	})
}

// receivedRel handles an inbound PUBREL: if pktID has no RX entry,
// the peer released a packet-id we never saw a QoS-2 PUBLISH for —
// a protocol violation.
func (f *inflight) receivedRel(pktID uint16) error {
	st, ok := f.rx[pktID]
	if !ok {
		f.close()
		return nil
	}
	st.timer.Stop()
	delete(f.rx, pktID)
	return f.send(&packet.PubComp{PacketID: pktID})
}

// --- TX QoS-1 ---

// sendQoS1 allocates a packet-id and sends p as a QoS-1 PUBLISH,
// arming the retry timer.
func (f *inflight) sendQoS1(p *packet.Publish) error {
	id, ok := f.allocateID()
	if !ok {
		return errPacketIDExhausted
	}
	p = p.Clone()
	p.QoS = packet.AtLeastOnce
	p.PacketID = id
	p.Dup = false

	st := &txState{publish: p, phase: phaseAwaitingComp, timer: &xsync.RetryTimer{}}
	f.tx[id] = st
	if err := f.send(p); err != nil {
		return err
	}
	f.armTxQoS1Timer(id, st)
	return nil
}

func (f *inflight) armTxQoS1Timer(id uint16, st *txState) {
	st.timer.Arm(f.ackTimeout, func() {
		f.lock()
		defer f.unlock()

		cur, ok := f.tx[id]
		if !ok || cur != st {
			return
		}
		if st.timer.Retries() >= f.maxRetries {
			delete(f.tx, id)
			f.abandon(id)
			return
		}
		st.timer.IncRetries()
		dup := *st.publish
		dup.Dup = true
		_ = f.send(&dup)
		f.armTxQoS1Timer(id, st)
	})
}

// receivedAck handles an inbound PUBACK. An id with no TX entry is a
// protocol violation — the open-question decision in DESIGN.md
// elevates this to the same handling as an unexpected PUBREL.
func (f *inflight) receivedAck(pktID uint16) {
	st, ok := f.tx[pktID]
	if !ok {
		f.close()
		return
	}
	if st.qos2 {
		f.close() // PUBACK against a QoS-2 publication: protocol violation
		return
	}
	st.timer.Stop()
	delete(f.tx, pktID)
}

// --- TX QoS-2 ---

func (f *inflight) sendQoS2(p *packet.Publish) error {
	id, ok := f.allocateID()
	if !ok {
		return errPacketIDExhausted
	}
	p = p.Clone()
	p.QoS = packet.ExactlyOnce
	p.PacketID = id
	p.Dup = false

	st := &txState{publish: p, qos2: true, phase: phaseAwaitingRec, timer: &xsync.RetryTimer{}}
	f.tx[id] = st
	if err := f.send(p); err != nil {
		return err
	}
	f.armTxQoS2RecTimer(id, st)
	return nil
}

func (f *inflight) armTxQoS2RecTimer(id uint16, st *txState) {
	st.timer.Arm(f.ackTimeout, func() {
		f.lock()
		defer f.unlock()

		cur, ok := f.tx[id]
		if !ok || cur != st || st.phase != phaseAwaitingRec {
			return
		}
		if st.timer.Retries() >= f.maxRetries {
			delete(f.tx, id)
			f.abandon(id)
			return
		}
		st.timer.IncRetries()
		dup := *st.publish
		dup.Dup = true
		_ = f.send(&dup)
		f.armTxQoS2RecTimer(id, st)
	})
}

func (f *inflight) armTxQoS2CompTimer(id uint16, st *txState) {
	st.timer.Arm(f.ackTimeout, func() {
		f.lock()
		defer f.unlock()

		cur, ok := f.tx[id]
		if !ok || cur != st || st.phase != phaseAwaitingComp {
			return
		}
		if st.timer.Retries() >= f.maxRetries {
			delete(f.tx, id)
			f.abandon(id)
			return
		}
		st.timer.IncRetries()
		_ = f.send(&packet.PubRel{PacketID: id})
		f.armTxQoS2CompTimer(id, st)
	})
}

// receivedRec handles an inbound PUBREC. Receiving it again while
// already WaitingForComp re-sends PUBREL without a state transition
// (the peer lost our PUBREL); receiving anything but PUBREC while
// WaitingForRec is handled by receivedAck/receivedComp closing the
// connection, since this method is only invoked for PUBREC itself.
func (f *inflight) receivedRec(pktID uint16) {
	st, ok := f.tx[pktID]
	if !ok || !st.qos2 {
		f.close()
		return
	}
	// No Stop here: Stop releases the timer's guard for good, which would
	// also silence the PUBCOMP-wait retries armed below. Arm cancels the
	// pending PUBREC-wait fire, and a fire already in flight returns on
	// its phase check.
	st.phase = phaseAwaitingComp
	_ = f.send(&packet.PubRel{PacketID: pktID})
	f.armTxQoS2CompTimer(pktID, st)
}

// receivedComp handles an inbound PUBCOMP.
func (f *inflight) receivedComp(pktID uint16) {
	st, ok := f.tx[pktID]
	if !ok || !st.qos2 || st.phase != phaseAwaitingComp {
		f.close()
		return
	}
	st.timer.Stop()
	delete(f.tx, pktID)
}

// cancelAll stops every in-flight timer, used when the owning session
// is destroyed.
func (f *inflight) cancelAll() {
	for _, st := range f.rx {
		st.timer.Stop()
	}
	for _, st := range f.tx {
		st.timer.Stop()
	}
}
