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

	"github.com/yunqi/lighthouse/internal/packet"
	"github.com/yunqi/lighthouse/internal/topic"
)

// subscriptionIndex maps (client_id, filter) -> max_qos. Unlike the
// retained store, entries are naturally grouped per client (subscribe
// and unsubscribe both operate on one client's whole filter set, and
// a disconnect must remove every entry for one client-id in one pass)
// so a plain mutex-guarded map of slices fits better than a
// key-per-filter skip list.
type subscriptionIndex struct {
	mu   sync.RWMutex
	byID map[string][]packet.Subscription
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{byID: make(map[string][]packet.Subscription)}
}

// subscribe inserts or replaces clientID's entries for each filter in subs.
func (idx *subscriptionIndex) subscribe(clientID string, subs []packet.Subscription) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	existing := idx.byID[clientID]
	for _, s := range subs {
		replaced := false
		for i, e := range existing {
			if string(e.TopicFilter) == string(s.TopicFilter) {
				existing[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, s)
		}
	}
	idx.byID[clientID] = existing
}

// unsubscribe removes clientID's entries whose filter appears in filters.
func (idx *subscriptionIndex) unsubscribe(clientID string, filters [][]byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	existing := idx.byID[clientID]
	if len(existing) == 0 {
		return
	}
	remove := make(map[string]bool, len(filters))
	for _, f := range filters {
		remove[string(f)] = true
	}
	kept := existing[:0]
	for _, e := range existing {
		if !remove[string(e.TopicFilter)] {
			kept = append(kept, e)
		}
	}
	idx.byID[clientID] = kept
}

// removeClient drops every entry for clientID, e.g. on session destruction.
func (idx *subscriptionIndex) removeClient(clientID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byID, clientID)
}

// filtersFor returns clientID's current filter set, used to resolve
// retained-message delivery on SUBSCRIBE.
func (idx *subscriptionIndex) filtersFor(clientID string) []packet.Subscription {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]packet.Subscription(nil), idx.byID[clientID]...)
}

// subscriber is one resolved recipient of a published topic.
type subscriber struct {
	clientID string
	qos      packet.QoS
}

// resolve returns, for a published topic, the deduplicated set of
// (client_id, effective_qos) across every matching filter — the
// maximum qos wins when one client matches via more than one filter.
func (idx *subscriptionIndex) resolve(topicName string) []subscriber {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := make(map[string]packet.QoS)
	order := make([]string, 0)
	for clientID, subs := range idx.byID {
		for _, s := range subs {
			if !filterMatches(string(s.TopicFilter), topicName) {
				continue
			}
			prev, ok := best[clientID]
			if !ok {
				order = append(order, clientID)
			}
			if !ok || s.QoS > prev {
				best[clientID] = s.QoS
			}
		}
	}
	out := make([]subscriber, 0, len(order))
	for _, id := range order {
		out = append(out, subscriber{clientID: id, qos: best[id]})
	}
	return out
}

func filterMatches(filter, topicName string) bool {
	return topic.Matches(filter, topicName)
}
