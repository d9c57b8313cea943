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
	"github.com/bytedance/gopkg/collection/skipmap"

	"github.com/yunqi/lighthouse/internal/packet"
)

// retainedStore is the topic -> retained PUBLISH map. It is the
// hottest concurrent map in the broker (read on every SUBSCRIBE,
// written on every retain=1 PUBLISH) and is never locked against the
// subscription index, so it gets its own lock-free skip list rather
// than sharing a mutex with anything else.
type retainedStore struct {
	m *skipmap.StringMap
}

func newRetainedStore() *retainedStore {
	return &retainedStore{m: skipmap.NewString()}
}

// retain stores p (replacing any prior retained message on the same
// topic) or, if p's payload is empty, deletes the entry [MQTT-3.3.1-10..12].
func (s *retainedStore) retain(p *packet.Publish) {
	if len(p.Payload) == 0 {
		s.m.Delete(string(p.Topic))
		return
	}
	s.m.Store(string(p.Topic), p)
}

// matching returns the deduplicated retained messages whose topic
// matches any of filters, one per topic, at min(retained.qos,
// matchedMaxQoS).
func (s *retainedStore) matching(filters []packet.Subscription) []retainedMatch {
	var out []retainedMatch
	s.m.Range(func(key string, value interface{}) bool {
		rp := value.(*packet.Publish)
		best := -1
		for _, f := range filters {
			if !filterMatches(string(f.TopicFilter), key) {
				continue
			}
			q := int(f.QoS)
			if q > best {
				best = q
			}
		}
		if best < 0 {
			return true
		}
		qos := rp.QoS
		if packet.QoS(best) < qos {
			qos = packet.QoS(best)
		}
		out = append(out, retainedMatch{publish: rp, qos: qos})
		return true
	})
	return out
}

type retainedMatch struct {
	publish *packet.Publish
	qos     packet.QoS
}
