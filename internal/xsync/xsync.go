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

// Package xsync holds the small concurrency primitives the broker core
// needs in place of the source's weak-pointer timer callbacks: Go has
// no weak references, so a released owner is modelled as an atomic
// flag a timer callback checks before acting.
package xsync

import (
	"sync"
	"sync/atomic"
	"time"
)

// Guard makes a callback a no-op after its owner releases it. A timer
// fired concurrently with Release either runs to completion before the
// flag is observed, or sees it set and returns immediately — there is
// no partial state to protect, so sync/atomic is the whole primitive.
type Guard struct {
	released int32
}

// Released reports whether Release has been called.
func (g *Guard) Released() bool { return atomic.LoadInt32(&g.released) == 1 }

// Release marks the guard released. It is safe to call more than once.
func (g *Guard) Release() { atomic.StoreInt32(&g.released, 1) }

// Run invokes fn only if the guard has not been released.
func (g *Guard) Run(fn func()) {
	if g.Released() {
		return
	}
	fn()
}

// RetryTimer wraps time.AfterFunc with a Guard and a retry counter, the
// shape every in-flight publication state machine reuses for its
// "resend on timeout, give up after max-retries" behaviour.
type RetryTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	guard   Guard
	retries int
}

// Arm (re)schedules fn to run after d, cancelling any previously
// scheduled fire. fn is only invoked if the timer has not been
// Stopped in the meantime. Stop is final: Arm after Stop schedules a
// fire that never invokes fn.
func (t *RetryTimer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.guard.Run(fn)
	})
}

// Stop cancels the timer and marks the guard released, so a fire
// already in flight when Stop runs becomes a no-op.
func (t *RetryTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.guard.Release()
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Retries returns the current retry count.
func (t *RetryTimer) Retries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retries
}

// IncRetries increments and returns the new retry count.
func (t *RetryTimer) IncRetries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retries++
	return t.retries
}
