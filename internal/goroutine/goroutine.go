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

// Package goroutine provides a process-wide, bounded goroutine pool built
// on ants/v2. The connection accept loop submits one long-lived task per
// accepted connection; capping concurrency here bounds the number of
// live goroutines under a connection storm instead of letting an
// unbounded `go func()` per client exhaust the scheduler.
package goroutine

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

var (
	mu   sync.RWMutex
	pool *ants.Pool
)

// Init (re)configures the pool with the given capacity. Capacity <= 0
// means unbounded (ants.DefaultAntsPoolSize).
func Init(capacity int) error {
	mu.Lock()
	defer mu.Unlock()
	if pool != nil {
		pool.Release()
	}
	if capacity <= 0 {
		capacity = ants.DefaultAntsPoolSize
	}
	p, err := ants.NewPool(capacity, ants.WithNonblocking(false))
	if err != nil {
		return err
	}
	pool = p
	return nil
}

// Go submits fn to the pool, falling back to a plain goroutine if the
// pool has not been initialized (e.g. in unit tests that exercise a
// component in isolation).
func Go(fn func()) {
	mu.RLock()
	p := pool
	mu.RUnlock()
	if p == nil {
		go fn()
		return
	}
	if err := p.Submit(fn); err != nil {
		go fn()
	}
}

// Running reports the number of goroutines currently running in the pool,
// or 0 if the pool has not been initialized.
func Running() int {
	mu.RLock()
	defer mu.RUnlock()
	if pool == nil {
		return 0
	}
	return pool.Running()
}
