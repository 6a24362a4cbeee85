// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package handlecounter bounds how often the supervision scanner re-drives a key
// (an instance id or a participant) and remembers keys that gave up.
package handlecounter

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	start   time.Time
	counter int
	fault   bool
}

// HandleCounter tracks retries, faults and elapsed time per key.
// Entries are created lazily and live only in this process.
type HandleCounter[K comparable] struct {
	entries       map[K]*entry
	log           *zap.SugaredLogger
	now           func() time.Time
	maxRetryCount int
	mu            sync.Mutex
}

// New returns a counter allowing maxRetryCount retries per key.
func New[K comparable](maxRetryCount int, log *zap.SugaredLogger) *HandleCounter[K] {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	hc := &HandleCounter[K]{
		entries:       make(map[K]*entry),
		log:           log,
		now:           time.Now,
		maxRetryCount: 1,
	}
	hc.SetMaxRetryCount(maxRetryCount)

	return hc
}

// getOrCreate must be called with mu held.
func (hc *HandleCounter[K]) getOrCreate(key K) *entry {
	e, ok := hc.entries[key]
	if !ok {
		e = &entry{start: hc.now()}
		hc.entries[key] = e
	}

	return e
}

// Count consumes one retry for key. It returns false without incrementing
// once the counter has reached the maximum.
func (hc *HandleCounter[K]) Count(key K) bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	e := hc.getOrCreate(key)
	if e.counter >= hc.maxRetryCount {
		return false
	}

	e.counter++

	return true
}

// GetCounter returns the retries consumed by key, 0 for unseen keys.
func (hc *HandleCounter[K]) GetCounter(key K) int {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if e, ok := hc.entries[key]; ok {
		return e.counter
	}

	return 0
}

// SetFault marks key as faulted. The counter is kept.
func (hc *HandleCounter[K]) SetFault(key K) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.getOrCreate(key).fault = true
}

func (hc *HandleCounter[K]) IsFault(key K) bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	e, ok := hc.entries[key]

	return ok && e.fault
}

// GetDuration returns the time since key was first seen or last cleared.
// Asking for an unseen key starts its clock.
func (hc *HandleCounter[K]) GetDuration(key K) time.Duration {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	return hc.now().Sub(hc.getOrCreate(key).start)
}

// Clear forgets key; the next access behaves like a fresh key.
func (hc *HandleCounter[K]) Clear(key K) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	delete(hc.entries, key)
}

// SetMaxRetryCount changes the cap for all keys. Non-positive values are ignored.
func (hc *HandleCounter[K]) SetMaxRetryCount(n int) {
	if n <= 0 {
		hc.log.Warnf("Ignoring non-positive max retry count %d", n)

		return
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.maxRetryCount = n
}

func (hc *HandleCounter[K]) MaxRetryCount() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	return hc.maxRetryCount
}

// FaultedKeys returns a snapshot of all faulted keys in no particular order.
func (hc *HandleCounter[K]) FaultedKeys() []K {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	keys := make([]K, 0)

	for k, e := range hc.entries {
		if e.fault {
			keys = append(keys, k)
		}
	}

	return keys
}

// Len returns the number of tracked keys.
func (hc *HandleCounter[K]) Len() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	return len(hc.entries)
}
