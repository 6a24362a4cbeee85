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

package supervision

import (
	"context"
	"sync"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/ctxutil/ctxmutex"
)

// keyedLocks hands out one lock per key. An entry only lives while someone
// holds or waits for it.
type keyedLocks[K comparable] struct {
	entries map[K]*keyedLock
	mu      sync.Mutex
}

type keyedLock struct {
	mu   *ctxmutex.CtxMutex
	refs int
}

func newKeyedLocks[K comparable]() *keyedLocks[K] {
	return &keyedLocks[K]{entries: make(map[K]*keyedLock)}
}

func (l *keyedLocks[K]) acquire(key K) *ctxmutex.CtxMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedLock{mu: ctxmutex.NewCtxMutex()}
		l.entries[key] = entry
	}

	entry.refs++

	return entry.mu
}

func (l *keyedLocks[K]) release(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}

// with runs fn while holding the lock of key. Locks are not reentrant.
func (l *keyedLocks[K]) with(ctx context.Context, key K, fn func() error) error {
	m := l.acquire(key)
	defer l.release(key)

	if err := m.Lock(ctx); err != nil {
		return err
	}
	defer m.Unlock()

	return fn()
}

func (l *keyedLocks[K]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
