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

// Package memory is an in-process Bus. Every subscription has its own goroutine
// and buffer, so publishers never run subscriber code on their own stack.
package memory

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
)

// DefaultBufferSize is the number of undelivered messages a subscription holds before dropping.
const DefaultBufferSize = 256

var _ transport.Bus = (*Bus)(nil)

type subscription struct {
	bus     *Bus
	ch      chan []byte
	done    chan struct{}
	handler transport.Handler
	topic   string
	once    sync.Once
}

type Bus struct {
	log        *zap.SugaredLogger
	topics     map[string][]*subscription
	bufferSize int
	closed     bool
	mu         sync.RWMutex
}

func NewBus(log *zap.SugaredLogger) *Bus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Bus{
		log:        log,
		topics:     make(map[string][]*subscription),
		bufferSize: DefaultBufferSize,
	}
}

// Publish copies payload into every subscriber's buffer. A full buffer drops
// the message for that subscriber only.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return transport.ErrClosed
	}

	for _, sub := range b.topics[topic] {
		msg := slices.Clone(payload)

		select {
		case sub.ch <- msg:
		case <-sub.done:
		default:
			b.log.Warnf("Dropping message on %s, subscriber buffer full", topic)
		}
	}

	return nil
}

func (b *Bus) Subscribe(topic string, handler transport.Handler) (transport.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, transport.ErrClosed
	}

	sub := &subscription{
		bus:     b,
		ch:      make(chan []byte, b.bufferSize),
		done:    make(chan struct{}),
		handler: handler,
		topic:   topic,
	}
	b.topics[topic] = append(b.topics[topic], sub)

	go sub.run()

	return sub, nil
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.ch:
			s.handler(msg)
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	s.bus.topics[s.topic] = slices.DeleteFunc(s.bus.topics[s.topic], func(other *subscription) bool {
		return other == s
	})
	s.stop()

	return nil
}

// Close stops all subscriptions. Undelivered messages are discarded.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.stop()
		}
	}

	b.topics = make(map[string][]*subscription)

	return nil
}
