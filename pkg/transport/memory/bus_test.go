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

package memory_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport/memory"
)

type collector struct {
	msgs []string
	mu   sync.Mutex
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, string(payload))
}

func (c *collector) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.msgs...)
}

var _ = Describe("Memory bus", func() {
	var (
		bus *memory.Bus
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = memory.NewBus(zaptest.NewLogger(GinkgoT()).Sugar())
		DeferCleanup(bus.Close)
	})

	It("delivers to every subscriber of a topic in order", func() {
		a, b := &collector{}, &collector{}

		_, err := bus.Subscribe("acm.runtime", a.handle)
		Expect(err).NotTo(HaveOccurred())
		_, err = bus.Subscribe("acm.runtime", b.handle)
		Expect(err).NotTo(HaveOccurred())

		Expect(bus.Publish(ctx, "acm.runtime", []byte("one"))).To(Succeed())
		Expect(bus.Publish(ctx, "acm.runtime", []byte("two"))).To(Succeed())

		Eventually(a.received).Should(Equal([]string{"one", "two"}))
		Eventually(b.received).Should(Equal([]string{"one", "two"}))
	})

	It("keeps topics apart", func() {
		c := &collector{}
		_, err := bus.Subscribe("acm.participant", c.handle)
		Expect(err).NotTo(HaveOccurred())

		Expect(bus.Publish(ctx, "acm.runtime", []byte("x"))).To(Succeed())
		Consistently(c.received, "50ms").Should(BeEmpty())
	})

	It("copies payloads so publishers may reuse buffers", func() {
		c := &collector{}
		_, err := bus.Subscribe("t", c.handle)
		Expect(err).NotTo(HaveOccurred())

		buf := []byte("abc")
		Expect(bus.Publish(ctx, "t", buf)).To(Succeed())
		buf[0] = 'z'

		Eventually(c.received).Should(Equal([]string{"abc"}))
	})

	It("stops delivering after unsubscribe", func() {
		c := &collector{}
		sub, err := bus.Subscribe("t", c.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Unsubscribe()).To(Succeed())

		Expect(bus.Publish(ctx, "t", []byte("late"))).To(Succeed())
		Consistently(c.received, "50ms").Should(BeEmpty())
	})

	It("rejects use after close", func() {
		Expect(bus.Close()).To(Succeed())

		Expect(bus.Publish(ctx, "t", []byte("x"))).To(MatchError(transport.ErrClosed))
		_, err := bus.Subscribe("t", func([]byte) {})
		Expect(err).To(MatchError(transport.ErrClosed))
	})

	It("honours a cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Expect(bus.Publish(cancelled, "t", []byte("x"))).To(MatchError(context.Canceled))
	})
})
