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

package publisher_test

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/encoding"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/publisher"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
)

// recordingBus keeps published payloads per topic.
type recordingBus struct {
	err      error
	payloads map[string][][]byte
	mu       sync.Mutex
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}

	b.payloads[topic] = append(b.payloads[topic], payload)

	return nil
}

func (b *recordingBus) Subscribe(string, transport.Handler) (transport.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) last(topic string) models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	payloads := b.payloads[topic]
	Expect(payloads).NotTo(BeEmpty())

	msg, err := encoding.Decode(payloads[len(payloads)-1])
	Expect(err).NotTo(HaveOccurred())

	return msg
}

var _ = Describe("Publisher", func() {
	var (
		bus      *recordingBus
		pub      *publisher.Publisher
		ctx      context.Context
		p1       = models.Identifier{Name: "p1", Version: "1.0.0"}
		p2       = models.Identifier{Name: "p2", Version: "1.0.0"}
		instance *models.Instance
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = &recordingBus{payloads: make(map[string][][]byte)}
		pub = publisher.New(bus, "acm.participant", zaptest.NewLogger(GinkgoT()).Sugar())
		instance = &models.Instance{
			ID:           "i1",
			OrderedState: models.OrderedStatePassive,
			State:        models.StateUninitialised2Passive,
			Elements: map[string]*models.Element{
				"e1": {ID: "e1", ParticipantID: p1, OrderedState: models.OrderedStatePassive},
				"e2": {ID: "e2", ParticipantID: p2, OrderedState: models.OrderedStatePassive},
			},
		}
	})

	It("broadcasts an update with every element", func() {
		id, err := pub.SendUpdate(ctx, instance, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(Equal(uuid.Nil))

		msg, ok := bus.last("acm.participant").(*models.ControlLoopUpdate)
		Expect(ok).To(BeTrue())
		Expect(msg.MessageID).To(Equal(id))
		Expect(msg.ParticipantID).To(BeNil())
		Expect(msg.InstanceID).To(Equal("i1"))
		Expect(msg.Elements).To(HaveLen(2))
	})

	It("addresses an update to one participant with only its elements", func() {
		_, err := pub.SendUpdate(ctx, instance, &p2)
		Expect(err).NotTo(HaveOccurred())

		msg, ok := bus.last("acm.participant").(*models.ControlLoopUpdate)
		Expect(ok).To(BeTrue())
		Expect(*msg.ParticipantID).To(Equal(p2))
		Expect(msg.Elements).To(HaveLen(1))
		Expect(msg.Elements[0].ElementID).To(Equal("e2"))
	})

	It("carries the target of a state change", func() {
		instance.State = models.StatePassive2Running
		instance.OrderedState = models.OrderedStateRunning

		_, err := pub.SendStateChange(ctx, instance, models.StateRunning, nil)
		Expect(err).NotTo(HaveOccurred())

		msg, ok := bus.last("acm.participant").(*models.ControlLoopStateChange)
		Expect(ok).To(BeTrue())
		Expect(msg.CurrentState).To(Equal(models.StatePassive2Running))
		Expect(msg.TargetState).To(Equal(models.StateRunning))
		Expect(msg.OrderedState).To(Equal(models.OrderedStateRunning))
	})

	It("correlates acks through responseTo", func() {
		request := uuid.New()
		Expect(pub.SendRegisterAck(ctx, p1, request)).To(Succeed())

		msg, ok := bus.last("acm.participant").(*models.ParticipantRegisterAck)
		Expect(ok).To(BeTrue())
		Expect(msg.ResponseTo).To(Equal(request))
		Expect(msg.Succeeded()).To(BeTrue())
	})

	It("returns transport errors", func() {
		bus.err = transport.ErrClosed

		Expect(pub.SendStatusReq(ctx, p1)).To(MatchError(transport.ErrClosed))
	})
})
