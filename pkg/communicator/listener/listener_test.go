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

package listener_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/encoding"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/listener"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport/memory"
)

type fakeHandler struct {
	err   error
	calls []models.MessageType
	mu    sync.Mutex
}

func (f *fakeHandler) record(t models.MessageType) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, t)

	return f.err
}

func (f *fakeHandler) received() []models.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.MessageType(nil), f.calls...)
}

func (f *fakeHandler) HandleParticipantRegister(_ context.Context, m *models.ParticipantRegister) error {
	return f.record(m.MessageType)
}

func (f *fakeHandler) HandleParticipantDeregister(_ context.Context, m *models.ParticipantDeregister) error {
	return f.record(m.MessageType)
}

func (f *fakeHandler) HandleParticipantStatusMessage(_ context.Context, m *models.ParticipantStatus) error {
	return f.record(m.MessageType)
}

func (f *fakeHandler) HandleControlLoopAck(_ context.Context, m *models.ControlLoopAck) error {
	return f.record(m.MessageType)
}

func (f *fakeHandler) HandleParticipantUpdateAck(_ context.Context, m *models.ParticipantUpdateAck) error {
	return f.record(m.MessageType)
}

type fakeObserver struct {
	seen []models.Identifier
	mu   sync.Mutex
}

func (o *fakeObserver) HandleParticipantStatus(p models.Identifier) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seen = append(o.seen, p)
}

func (o *fakeObserver) observed() []models.Identifier {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]models.Identifier(nil), o.seen...)
}

func listenerErrors(messageType models.MessageType) float64 {
	families, err := prometheus.DefaultGatherer.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != "umh_acm_errors_total" {
			continue
		}

		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}

			if labels["component"] == metrics.ComponentListener && labels["instance"] == string(messageType) {
				return m.GetCounter().GetValue()
			}
		}
	}

	return 0
}

var _ = Describe("Listener", func() {
	var (
		handler  *fakeHandler
		observer *fakeObserver
		bus      *memory.Bus
		l        *listener.Listener
		ctx      context.Context
		p1       = models.Identifier{Name: "p1", Version: "1.0.0"}
	)

	encode := func(msg models.Message, from *models.Identifier) []byte {
		msg.Header().ParticipantID = from
		data, err := encoding.Encode(msg)
		Expect(err).NotTo(HaveOccurred())

		return data
	}

	BeforeEach(func() {
		ctx = context.Background()
		handler = &fakeHandler{}
		observer = &fakeObserver{}
		bus = memory.NewBus(zaptest.NewLogger(GinkgoT()).Sugar())
		DeferCleanup(bus.Close)
		l = listener.New(bus, "acm.runtime", handler, observer, zaptest.NewLogger(GinkgoT()).Sugar())
	})

	It("routes each participant message type to its handler", func() {
		l.Dispatch(ctx, encode(&models.ParticipantRegister{MessageHeader: models.NewHeader(models.MessageTypeRegister)}, &p1))
		l.Dispatch(ctx, encode(&models.ControlLoopAck{MessageHeader: models.NewHeader(models.MessageTypeUpdateAck)}, &p1))
		l.Dispatch(ctx, encode(&models.ControlLoopAck{MessageHeader: models.NewHeader(models.MessageTypeStateChangeAck)}, &p1))
		l.Dispatch(ctx, encode(&models.ParticipantUpdateAck{MessageHeader: models.NewHeader(models.MessageTypeParticipantUpdateAck)}, &p1))
		l.Dispatch(ctx, encode(&models.ParticipantDeregister{MessageHeader: models.NewHeader(models.MessageTypeDeregister)}, &p1))

		Expect(handler.received()).To(Equal([]models.MessageType{
			models.MessageTypeRegister,
			models.MessageTypeUpdateAck,
			models.MessageTypeStateChangeAck,
			models.MessageTypeParticipantUpdateAck,
			models.MessageTypeDeregister,
		}))
	})

	It("tells the observer about every status before handling it", func() {
		l.Dispatch(ctx, encode(&models.ParticipantStatus{MessageHeader: models.NewHeader(models.MessageTypeStatus)}, &p1))

		Expect(observer.observed()).To(ConsistOf(p1))
		Expect(handler.received()).To(ConsistOf(models.MessageTypeStatus))
	})

	It("drops runtime-originated and malformed messages", func() {
		l.Dispatch(ctx, encode(&models.ControlLoopUpdate{MessageHeader: models.NewHeader(models.MessageTypeUpdate)}, &p1))
		l.Dispatch(ctx, []byte("not json"))
		l.Dispatch(ctx, []byte(`{"messageType":"SOMETHING_NEW"}`))
		l.Dispatch(ctx, encode(&models.ParticipantStatus{MessageHeader: models.NewHeader(models.MessageTypeStatus)}, nil))

		Expect(handler.received()).To(BeEmpty())
		Expect(observer.observed()).To(BeEmpty())
	})

	It("does not count dropped messages as errors", func() {
		before := listenerErrors(models.MessageTypeStatus)

		l.Dispatch(ctx, encode(&models.ParticipantStatus{MessageHeader: models.NewHeader(models.MessageTypeStatus)}, nil))
		l.Dispatch(ctx, []byte(`{"messageType":"PARTICIPANT_STATUS","participantId":`))

		Expect(listenerErrors(models.MessageTypeStatus)).To(Equal(before))
	})

	It("counts handler errors", func() {
		handler.err = errors.New("store down")
		before := listenerErrors(models.MessageTypeStatus)

		l.Dispatch(ctx, encode(&models.ParticipantStatus{MessageHeader: models.NewHeader(models.MessageTypeStatus)}, &p1))

		Expect(listenerErrors(models.MessageTypeStatus)).To(Equal(before + 1))
	})

	It("survives handler errors", func() {
		handler.err = errors.New("store down")

		l.Dispatch(ctx, encode(&models.ParticipantRegister{MessageHeader: models.NewHeader(models.MessageTypeRegister)}, &p1))
		l.Dispatch(ctx, encode(&models.ParticipantRegister{MessageHeader: models.NewHeader(models.MessageTypeRegister)}, &p1))

		Expect(handler.received()).To(HaveLen(2))
	})

	It("receives messages from the bus once started", func() {
		Expect(l.Start()).To(Succeed())
		Expect(l.Start()).To(Succeed())
		DeferCleanup(l.Stop)

		Expect(bus.Publish(ctx, "acm.runtime", encode(&models.ParticipantStatus{MessageHeader: models.NewHeader(models.MessageTypeStatus)}, &p1))).To(Succeed())

		Eventually(handler.received).Should(ConsistOf(models.MessageTypeStatus))
		Eventually(observer.observed).Should(ConsistOf(p1))
	})
})
