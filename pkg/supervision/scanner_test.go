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

package supervision_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/supervision"
)

var _ = Describe("Scanner", func() {
	var (
		f  *fixture
		p1 *models.Participant
		p2 *models.Participant
	)

	BeforeEach(func() {
		f = newFixture(supervision.Config{MaxRetryCount: 2, MaxStatusWait: time.Hour})
		p1 = newParticipant("k8s-ppnt", k8sType)
		p2 = newParticipant("http-ppnt", httpType)
		f.addParticipant(p1)
		f.addParticipant(p2)
	})

	Describe("instances", func() {
		It("sends exactly one command when a transition starts", func() {
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID, p2.ID))

			f.scan(true)

			commands := f.publisher.commands()
			Expect(commands).To(HaveLen(1))
			Expect(commands[0].Type).To(Equal(models.MessageTypeUpdate))
			Expect(f.instance("i1").State).To(Equal(models.StateUninitialised2Passive))
		})

		It("leaves instances in their ordered state alone", func() {
			f.addInstance(newInstance("i1", models.StateRunning, models.OrderedStateRunning, p1.ID))

			for range 3 {
				f.scan(true)
			}

			Expect(f.publisher.all()).To(BeEmpty())
			Expect(f.instance("i1").State).To(Equal(models.StateRunning))
		})

		It("bounds retries and then faults the instance", func() {
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID))

			for range 8 {
				f.scan(true)
			}

			Expect(f.publisher.commands()).To(HaveLen(1 + 2))
			Expect(f.core.InstanceCounter().IsFault("i1")).To(BeTrue())
			Expect(f.core.InstanceCounter().GetCounter("i1")).To(Equal(2))
			Expect(f.instance("i1").State).To(Equal(models.StateUninitialised2Passive))
		})

		It("re-sends only to participants that have not arrived", func() {
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID, p2.ID))

			f.scan(true)
			broadcast := f.publisher.commands()[0]
			Expect(f.handler.HandleControlLoopAck(f.ctx, ackFor(broadcast, p2.ID, f.instance("i1"), models.AckResultSuccess))).To(Succeed())

			f.scan(true)

			commands := f.publisher.commands()
			Expect(commands).To(HaveLen(2))
			Expect(commands[1].Participant).NotTo(BeNil())
			Expect(*commands[1].Participant).To(Equal(p1.ID))
		})

		It("waits MaxWait before re-sending", func() {
			f = newFixture(supervision.Config{MaxRetryCount: 2, MaxWait: time.Hour, MaxStatusWait: time.Hour})
			f.addParticipant(p1)
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID))

			for range 3 {
				f.scan(true)
			}

			Expect(f.publisher.commands()).To(HaveLen(1))
			Expect(f.core.InstanceCounter().GetCounter("i1")).To(BeZero())
		})

		It("does not spend retry budget without counter check", func() {
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID))

			for range 4 {
				f.scan(false)
			}

			Expect(f.publisher.commands()).To(HaveLen(1))
			Expect(f.core.InstanceCounter().GetCounter("i1")).To(BeZero())
			Expect(f.core.InstanceCounter().IsFault("i1")).To(BeFalse())
		})

		It("settles instances whose elements already arrived", func() {
			instance := newInstance("i1", models.StateUninitialised2Passive, models.OrderedStatePassive, p1.ID)
			for _, el := range instance.Elements {
				el.State = models.StatePassive
			}
			f.addInstance(instance)

			f.scan(false)

			Expect(f.instance("i1").State).To(Equal(models.StatePassive))
			Expect(f.publisher.all()).To(BeEmpty())
		})

		It("clears the budget of an instance that converged", func() {
			f.addInstance(newInstance("i1", models.StateUninitialised, models.OrderedStatePassive, p1.ID))

			f.scan(true)
			f.scan(true)
			Expect(f.core.InstanceCounter().GetCounter("i1")).To(Equal(1))

			f.cooperate(p1.ID)
			f.scan(true)

			Expect(f.instance("i1").State).To(Equal(models.StatePassive))
			Expect(f.core.InstanceCounter().GetCounter("i1")).To(BeZero())
		})

		DescribeTable("converges with cooperating participants",
			func(start models.State, ordered models.OrderedState) {
				f.addInstance(newInstance("i1", start, ordered, p1.ID, p2.ID))

				path, err := fsm.Path(start, ordered)
				Expect(err).NotTo(HaveOccurred())

				f.scan(true)
				f.cooperate(p1.ID, p2.ID)

				instance := f.instance("i1")
				Expect(instance.State).To(Equal(ordered.AsState()))
				Expect(instance.AllElementsIn(ordered.AsState())).To(BeTrue())
				Expect(f.publisher.commands()).To(HaveLen(len(path)))
			},
			Entry("deploy", models.StateUninitialised, models.OrderedStatePassive),
			Entry("deploy and start", models.StateUninitialised, models.OrderedStateRunning),
			Entry("start", models.StatePassive, models.OrderedStateRunning),
			Entry("stop", models.StateRunning, models.OrderedStatePassive),
			Entry("stop and undeploy", models.StateRunning, models.OrderedStateUninitialised),
			Entry("undeploy", models.StatePassive, models.OrderedStateUninitialised),
		)

		It("returns the context error when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(f.scanner.Run(ctx, true)).To(MatchError(context.Canceled))
		})
	})

	Describe("participants", func() {
		BeforeEach(func() {
			f = newFixture(supervision.Config{MaxRetryCount: 2, MaxStatusWait: 0})
			f.addParticipant(p1)
		})

		It("asks silent participants for their status and eventually marks them off-line", func() {
			f.scan(true)
			Expect(f.publisher.ofType(models.MessageTypeStatusReq)).To(HaveLen(1))
			Expect(f.participant(p1.ID).HealthStatus).To(Equal(models.HealthStatusNotHealthy))

			f.scan(true)
			Expect(f.publisher.ofType(models.MessageTypeStatusReq)).To(HaveLen(2))

			f.scan(true)
			stored := f.participant(p1.ID)
			Expect(stored.State).To(Equal(models.ParticipantStateOffLine))
			Expect(stored.HealthStatus).To(Equal(models.HealthStatusOffLine))
			Expect(f.core.ParticipantCounter().IsFault(p1.ID)).To(BeTrue())

			f.scan(true)
			Expect(f.publisher.ofType(models.MessageTypeStatusReq)).To(HaveLen(2))
		})

		It("starts over once the participant reports", func() {
			for range 3 {
				f.scan(true)
			}

			f.scanner.HandleParticipantStatus(p1.ID)
			Expect(f.core.ParticipantCounter().IsFault(p1.ID)).To(BeFalse())

			f.scan(true)
			Expect(f.publisher.ofType(models.MessageTypeStatusReq)).To(HaveLen(3))
		})

		It("skips participants without counter check", func() {
			f.scan(false)
			Expect(f.publisher.all()).To(BeEmpty())
		})
	})
})
