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
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/supervision"
)

var _ = Describe("Tracker", func() {
	var (
		tracker *supervision.Tracker
		p1      models.Identifier
		p2      models.Identifier
	)

	BeforeEach(func() {
		tracker = supervision.NewTracker(time.Minute)
		p1 = models.Identifier{Name: "k8s-ppnt", Version: "1.0.0"}
		p2 = models.Identifier{Name: "http-ppnt", Version: "1.0.0"}
	})

	It("accepts the first ack of each pending participant and returns the target", func() {
		id := uuid.New()
		tracker.Issue(id, "i1", models.MessageTypeUpdate, models.StatePassive, []models.Identifier{p1, p2})
		Expect(tracker.Outstanding("i1")).To(Equal(1))

		target, outcome := tracker.Accept(id, models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))
		Expect(target).To(Equal(models.StatePassive))

		_, outcome = tracker.Accept(id, models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeDuplicate))

		_, outcome = tracker.Accept(id, models.MessageTypeUpdateAck, "i1", p2)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))
		Expect(tracker.Outstanding("i1")).To(Equal(0))
	})

	It("reports acks for unknown ids", func() {
		_, outcome := tracker.Accept(uuid.New(), models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeUnknown))
	})

	It("rejects acks that do not fit the command", func() {
		id := uuid.New()
		tracker.Issue(id, "i1", models.MessageTypeStateChange, models.StateRunning, []models.Identifier{p1})

		_, outcome := tracker.Accept(id, models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeMismatch))

		_, outcome = tracker.Accept(id, models.MessageTypeStateChangeAck, "i2", p1)
		Expect(outcome).To(Equal(supervision.OutcomeMismatch))

		_, outcome = tracker.Accept(id, models.MessageTypeStateChangeAck, "i1", p2)
		Expect(outcome).To(Equal(supervision.OutcomeMismatch))

		_, outcome = tracker.Accept(id, models.MessageTypeStatus, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeMismatch))
	})

	It("supersedes only the participants a newer command addresses", func() {
		broadcast := uuid.New()
		tracker.Issue(broadcast, "i1", models.MessageTypeUpdate, models.StatePassive, []models.Identifier{p1, p2})

		retry := uuid.New()
		tracker.Issue(retry, "i1", models.MessageTypeUpdate, models.StatePassive, []models.Identifier{p2})

		_, outcome := tracker.Accept(broadcast, models.MessageTypeUpdateAck, "i1", p2)
		Expect(outcome).To(Equal(supervision.OutcomeSuperseded))

		_, outcome = tracker.Accept(broadcast, models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))

		_, outcome = tracker.Accept(retry, models.MessageTypeUpdateAck, "i1", p2)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))
	})

	It("does not let commands of other instances or kinds supersede each other", func() {
		first := uuid.New()
		tracker.Issue(first, "i1", models.MessageTypeUpdate, models.StatePassive, []models.Identifier{p1})
		tracker.Issue(uuid.New(), "i2", models.MessageTypeUpdate, models.StatePassive, []models.Identifier{p1})
		tracker.Issue(uuid.New(), "i1", models.MessageTypeStateChange, models.StateRunning, []models.Identifier{p1})

		_, outcome := tracker.Accept(first, models.MessageTypeUpdateAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))
	})

	It("stops waiting once the instance is closed", func() {
		id := uuid.New()
		tracker.Issue(id, "i1", models.MessageTypeStateChange, models.StatePassive, []models.Identifier{p1})
		tracker.Close("i1")

		Expect(tracker.Outstanding("i1")).To(Equal(0))

		_, outcome := tracker.Accept(id, models.MessageTypeStateChangeAck, "i1", p1)
		Expect(outcome).To(Equal(supervision.OutcomeSuperseded))
	})

	It("tracks participant updates without an instance", func() {
		id := uuid.New()
		tracker.Issue(id, "", models.MessageTypeParticipantUpdate, "", []models.Identifier{p1})

		_, outcome := tracker.Accept(id, models.MessageTypeParticipantUpdateAck, "", p1)
		Expect(outcome).To(Equal(supervision.OutcomeAccepted))
	})

	It("names every outcome", func() {
		Expect(supervision.OutcomeAccepted.String()).To(Equal("accepted"))
		Expect(supervision.OutcomeSuperseded.String()).To(Equal("superseded"))
		Expect(supervision.Outcome(42).String()).To(Equal("invalid"))
	})
})
