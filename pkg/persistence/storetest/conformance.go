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

// Package storetest holds the behaviour every persistence backend must share.
package storetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

var (
	participantType = models.Identifier{Name: "org.onap.policy.clamp.acm.K8SParticipant", Version: "2.3.4"}
	otherType       = models.Identifier{Name: "org.onap.policy.clamp.acm.HttpParticipant", Version: "1.0.0"}
)

// NewInstance builds an instance with one element per participant.
func NewInstance(id string, participants ...models.Identifier) *models.Instance {
	instance := &models.Instance{
		ID:           id,
		Name:         "composition-" + id,
		Version:      "1.0.0",
		OrderedState: models.OrderedStatePassive,
		State:        models.StateUninitialised,
		Elements:     make(map[string]*models.Element),
	}

	for i, p := range participants {
		elementID := id + "-e" + string(rune('0'+i))
		instance.Elements[elementID] = &models.Element{
			ID:              elementID,
			Definition:      models.Identifier{Name: "element", Version: "1.0.0"},
			ParticipantID:   p,
			ParticipantType: participantType,
			OrderedState:    models.OrderedStatePassive,
			State:           models.StateUninitialised,
		}
	}

	return instance
}

// NewParticipant builds a healthy participant of the given type.
func NewParticipant(name string, pType models.Identifier) *models.Participant {
	return &models.Participant{
		ID:              models.Identifier{Name: name, Version: "1.0.0"},
		ParticipantType: pType,
		State:           models.ParticipantStateActive,
		HealthStatus:    models.HealthStatusHealthy,
		LastContact:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// DescribeStore registers the shared specs. newStore is called before every spec.
func DescribeStore(newStore func() persistence.Store) {
	var (
		ctx   context.Context
		store persistence.Store
		p1    = models.Identifier{Name: "p1", Version: "1.0.0"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		DeferCleanup(func() {
			Expect(store.Close()).To(Succeed())
		})
	})

	Context("instances", func() {
		It("returns ErrNotFound for unknown ids", func() {
			_, err := store.GetInstance(ctx, "missing")
			Expect(err).To(MatchError(persistence.ErrNotFound))
		})

		It("returns an empty list, not an error, when nothing matches", func() {
			instances, err := store.GetInstances(ctx, persistence.InstanceFilter{Name: "nope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(instances).To(BeEmpty())
		})

		It("stores and overwrites instances", func() {
			instance := NewInstance("i1", p1)
			Expect(store.SaveInstance(ctx, instance)).To(Succeed())

			got, err := store.GetInstance(ctx, "i1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(models.StateUninitialised))
			Expect(got.Elements).To(HaveLen(1))
			Expect(got.Elements["i1-e0"].ParticipantID).To(Equal(p1))

			instance.State = models.StateUninitialised2Passive
			Expect(store.SaveInstance(ctx, instance)).To(Succeed())

			got, err = store.GetInstance(ctx, "i1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(models.StateUninitialised2Passive))

			all, err := store.GetInstances(ctx, persistence.InstanceFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("does not share memory with callers", func() {
			Expect(store.SaveInstance(ctx, NewInstance("i1", p1))).To(Succeed())

			got, err := store.GetInstance(ctx, "i1")
			Expect(err).NotTo(HaveOccurred())
			got.Elements["i1-e0"].State = models.StateRunning

			again, err := store.GetInstance(ctx, "i1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Elements["i1-e0"].State).To(Equal(models.StateUninitialised))
		})

		It("filters and sorts", func() {
			b := NewInstance("b", p1)
			a := NewInstance("a", p1)
			a.Version = "2.0.0"

			Expect(store.SaveInstance(ctx, b)).To(Succeed())
			Expect(store.SaveInstance(ctx, a)).To(Succeed())

			all, err := store.GetInstances(ctx, persistence.InstanceFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].ID).To(Equal("a"))
			Expect(all[1].ID).To(Equal("b"))

			byVersion, err := store.GetInstances(ctx, persistence.InstanceFilter{Version: "2.0.0"})
			Expect(err).NotTo(HaveOccurred())
			Expect(byVersion).To(HaveLen(1))
			Expect(byVersion[0].ID).To(Equal("a"))

			byID, err := store.GetInstances(ctx, persistence.InstanceFilter{ID: "b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(byID).To(HaveLen(1))
			Expect(byID[0].Name).To(Equal("composition-b"))
		})

		It("deletes idempotently", func() {
			Expect(store.SaveInstance(ctx, NewInstance("i1", p1))).To(Succeed())
			Expect(store.DeleteInstance(ctx, "i1")).To(Succeed())
			Expect(store.DeleteInstance(ctx, "i1")).To(Succeed())

			_, err := store.GetInstance(ctx, "i1")
			Expect(err).To(MatchError(persistence.ErrNotFound))
		})
	})

	Context("participants", func() {
		It("returns ErrNotFound for unknown ids", func() {
			_, err := store.GetParticipant(ctx, p1)
			Expect(err).To(MatchError(persistence.ErrNotFound))
		})

		It("stores participants keyed by name and version", func() {
			participant := NewParticipant("p1", participantType)
			Expect(store.SaveParticipant(ctx, participant)).To(Succeed())

			got, err := store.GetParticipant(ctx, p1)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HealthStatus).To(Equal(models.HealthStatusHealthy))
			Expect(got.ParticipantType).To(Equal(participantType))
			Expect(got.LastContact.Equal(participant.LastContact)).To(BeTrue())

			participant.HealthStatus = models.HealthStatusNotHealthy
			Expect(store.SaveParticipant(ctx, participant)).To(Succeed())

			got, err = store.GetParticipant(ctx, p1)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HealthStatus).To(Equal(models.HealthStatusNotHealthy))
		})

		It("filters by participant type", func() {
			Expect(store.SaveParticipant(ctx, NewParticipant("p1", participantType))).To(Succeed())
			Expect(store.SaveParticipant(ctx, NewParticipant("p2", participantType))).To(Succeed())
			Expect(store.SaveParticipant(ctx, NewParticipant("p3", otherType))).To(Succeed())

			ofType, err := store.GetParticipants(ctx, persistence.ParticipantFilter{ParticipantType: &participantType})
			Expect(err).NotTo(HaveOccurred())
			Expect(ofType).To(HaveLen(2))
			Expect(ofType[0].ID.Name).To(Equal("p1"))
			Expect(ofType[1].ID.Name).To(Equal("p2"))

			byName, err := store.GetParticipants(ctx, persistence.ParticipantFilter{Name: "p3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(byName).To(HaveLen(1))
		})

		It("deletes idempotently", func() {
			Expect(store.SaveParticipant(ctx, NewParticipant("p1", participantType))).To(Succeed())
			Expect(store.DeleteParticipant(ctx, p1)).To(Succeed())
			Expect(store.DeleteParticipant(ctx, p1)).To(Succeed())

			all, err := store.GetParticipants(ctx, persistence.ParticipantFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})
}
