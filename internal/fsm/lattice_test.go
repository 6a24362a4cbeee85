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

package fsm_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

var _ = Describe("Lattice", func() {
	DescribeTable("NextTransition",
		func(state models.State, ordered models.OrderedState, want models.State, wantOK bool) {
			next, ok := fsm.NextTransition(state, ordered)
			Expect(ok).To(Equal(wantOK))
			Expect(next).To(Equal(want))
		},
		Entry("deploy toward passive", models.StateUninitialised, models.OrderedStatePassive, models.StateUninitialised2Passive, true),
		Entry("deploy toward running", models.StateUninitialised, models.OrderedStateRunning, models.StateUninitialised2Passive, true),
		Entry("start", models.StatePassive, models.OrderedStateRunning, models.StatePassive2Running, true),
		Entry("undeploy", models.StatePassive, models.OrderedStateUninitialised, models.StatePassive2Uninitialised, true),
		Entry("stop toward passive", models.StateRunning, models.OrderedStatePassive, models.StateRunning2Passive, true),
		Entry("stop toward uninitialised", models.StateRunning, models.OrderedStateUninitialised, models.StateRunning2Passive, true),
		Entry("already there", models.StatePassive, models.OrderedStatePassive, models.State(""), false),
		Entry("in flight", models.StatePassive2Running, models.OrderedStateUninitialised, models.State(""), false),
	)

	DescribeTable("Destination",
		func(transitional, want models.State) {
			dst, err := fsm.Destination(transitional)
			Expect(err).NotTo(HaveOccurred())
			Expect(dst).To(Equal(want))
		},
		Entry(nil, models.StateUninitialised2Passive, models.StatePassive),
		Entry(nil, models.StatePassive2Running, models.StateRunning),
		Entry(nil, models.StateRunning2Passive, models.StatePassive),
		Entry(nil, models.StatePassive2Uninitialised, models.StateUninitialised),
	)

	It("refuses a destination for terminal states", func() {
		_, err := fsm.Destination(models.StateRunning)
		Expect(err).To(HaveOccurred())
	})

	It("classifies states", func() {
		Expect(fsm.IsTransitional(models.StateRunning2Passive)).To(BeTrue())
		Expect(fsm.IsTransitional(models.StateRunning)).To(BeFalse())
		Expect(fsm.IsTerminal(models.StateRunning)).To(BeTrue())
		Expect(fsm.IsTerminal(models.StateUnknown)).To(BeFalse())
	})

	It("walks from running down to uninitialised through passive", func() {
		path, err := fsm.Path(models.StateRunning, models.OrderedStateUninitialised)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal([]models.State{models.StateRunning2Passive, models.StatePassive2Uninitialised}))
	})

	It("finishes an in-flight transition before reversing", func() {
		path, err := fsm.Path(models.StatePassive2Running, models.OrderedStatePassive)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal([]models.State{models.StatePassive2Running, models.StateRunning2Passive}))
	})

	It("rejects events that do not apply", func() {
		l := fsm.New(models.StatePassive)
		Expect(l.Can(fsm.EventStop)).To(BeFalse())

		_, err := l.Fire(context.Background(), fsm.EventStop)
		Expect(err).To(HaveOccurred())
		Expect(l.Current()).To(Equal(models.StatePassive))

		next, err := l.Fire(context.Background(), fsm.EventStart)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(models.StatePassive2Running))
	})
})
