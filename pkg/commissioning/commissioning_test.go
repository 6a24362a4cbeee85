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

package commissioning_test

import (
	"context"
	"time"

	"github.com/h2non/gock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/commissioning"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

var (
	k8sType = models.Identifier{Name: "org.onap.policy.clamp.acm.K8SParticipant", Version: "2.3.4"}

	pmshDefinitions = []models.ElementDefinition{
		{ID: models.Identifier{Name: "org.onap.domain.database.PMSH_K8SMicroserviceControlLoopElement", Version: "1.2.3"}, Description: "helm chart"},
		{ID: models.Identifier{Name: "org.onap.domain.database.Http_PMSHMicroserviceControlLoopElement", Version: "1.0.0"}},
	}
)

var _ = Describe("ValidateDefinitions", func() {
	It("accepts named definitions with semver versions", func() {
		Expect(commissioning.ValidateDefinitions(pmshDefinitions)).To(Succeed())
		Expect(commissioning.ValidateDefinitions(nil)).To(Succeed())
	})

	It("rejects unnamed definitions and bad versions", func() {
		err := commissioning.ValidateDefinitions([]models.ElementDefinition{
			{ID: models.Identifier{Name: "", Version: "1.0.0"}},
			{ID: models.Identifier{Name: "element", Version: "latest"}},
		})

		Expect(err).To(MatchError(commissioning.ErrInvalidDefinition))
		Expect(err.Error()).To(ContainSubstring("definition 0 has no name"))
		Expect(err.Error()).To(ContainSubstring("latest"))
	})
})

var _ = Describe("StaticProvider", func() {
	It("returns the definitions of a known type and nothing for others", func() {
		provider, err := commissioning.NewStaticProvider(map[models.Identifier][]models.ElementDefinition{k8sType: pmshDefinitions})
		Expect(err).NotTo(HaveOccurred())

		defs, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).NotTo(HaveOccurred())
		Expect(defs).To(Equal(pmshDefinitions))

		defs, err = provider.GetElementDefinitions(context.Background(), models.Identifier{Name: "other", Version: "1.0.0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(defs).To(BeEmpty())
	})

	It("does not share its slices with callers", func() {
		provider, err := commissioning.NewStaticProvider(map[models.Identifier][]models.ElementDefinition{k8sType: pmshDefinitions})
		Expect(err).NotTo(HaveOccurred())

		defs, _ := provider.GetElementDefinitions(context.Background(), k8sType)
		defs[0].Description = "changed"

		again, _ := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(again[0].Description).To(Equal("helm chart"))
	})

	It("refuses invalid definitions", func() {
		_, err := commissioning.NewStaticProvider(map[models.Identifier][]models.ElementDefinition{
			k8sType: {{ID: models.Identifier{Name: "element", Version: "one"}}},
		})
		Expect(err).To(MatchError(commissioning.ErrInvalidDefinition))
	})
})

var _ = Describe("HTTPProvider", func() {
	const baseURL = "http://commissioning.acm.local:6969/onap/policy/clamp/acm/v2"

	var provider *commissioning.HTTPProvider

	BeforeEach(func() {
		provider = commissioning.NewHTTPProvider(commissioning.HTTPConfig{
			BaseURL:      baseURL + "/",
			RetryMax:     1,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: 5 * time.Millisecond,
		}, zaptest.NewLogger(GinkgoT()).Sugar())

		gock.InterceptClient(provider.HTTPClient())
	})

	AfterEach(func() {
		gock.RestoreClient(provider.HTTPClient())
		gock.Off()
	})

	It("queries the elements endpoint with the participant type", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			MatchParam("participantType", "K8SParticipant:2.3.4").
			Reply(200).
			JSON(pmshDefinitions)

		defs, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).NotTo(HaveOccurred())
		Expect(defs).To(Equal(pmshDefinitions))
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("treats 404 as no definitions", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(404)

		defs, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).NotTo(HaveOccurred())
		Expect(defs).To(BeEmpty())
	})

	It("retries server errors and then gives up", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Times(2).
			Reply(503)

		_, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).To(HaveOccurred())
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("recovers when a retry succeeds", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(502)
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(200).
			JSON(pmshDefinitions)

		defs, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).NotTo(HaveOccurred())
		Expect(defs).To(HaveLen(2))
	})

	It("reports client errors without retrying", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(400).
			BodyString("participantType is malformed")

		_, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).To(MatchError(ContainSubstring("participantType is malformed")))
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("rejects definitions without semver versions", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(200).
			JSON([]models.ElementDefinition{{ID: models.Identifier{Name: "element", Version: "v-next"}}})

		_, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).To(MatchError(commissioning.ErrInvalidDefinition))
	})

	It("rejects malformed bodies", func() {
		gock.New(baseURL).
			Get(commissioning.ElementsEndpoint).
			Reply(200).
			BodyString("{not json")

		_, err := provider.GetElementDefinitions(context.Background(), k8sType)
		Expect(err).To(MatchError(ContainSubstring("failed to decode")))
	})
})
