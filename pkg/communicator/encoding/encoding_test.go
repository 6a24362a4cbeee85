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

package encoding_test

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/encoding"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

var _ = Describe("Encoding", func() {
	participant := models.Identifier{Name: "k8s", Version: "1.0.0"}

	It("decodes an ack into its variant with the embedded headers flattened", func() {
		ack := &models.ControlLoopAck{
			MessageHeader: models.NewHeader(models.MessageTypeStateChangeAck),
			AckHeader: models.AckHeader{
				ResponseTo: uuid.New(),
				Result:     models.AckResultSuccess,
			},
			ElementResults: map[string]models.ElementAck{
				"e1": {State: models.StateRunning, Result: models.AckResultSuccess},
			},
		}
		ack.ParticipantID = &participant
		ack.InstanceID = "i1"

		data, err := encoding.Encode(ack)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"responseTo"`))
		Expect(string(data)).To(ContainSubstring(`"messageType":"CONTROL_LOOP_STATE_CHANGE_ACK"`))

		decoded, err := encoding.Decode(data)
		Expect(err).NotTo(HaveOccurred())

		got, ok := decoded.(*models.ControlLoopAck)
		Expect(ok).To(BeTrue())
		Expect(got.ResponseTo).To(Equal(ack.ResponseTo))
		Expect(*got.ParticipantID).To(Equal(participant))
		Expect(got.ElementResults["e1"].State).To(Equal(models.StateRunning))
	})

	It("reads the discriminator without knowing the variant", func() {
		messageType, err := encoding.DecodeType([]byte(`{"messageType":"PARTICIPANT_STATUS","whatever":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(messageType).To(Equal(models.MessageTypeStatus))
	})

	DescribeTable("rejects bad payloads",
		func(payload string) {
			_, err := encoding.Decode([]byte(payload))
			Expect(err).To(HaveOccurred())
		},
		Entry("not json", "garbage"),
		Entry("no discriminator", `{"participantId":{"name":"a","version":"1"}}`),
		Entry("wrong field type", `{"messageType":"PARTICIPANT_STATUS","state":42}`),
	)

	It("flags unknown message types", func() {
		_, err := encoding.Decode([]byte(`{"messageType":"PARTICIPANT_RESTART"}`))
		Expect(err).To(MatchError(encoding.ErrUnknownMessageType))
	})
})
