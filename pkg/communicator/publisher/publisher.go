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

// Package publisher sends runtime commands and acknowledgements to participants.
package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/communicator/encoding"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/transport"
)

// Publisher writes every message to a single participant topic.
// Participants filter on the participantId in the header; nil means broadcast.
type Publisher struct {
	bus   transport.Bus
	log   *zap.SugaredLogger
	topic string
}

func New(bus transport.Bus, topic string, log *zap.SugaredLogger) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Publisher{bus: bus, topic: topic, log: log}
}

func (p *Publisher) publish(ctx context.Context, msg models.Message) (uuid.UUID, error) {
	header := msg.Header()

	data, err := encoding.Encode(msg)
	if err != nil {
		return uuid.Nil, err
	}

	if err := p.bus.Publish(ctx, p.topic, data); err != nil {
		metrics.IncErrorCountAndLog(metrics.ComponentPublisher, string(header.MessageType), err, p.log)

		return uuid.Nil, fmt.Errorf("failed to publish %s: %w", header.MessageType, err)
	}

	metrics.IncMessagesPublished(string(header.MessageType))
	p.log.Debugf("Published %s %s (instance %q, participant %v)", header.MessageType, header.MessageID, header.InstanceID, header.ParticipantID)

	return header.MessageID, nil
}

func addressed(messageType models.MessageType, participant *models.Identifier) models.MessageHeader {
	header := models.NewHeader(messageType)
	if participant != nil {
		p := *participant
		header.ParticipantID = &p
	}

	return header
}

// SendUpdate asks participants to deploy their elements of instance. With a nil
// participant every element is included and the message is broadcast.
func (p *Publisher) SendUpdate(ctx context.Context, instance *models.Instance, participant *models.Identifier) (uuid.UUID, error) {
	msg := &models.ControlLoopUpdate{MessageHeader: addressed(models.MessageTypeUpdate, participant)}
	msg.InstanceID = instance.ID

	for _, el := range instance.Elements {
		if participant != nil && el.ParticipantID != *participant {
			continue
		}

		msg.Elements = append(msg.Elements, models.ElementDeploy{
			ElementID:    el.ID,
			Definition:   el.Definition,
			OrderedState: el.OrderedState,
			Description:  el.Description,
		})
	}

	return p.publish(ctx, msg)
}

// SendStateChange asks participants to move instance from its transitional state to target.
func (p *Publisher) SendStateChange(ctx context.Context, instance *models.Instance, target models.State, participant *models.Identifier) (uuid.UUID, error) {
	msg := &models.ControlLoopStateChange{
		MessageHeader: addressed(models.MessageTypeStateChange, participant),
		OrderedState:  instance.OrderedState,
		CurrentState:  instance.State,
		TargetState:   target,
	}
	msg.InstanceID = instance.ID

	return p.publish(ctx, msg)
}

func (p *Publisher) SendStatusReq(ctx context.Context, participant models.Identifier) error {
	_, err := p.publish(ctx, &models.ParticipantStatusReq{MessageHeader: addressed(models.MessageTypeStatusReq, &participant)})

	return err
}

func (p *Publisher) SendRegisterAck(ctx context.Context, participant models.Identifier, responseTo uuid.UUID) error {
	_, err := p.publish(ctx, &models.ParticipantRegisterAck{
		MessageHeader: addressed(models.MessageTypeRegisterAck, &participant),
		AckHeader:     models.AckHeader{ResponseTo: responseTo, Result: models.AckResultSuccess},
	})

	return err
}

func (p *Publisher) SendDeregisterAck(ctx context.Context, participant models.Identifier, responseTo uuid.UUID) error {
	_, err := p.publish(ctx, &models.ParticipantDeregisterAck{
		MessageHeader: addressed(models.MessageTypeDeregisterAck, &participant),
		AckHeader:     models.AckHeader{ResponseTo: responseTo, Result: models.AckResultSuccess},
	})

	return err
}

// SendParticipantUpdate distributes the definitions of participantType to participant.
func (p *Publisher) SendParticipantUpdate(ctx context.Context, participant models.Identifier, participantType models.Identifier, definitions []models.ElementDefinition) (uuid.UUID, error) {
	msg := &models.ParticipantUpdate{
		MessageHeader: addressed(models.MessageTypeParticipantUpdate, &participant),
		Definitions:   definitions,
	}
	msg.ParticipantType = &participantType

	return p.publish(ctx, msg)
}
