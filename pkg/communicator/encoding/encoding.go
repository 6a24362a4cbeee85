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

// Package encoding is the JSON wire format of ACM messages.
// Decoding looks at the messageType discriminator first and only then
// unmarshals into the matching variant.
package encoding

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

// ErrUnknownMessageType is returned for discriminators this runtime does not know.
var ErrUnknownMessageType = errors.New("unknown message type")

type envelope struct {
	MessageType models.MessageType `json:"messageType"`
}

func Encode(msg models.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("cannot encode nil message")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Header().MessageType, err)
	}

	return data, nil
}

// DecodeType reads only the discriminator.
func DecodeType(payload []byte) (models.MessageType, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("failed to decode message type: %w", err)
	}

	if env.MessageType == "" {
		return "", errors.New("message has no messageType")
	}

	return env.MessageType, nil
}

// newVariant returns an empty value of the struct behind messageType.
func newVariant(messageType models.MessageType) (models.Message, error) {
	switch messageType {
	case models.MessageTypeRegister:
		return &models.ParticipantRegister{}, nil
	case models.MessageTypeRegisterAck:
		return &models.ParticipantRegisterAck{}, nil
	case models.MessageTypeDeregister:
		return &models.ParticipantDeregister{}, nil
	case models.MessageTypeDeregisterAck:
		return &models.ParticipantDeregisterAck{}, nil
	case models.MessageTypeStatus:
		return &models.ParticipantStatus{}, nil
	case models.MessageTypeStatusReq:
		return &models.ParticipantStatusReq{}, nil
	case models.MessageTypeUpdate:
		return &models.ControlLoopUpdate{}, nil
	case models.MessageTypeStateChange:
		return &models.ControlLoopStateChange{}, nil
	case models.MessageTypeUpdateAck, models.MessageTypeStateChangeAck:
		return &models.ControlLoopAck{}, nil
	case models.MessageTypeParticipantUpdate:
		return &models.ParticipantUpdate{}, nil
	case models.MessageTypeParticipantUpdateAck:
		return &models.ParticipantUpdateAck{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, messageType)
	}
}

// Decode returns a pointer to the variant named by the payload's messageType.
func Decode(payload []byte) (models.Message, error) {
	messageType, err := DecodeType(payload)
	if err != nil {
		return nil, err
	}

	msg, err := newVariant(messageType)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", messageType, err)
	}

	return msg, nil
}
