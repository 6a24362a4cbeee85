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

package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the discriminator every message on the bus carries.
type MessageType string

const (
	MessageTypeRegister             MessageType = "PARTICIPANT_REGISTER"
	MessageTypeRegisterAck          MessageType = "PARTICIPANT_REGISTER_ACK"
	MessageTypeDeregister           MessageType = "PARTICIPANT_DEREGISTER"
	MessageTypeDeregisterAck        MessageType = "PARTICIPANT_DEREGISTER_ACK"
	MessageTypeStatus               MessageType = "PARTICIPANT_STATUS"
	MessageTypeStatusReq            MessageType = "PARTICIPANT_STATUS_REQ"
	MessageTypeUpdate               MessageType = "CONTROL_LOOP_UPDATE"
	MessageTypeUpdateAck            MessageType = "CONTROL_LOOP_UPDATE_ACK"
	MessageTypeStateChange          MessageType = "CONTROL_LOOP_STATE_CHANGE"
	MessageTypeStateChangeAck       MessageType = "CONTROL_LOOP_STATE_CHANGE_ACK"
	MessageTypeParticipantUpdate    MessageType = "PARTICIPANT_UPDATE"
	MessageTypeParticipantUpdateAck MessageType = "PARTICIPANT_UPDATE_ACK"
)

// FromParticipant reports whether the runtime expects to receive this type.
// Everything else on the runtime topic is an echo or addressed to someone else.
func (t MessageType) FromParticipant() bool {
	switch t {
	case MessageTypeRegister, MessageTypeDeregister, MessageTypeStatus,
		MessageTypeUpdateAck, MessageTypeStateChangeAck, MessageTypeParticipantUpdateAck:
		return true
	default:
		return false
	}
}

// MessageHeader is shared by all messages.
// A nil ParticipantID on an outbound message means broadcast.
type MessageHeader struct {
	MessageType     MessageType `json:"messageType"`
	MessageID       uuid.UUID   `json:"messageId"`
	Timestamp       time.Time   `json:"timestamp"`
	ParticipantID   *Identifier `json:"participantId,omitempty"`
	ParticipantType *Identifier `json:"participantType,omitempty"`
	InstanceID      string      `json:"instanceId,omitempty"`
}

// NewHeader returns a header with a fresh message id.
func NewHeader(messageType MessageType) MessageHeader {
	return MessageHeader{
		MessageType: messageType,
		MessageID:   uuid.New(),
		Timestamp:   time.Now().UTC(),
	}
}

// Header lets every message embedding MessageHeader satisfy Message.
func (h *MessageHeader) Header() *MessageHeader {
	return h
}

// Message is implemented by every variant below.
type Message interface {
	Header() *MessageHeader
}

// AckHeader is embedded by every acknowledgement. ResponseTo is the MessageID
// of the command being acknowledged.
type AckHeader struct {
	ResponseTo uuid.UUID `json:"responseTo"`
	Result     AckResult `json:"result"`
	Message    string    `json:"message,omitempty"`
}

// Succeeded reports whether the ack carries a SUCCESS result.
func (a AckHeader) Succeeded() bool {
	return a.Result == AckResultSuccess
}

type ParticipantRegister struct {
	MessageHeader
	Description string `json:"description,omitempty"`
}

type ParticipantRegisterAck struct {
	MessageHeader
	AckHeader
}

type ParticipantDeregister struct {
	MessageHeader
}

type ParticipantDeregisterAck struct {
	MessageHeader
	AckHeader
}

// ParticipantStatus is sent periodically by participants and in response to STATUS_REQ.
type ParticipantStatus struct {
	MessageHeader
	State             ParticipantState        `json:"state"`
	HealthStatus      ParticipantHealthStatus `json:"healthStatus"`
	Description       string                  `json:"description,omitempty"`
	Statistics        *ParticipantStatistics  `json:"statistics,omitempty"`
	ElementStatistics []ElementStatistics     `json:"elementStatistics,omitempty"`
}

type ParticipantStatusReq struct {
	MessageHeader
}

// ElementDeploy describes one element a participant is asked to deploy.
type ElementDeploy struct {
	ElementID    string       `json:"elementId"`
	Definition   Identifier   `json:"definition"`
	OrderedState OrderedState `json:"orderedState"`
	Description  string       `json:"description,omitempty"`
}

// ControlLoopUpdate asks a participant to deploy its elements of an instance.
type ControlLoopUpdate struct {
	MessageHeader
	Elements []ElementDeploy `json:"elements"`
}

// ControlLoopStateChange asks a participant to move its elements of an instance.
type ControlLoopStateChange struct {
	MessageHeader
	OrderedState OrderedState `json:"orderedState"`
	CurrentState State        `json:"currentState"`
	TargetState  State        `json:"targetState"`
}

// ElementAck is the per-element outcome reported inside a ControlLoopAck.
type ElementAck struct {
	State   State     `json:"state"`
	Result  AckResult `json:"result"`
	Message string    `json:"message,omitempty"`
}

// ControlLoopAck answers both UPDATE and STATE_CHANGE. MessageType tells them apart.
type ControlLoopAck struct {
	MessageHeader
	AckHeader
	ElementResults map[string]ElementAck `json:"elementResults"`
}

// ParticipantUpdate distributes the element definitions of a participant type.
type ParticipantUpdate struct {
	MessageHeader
	Definitions []ElementDefinition `json:"definitions"`
}

type ParticipantUpdateAck struct {
	MessageHeader
	AckHeader
}
