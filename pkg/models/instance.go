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

// Instance is a supervised automation composition (control loop).
type Instance struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Description  string              `json:"description,omitempty"`
	OrderedState OrderedState        `json:"orderedState"`
	State        State               `json:"state"`
	Elements     map[string]*Element `json:"elements"`
}

// Element is the part of an instance that a single participant runs.
type Element struct {
	ID              string       `json:"id"`
	Definition      Identifier   `json:"definition"`
	ParticipantID   Identifier   `json:"participantId"`
	ParticipantType Identifier   `json:"participantType"`
	OrderedState    OrderedState `json:"orderedState"`
	State           State        `json:"state"`
	Description     string       `json:"description,omitempty"`
	// Message is the last message a participant attached to an ack for this element.
	Message string `json:"message,omitempty"`
}

// Key returns the identity used for locks, counters and metrics.
func (i *Instance) Key() string {
	return i.ID
}

// AllElementsIn reports whether every element is in state.
// An instance without elements trivially satisfies this.
func (i *Instance) AllElementsIn(state State) bool {
	for _, el := range i.Elements {
		if el.State != state {
			return false
		}
	}

	return true
}

// ParticipantsNotIn returns the participants that own at least one element not in state.
func (i *Instance) ParticipantsNotIn(state State) []Identifier {
	seen := make(map[Identifier]struct{})
	var participants []Identifier

	for _, el := range i.Elements {
		if el.State == state {
			continue
		}

		if _, ok := seen[el.ParticipantID]; ok {
			continue
		}

		seen[el.ParticipantID] = struct{}{}
		participants = append(participants, el.ParticipantID)
	}

	return participants
}

// ElementsOf returns the elements owned by participant.
func (i *Instance) ElementsOf(participant Identifier) []*Element {
	var elements []*Element

	for _, el := range i.Elements {
		if el.ParticipantID == participant {
			elements = append(elements, el)
		}
	}

	return elements
}
