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

import "time"

// Participant is a remote process that runs elements.
type Participant struct {
	ID              Identifier              `json:"id"`
	ParticipantType Identifier              `json:"participantType"`
	State           ParticipantState        `json:"state"`
	HealthStatus    ParticipantHealthStatus `json:"healthStatus"`
	Description     string                  `json:"description,omitempty"`
	LastContact     time.Time               `json:"lastContact"`
}

// Key returns the identity used for locks, counters and metrics.
func (p *Participant) Key() string {
	return p.ID.String()
}

// ElementDefinition is a commissioned element template that a participant type can run.
type ElementDefinition struct {
	ID          Identifier        `json:"id" yaml:"id"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ParticipantStatistics is the load a participant reports with its status.
type ParticipantStatistics struct {
	ParticipantID      Identifier              `json:"participantId"`
	State              ParticipantState        `json:"state"`
	HealthStatus       ParticipantHealthStatus `json:"healthStatus"`
	Timestamp          time.Time               `json:"timestamp"`
	EventCount         int64                   `json:"eventCount"`
	LastExecutionMs    int64                   `json:"lastExecutionMs"`
	AverageExecutionMs float64                 `json:"averageExecutionMs"`
}

// ElementStatistics is the per-element load a participant reports with its status.
type ElementStatistics struct {
	InstanceID string    `json:"instanceId"`
	ElementID  string    `json:"elementId"`
	State      State     `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
	// Counter is a participant defined progress counter, e.g. processed records.
	Counter int64 `json:"counter"`
}
