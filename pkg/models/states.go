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

import "fmt"

// State is the actual state of an instance or element. Transitional states
// are named after the two terminal states they connect.
type State string

const (
	StateUninitialised         State = "UNINITIALISED"
	StateUninitialised2Passive State = "UNINITIALISED2PASSIVE"
	StatePassive               State = "PASSIVE"
	StatePassive2Running       State = "PASSIVE2RUNNING"
	StateRunning               State = "RUNNING"
	StateRunning2Passive       State = "RUNNING2PASSIVE"
	StatePassive2Uninitialised State = "PASSIVE2UNINITIALISED"

	// StateUnknown is only used for elements whose participant went away.
	StateUnknown State = "UNKNOWN"
)

// OrderedState is the state an operator wants an instance to reach.
type OrderedState string

const (
	OrderedStateUninitialised OrderedState = "UNINITIALISED"
	OrderedStatePassive       OrderedState = "PASSIVE"
	OrderedStateRunning       OrderedState = "RUNNING"
)

// AsState returns the terminal State that corresponds to the ordered state.
func (o OrderedState) AsState() State {
	return State(o)
}

// Valid reports whether o is one of the three ordered states.
func (o OrderedState) Valid() bool {
	switch o {
	case OrderedStateUninitialised, OrderedStatePassive, OrderedStateRunning:
		return true
	default:
		return false
	}
}

// ParseOrderedState validates s as an OrderedState.
func ParseOrderedState(s string) (OrderedState, error) {
	o := OrderedState(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown ordered state %q", s)
	}

	return o, nil
}

// ParticipantState is what a participant reports about itself.
type ParticipantState string

const (
	ParticipantStateUnknown    ParticipantState = "UNKNOWN"
	ParticipantStatePassive    ParticipantState = "PASSIVE"
	ParticipantStateActive     ParticipantState = "ACTIVE"
	ParticipantStateSafe       ParticipantState = "SAFE"
	ParticipantStateTest       ParticipantState = "TEST"
	ParticipantStateOffLine    ParticipantState = "OFF_LINE"
	ParticipantStateTerminated ParticipantState = "TERMINATED"
)

// ParticipantHealthStatus is the runtime's view of a participant's health.
type ParticipantHealthStatus string

const (
	HealthStatusHealthy    ParticipantHealthStatus = "HEALTHY"
	HealthStatusNotHealthy ParticipantHealthStatus = "NOT_HEALTHY"
	HealthStatusTest       ParticipantHealthStatus = "TEST"
	HealthStatusOffLine    ParticipantHealthStatus = "OFF_LINE"
	HealthStatusUnknown    ParticipantHealthStatus = "UNKNOWN"
)

// AckResult is the outcome a participant reports for a command.
type AckResult string

const (
	AckResultSuccess AckResult = "SUCCESS"
	AckResultFailure AckResult = "FAILURE"
)
