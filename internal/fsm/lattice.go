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

// Package fsm holds the deploy/run lattice every instance and element moves along.
// All transitions are declared once in latticeEvents and executed by looplab/fsm,
// so callers never compare state strings to decide where to go next.
package fsm

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
)

const (
	EventDeploy     = "deploy"
	EventDeployed   = "deployed"
	EventStart      = "start"
	EventStarted    = "started"
	EventStop       = "stop"
	EventStopped    = "stopped"
	EventUndeploy   = "undeploy"
	EventUndeployed = "undeployed"
)

var latticeEvents = []fsm.EventDesc{
	{Name: EventDeploy, Src: []string{string(models.StateUninitialised)}, Dst: string(models.StateUninitialised2Passive)},
	{Name: EventDeployed, Src: []string{string(models.StateUninitialised2Passive)}, Dst: string(models.StatePassive)},
	{Name: EventStart, Src: []string{string(models.StatePassive)}, Dst: string(models.StatePassive2Running)},
	{Name: EventStarted, Src: []string{string(models.StatePassive2Running)}, Dst: string(models.StateRunning)},
	{Name: EventStop, Src: []string{string(models.StateRunning)}, Dst: string(models.StateRunning2Passive)},
	{Name: EventStopped, Src: []string{string(models.StateRunning2Passive)}, Dst: string(models.StatePassive)},
	{Name: EventUndeploy, Src: []string{string(models.StatePassive)}, Dst: string(models.StatePassive2Uninitialised)},
	{Name: EventUndeployed, Src: []string{string(models.StatePassive2Uninitialised)}, Dst: string(models.StateUninitialised)},
}

// completionEvents maps a transitional state to the event that finishes it.
var completionEvents = map[models.State]string{
	models.StateUninitialised2Passive: EventDeployed,
	models.StatePassive2Running:       EventStarted,
	models.StateRunning2Passive:       EventStopped,
	models.StatePassive2Uninitialised: EventUndeployed,
}

// Lattice is a single state machine positioned at some state of the lattice.
type Lattice struct {
	fsm *fsm.FSM
}

// New returns a lattice positioned at state.
func New(state models.State) *Lattice {
	return &Lattice{
		fsm: fsm.NewFSM(string(state), fsm.Events(latticeEvents), fsm.Callbacks{}),
	}
}

func (l *Lattice) Current() models.State {
	return models.State(l.fsm.Current())
}

func (l *Lattice) Can(event string) bool {
	return l.fsm.Can(event)
}

// Fire applies event and returns the new state.
func (l *Lattice) Fire(ctx context.Context, event string) (models.State, error) {
	if err := l.fsm.Event(ctx, event); err != nil {
		return l.Current(), fmt.Errorf("cannot %s from %s: %w", event, l.Current(), err)
	}

	return l.Current(), nil
}

// IsTransitional reports whether state sits between two terminal states.
func IsTransitional(state models.State) bool {
	_, ok := completionEvents[state]

	return ok
}

// IsTerminal reports whether state is one of the three ordered states.
func IsTerminal(state models.State) bool {
	return models.OrderedState(state).Valid()
}

// nextEvent picks the event that moves a terminal state one step toward ordered.
func nextEvent(state models.State, ordered models.OrderedState) (string, bool) {
	switch state {
	case models.StateUninitialised:
		if ordered == models.OrderedStatePassive || ordered == models.OrderedStateRunning {
			return EventDeploy, true
		}
	case models.StatePassive:
		switch ordered {
		case models.OrderedStateRunning:
			return EventStart, true
		case models.OrderedStateUninitialised:
			return EventUndeploy, true
		case models.OrderedStatePassive:
		}
	case models.StateRunning:
		if ordered == models.OrderedStatePassive || ordered == models.OrderedStateUninitialised {
			return EventStop, true
		}
	default:
	}

	return "", false
}

// NextTransition returns the transitional state that takes a terminal state one
// step toward ordered. ok is false when state already matches ordered or when
// state is transitional; an in-flight transition has to finish first.
func NextTransition(state models.State, ordered models.OrderedState) (models.State, bool) {
	event, ok := nextEvent(state, ordered)
	if !ok {
		return "", false
	}

	next, err := New(state).Fire(context.Background(), event)
	if err != nil {
		return "", false
	}

	return next, true
}

// Destination returns the terminal state a transitional state settles into.
func Destination(transitional models.State) (models.State, error) {
	event, ok := completionEvents[transitional]
	if !ok {
		return "", fmt.Errorf("state %s is not transitional", transitional)
	}

	return New(transitional).Fire(context.Background(), event)
}

// Path returns every transitional state visited between state and ordered, in order.
func Path(state models.State, ordered models.OrderedState) ([]models.State, error) {
	var path []models.State

	current := state
	if IsTransitional(current) {
		path = append(path, current)

		dst, err := Destination(current)
		if err != nil {
			return nil, err
		}

		current = dst
	}

	for current != ordered.AsState() {
		next, ok := NextTransition(current, ordered)
		if !ok {
			return nil, fmt.Errorf("no transition from %s toward %s", current, ordered)
		}

		path = append(path, next)

		dst, err := Destination(next)
		if err != nil {
			return nil, err
		}

		current = dst
	}

	return path, nil
}
