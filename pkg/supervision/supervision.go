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

// Package supervision drives automation composition instances toward their
// ordered state. Handler reacts to participant messages and operator triggers,
// Scanner periodically re-drives whatever has not converged. Both share a Core.
package supervision

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/handlecounter"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
)

// Publisher sends commands to participants. Commands return their message id for correlation.
type Publisher interface {
	SendUpdate(ctx context.Context, instance *models.Instance, participant *models.Identifier) (uuid.UUID, error)
	SendStateChange(ctx context.Context, instance *models.Instance, target models.State, participant *models.Identifier) (uuid.UUID, error)
	SendStatusReq(ctx context.Context, participant models.Identifier) error
	SendRegisterAck(ctx context.Context, participant models.Identifier, responseTo uuid.UUID) error
	SendDeregisterAck(ctx context.Context, participant models.Identifier, responseTo uuid.UUID) error
	SendParticipantUpdate(ctx context.Context, participant models.Identifier, participantType models.Identifier, definitions []models.ElementDefinition) (uuid.UUID, error)
}

// DefinitionProvider looks up commissioned element definitions.
type DefinitionProvider interface {
	GetElementDefinitions(ctx context.Context, participantType models.Identifier) ([]models.ElementDefinition, error)
}

// StatisticsRecorder receives the statistics participants attach to their status.
type StatisticsRecorder interface {
	RecordParticipantStatistics(stats models.ParticipantStatistics)
	RecordElementStatistics(stats []models.ElementStatistics)
}

type Config struct {
	// MaxRetryCount is the number of re-sends before an instance or participant is faulted.
	MaxRetryCount int
	// MaxWait is how long an instance may stay transitional before commands are re-sent.
	// Zero or less re-sends on every scan.
	MaxWait time.Duration
	// MaxStatusWait is how long a participant may stay silent before it is asked for its status.
	// Zero or less asks on every scan.
	MaxStatusWait time.Duration
	// ScanConcurrency bounds how many instances one scan handles in parallel.
	ScanConcurrency int
	// CommandTTL is how long a sent command can still be acked.
	CommandTTL time.Duration
}

// Core is the state shared by Handler and Scanner.
type Core struct {
	store              persistence.Store
	publisher          Publisher
	tracker            *Tracker
	instanceCounter    *handlecounter.HandleCounter[string]
	participantCounter *handlecounter.HandleCounter[models.Identifier]
	instanceLocks      *keyedLocks[string]
	participantLocks   *keyedLocks[models.Identifier]
	now                func() time.Time
	log                *zap.SugaredLogger
	cfg                Config
}

func NewCore(store persistence.Store, publisher Publisher, cfg Config, log *zap.SugaredLogger) *Core {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Core{
		store:              store,
		publisher:          publisher,
		tracker:            NewTracker(cfg.CommandTTL),
		instanceCounter:    handlecounter.New[string](cfg.MaxRetryCount, log),
		participantCounter: handlecounter.New[models.Identifier](cfg.MaxRetryCount, log),
		instanceLocks:      newKeyedLocks[string](),
		participantLocks:   newKeyedLocks[models.Identifier](),
		now:                time.Now,
		log:                log,
		cfg:                cfg,
	}
}

func (c *Core) Store() persistence.Store { return c.store }

func (c *Core) Tracker() *Tracker { return c.tracker }

func (c *Core) InstanceCounter() *handlecounter.HandleCounter[string] {
	return c.instanceCounter
}

func (c *Core) ParticipantCounter() *handlecounter.HandleCounter[models.Identifier] {
	return c.participantCounter
}

// FaultedInstances lists the instances that ran out of retries, sorted by id.
func (c *Core) FaultedInstances() []string {
	keys := c.instanceCounter.FaultedKeys()
	slices.Sort(keys)

	return keys
}

// FaultedParticipants lists the participants that stopped answering status requests.
func (c *Core) FaultedParticipants() []models.Identifier {
	keys := c.participantCounter.FaultedKeys()
	slices.SortFunc(keys, func(a, b models.Identifier) int {
		return strings.Compare(a.String(), b.String())
	})

	return keys
}

// withInstanceLock runs fn while holding the lock of instance id.
func (c *Core) withInstanceLock(ctx context.Context, id string, fn func() error) error {
	locked := false

	err := c.instanceLocks.with(ctx, id, func() error {
		locked = true

		return fn()
	})
	if err != nil && !locked {
		return fmt.Errorf("failed to lock instance %s: %w", id, err)
	}

	return err
}

// withParticipantLock runs fn while holding the lock of participant id.
// A participant lock may be taken before instance locks, never after.
func (c *Core) withParticipantLock(ctx context.Context, id models.Identifier, fn func() error) error {
	locked := false

	err := c.participantLocks.with(ctx, id, func() error {
		locked = true

		return fn()
	})
	if err != nil && !locked {
		return fmt.Errorf("failed to lock participant %s: %w", id, err)
	}

	return err
}

func (c *Core) saveInstance(ctx context.Context, instance *models.Instance) error {
	if err := c.store.SaveInstance(ctx, instance); err != nil {
		metrics.IncErrorCount(metrics.ComponentPersistence, instance.ID)

		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	metrics.UpdateInstanceState(instance.ID, string(instance.State), string(instance.OrderedState))

	return nil
}

func commandKind(transitional models.State) models.MessageType {
	if transitional == models.StateUninitialised2Passive {
		return models.MessageTypeUpdate
	}

	return models.MessageTypeStateChange
}

// send publishes the command for the instance's transitional state and tracks it.
// A nil participant broadcasts to every owner of an element that has not arrived.
func (c *Core) send(ctx context.Context, instance *models.Instance, participant *models.Identifier) (models.MessageType, error) {
	target, err := fsm.Destination(instance.State)
	if err != nil {
		return "", err
	}

	kind := commandKind(instance.State)

	var waitFor []models.Identifier
	if participant != nil {
		waitFor = []models.Identifier{*participant}
	} else {
		waitFor = instance.ParticipantsNotIn(target)
	}

	if len(waitFor) == 0 {
		return kind, nil
	}

	var messageID uuid.UUID
	if kind == models.MessageTypeUpdate {
		messageID, err = c.publisher.SendUpdate(ctx, instance, participant)
	} else {
		messageID, err = c.publisher.SendStateChange(ctx, instance, target, participant)
	}

	if err != nil {
		return kind, err
	}

	c.tracker.Issue(messageID, instance.ID, kind, target, waitFor)

	return kind, nil
}

// initiate moves a terminal instance one lattice step toward its ordered state.
// The transitional state is saved before anything is published. A failed publish
// only logs; the scanner re-sends once the wait expired.
func (c *Core) initiate(ctx context.Context, instance *models.Instance) error {
	next, ok := fsm.NextTransition(instance.State, instance.OrderedState)
	if !ok {
		return fmt.Errorf("instance %s has no transition from %s toward %s", instance.ID, instance.State, instance.OrderedState)
	}

	previous := instance.State
	instance.State = next

	for _, el := range instance.Elements {
		el.OrderedState = instance.OrderedState
	}

	if err := c.saveInstance(ctx, instance); err != nil {
		return err
	}

	c.log.Infof("Instance %s: %s -> %s (ordered %s)", instance.ID, previous, next, instance.OrderedState)

	c.instanceCounter.Clear(instance.ID)
	c.instanceCounter.GetDuration(instance.ID)

	if _, err := c.send(ctx, instance, nil); err != nil {
		c.log.Warnf("Instance %s: failed to send command for %s, will retry: %v", instance.ID, next, err)
	}

	return nil
}

// settle finishes the transition of a converged instance and, if the ordered
// state lies further along, starts the next step right away.
func (c *Core) settle(ctx context.Context, instance *models.Instance) error {
	dst, err := fsm.Destination(instance.State)
	if err != nil {
		return err
	}

	instance.State = dst

	if err := c.saveInstance(ctx, instance); err != nil {
		return err
	}

	c.instanceCounter.Clear(instance.ID)
	c.tracker.Close(instance.ID)
	c.log.Infof("Instance %s settled in %s", instance.ID, dst)

	if dst == instance.OrderedState.AsState() {
		return nil
	}

	return c.initiate(ctx, instance)
}
