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

package supervision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/sentry"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/standarderrors"
)

const deregisteredMessage = "participant deregistered"

// Handler reacts to participant messages and operator triggers.
type Handler struct {
	*Core
	definitions DefinitionProvider
	recorder    StatisticsRecorder
	log         *zap.SugaredLogger
}

// NewHandler wires a handler. definitions and recorder may be nil.
func NewHandler(core *Core, definitions DefinitionProvider, recorder StatisticsRecorder, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Handler{Core: core, definitions: definitions, recorder: recorder, log: log}
}

func (h *Handler) HandleParticipantRegister(ctx context.Context, msg *models.ParticipantRegister) error {
	id := *msg.ParticipantID

	if msg.ParticipantType == nil {
		return standarderrors.NewValidationError("register", "participant %s did not send its type", id)
	}

	return h.withParticipantLock(ctx, id, func() error {
		participant := &models.Participant{
			ID:              id,
			ParticipantType: *msg.ParticipantType,
			State:           models.ParticipantStateActive,
			HealthStatus:    models.HealthStatusHealthy,
			Description:     msg.Description,
			LastContact:     h.now(),
		}

		if err := h.store.SaveParticipant(ctx, participant); err != nil {
			return fmt.Errorf("failed to save participant %s: %w", id, err)
		}

		h.participantCounter.Clear(id)
		h.log.Infof("Participant %s (%s) registered", id, participant.ParticipantType)

		if err := h.publisher.SendRegisterAck(ctx, id, msg.MessageID); err != nil {
			h.log.Warnf("Failed to ack registration of %s: %v", id, err)
		}

		return h.distributeDefinitions(ctx, participant)
	})
}

// distributeDefinitions sends the commissioned definitions of a participant type
// to the first healthy participant of that type. It runs under the participant
// lock, so the update ack cannot be handled before the command is tracked.
func (h *Handler) distributeDefinitions(ctx context.Context, participant *models.Participant) error {
	if h.definitions == nil {
		return nil
	}

	sameType, err := h.store.GetParticipants(ctx, persistence.ParticipantFilter{ParticipantType: &participant.ParticipantType})
	if err != nil {
		return fmt.Errorf("failed to list participants of type %s: %w", participant.ParticipantType, err)
	}

	healthy := 0

	for _, p := range sameType {
		if p.HealthStatus == models.HealthStatusHealthy {
			healthy++
		}
	}

	if healthy != 1 {
		return nil
	}

	definitions, err := h.definitions.GetElementDefinitions(ctx, participant.ParticipantType)
	if err != nil {
		metrics.IncErrorCountAndLog(metrics.ComponentCommissioning, participant.ParticipantType.String(), err, h.log)

		return fmt.Errorf("failed to get element definitions for %s: %w", participant.ParticipantType, err)
	}

	if len(definitions) == 0 {
		return nil
	}

	messageID, err := h.publisher.SendParticipantUpdate(ctx, participant.ID, participant.ParticipantType, definitions)
	if err != nil {
		h.log.Warnf("Failed to send definitions to %s: %v", participant.ID, err)

		return nil
	}

	h.tracker.Issue(messageID, "", models.MessageTypeParticipantUpdate, "", []models.Identifier{participant.ID})
	h.log.Infof("Sent %d element definitions to %s", len(definitions), participant.ID)

	return nil
}

func (h *Handler) HandleParticipantDeregister(ctx context.Context, msg *models.ParticipantDeregister) error {
	id := *msg.ParticipantID

	return h.withParticipantLock(ctx, id, func() error {
		_, err := h.store.GetParticipant(ctx, id)

		switch {
		case errors.Is(err, persistence.ErrNotFound):
			h.log.Debugf("Deregister from unknown participant %s", id)
		case err != nil:
			return fmt.Errorf("failed to load participant %s: %w", id, err)
		default:
			if err := h.orphanElements(ctx, id); err != nil {
				return err
			}

			if err := h.store.DeleteParticipant(ctx, id); err != nil {
				return fmt.Errorf("failed to delete participant %s: %w", id, err)
			}

			h.log.Infof("Participant %s deregistered", id)
		}

		h.participantCounter.Clear(id)

		if err := h.publisher.SendDeregisterAck(ctx, id, msg.MessageID); err != nil {
			h.log.Warnf("Failed to ack deregistration of %s: %v", id, err)
		}

		return nil
	})
}

// orphanElements moves every element owned by participant to UNKNOWN.
func (h *Handler) orphanElements(ctx context.Context, participant models.Identifier) error {
	instances, err := h.store.GetInstances(ctx, persistence.InstanceFilter{})
	if err != nil {
		return fmt.Errorf("failed to load instances: %w", err)
	}

	for _, candidate := range instances {
		if len(candidate.ElementsOf(participant)) == 0 {
			continue
		}

		err := h.withInstanceLock(ctx, candidate.ID, func() error {
			instance, err := h.store.GetInstance(ctx, candidate.ID)
			if errors.Is(err, persistence.ErrNotFound) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("failed to load instance %s: %w", candidate.ID, err)
			}

			for _, el := range instance.ElementsOf(participant) {
				el.State = models.StateUnknown
				el.Message = deregisteredMessage
			}

			return h.saveInstance(ctx, instance)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) HandleParticipantStatusMessage(ctx context.Context, msg *models.ParticipantStatus) error {
	id := *msg.ParticipantID
	registered := false

	err := h.withParticipantLock(ctx, id, func() error {
		participant, err := h.store.GetParticipant(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			h.log.Debugf("Status from unregistered participant %s dropped", id)

			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to load participant %s: %w", id, err)
		}

		if msg.State != "" {
			participant.State = msg.State
		}

		if msg.HealthStatus != "" {
			participant.HealthStatus = msg.HealthStatus
		}

		if msg.Description != "" {
			participant.Description = msg.Description
		}

		participant.LastContact = h.now()

		if err := h.store.SaveParticipant(ctx, participant); err != nil {
			return fmt.Errorf("failed to save participant %s: %w", id, err)
		}

		registered = true

		return nil
	})
	if err != nil || !registered {
		return err
	}

	if h.recorder == nil {
		return nil
	}

	if msg.Statistics != nil {
		stats := *msg.Statistics
		stats.ParticipantID = id
		h.recorder.RecordParticipantStatistics(stats)
	}

	if len(msg.ElementStatistics) > 0 {
		h.recorder.RecordElementStatistics(msg.ElementStatistics)
	}

	return nil
}

// HandleControlLoopAck merges an UPDATE_ACK or STATE_CHANGE_ACK into its instance.
func (h *Handler) HandleControlLoopAck(ctx context.Context, ack *models.ControlLoopAck) error {
	participant := *ack.ParticipantID

	err := h.withInstanceLock(ctx, ack.InstanceID, func() error {
		target, outcome := h.tracker.Accept(ack.ResponseTo, ack.MessageType, ack.InstanceID, participant)
		if outcome != OutcomeAccepted {
			h.log.Debugf("Discarding %s from %s for %s: %s", ack.MessageType, participant, ack.ResponseTo, outcome)
			metrics.IncStaleAcks(string(ack.MessageType))

			return nil
		}

		instance, err := h.store.GetInstance(ctx, ack.InstanceID)
		if errors.Is(err, persistence.ErrNotFound) {
			h.log.Debugf("Ack for deleted instance %s", ack.InstanceID)

			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", ack.InstanceID, err)
		}

		dst, err := fsm.Destination(instance.State)
		if err != nil || dst != target {
			h.log.Debugf("Discarding %s for %s: instance is %s, command targeted %s", ack.MessageType, instance.ID, instance.State, target)
			metrics.IncStaleAcks(string(ack.MessageType))

			return nil
		}

		h.mergeElementResults(instance, participant, ack, target)

		if instance.AllElementsIn(dst) {
			return h.settle(ctx, instance)
		}

		return h.saveInstance(ctx, instance)
	})
	if err != nil {
		return err
	}

	h.touchParticipant(ctx, participant)

	return nil
}

// mergeElementResults advances the participant's elements that reported success
// for target and records the message of every failed one.
func (h *Handler) mergeElementResults(instance *models.Instance, participant models.Identifier, ack *models.ControlLoopAck, target models.State) {
	for elementID, result := range ack.ElementResults {
		el, ok := instance.Elements[elementID]
		if !ok || el.ParticipantID != participant {
			h.log.Debugf("Ignoring result for element %s of %s, not owned by %s", elementID, instance.ID, participant)

			continue
		}

		if ack.Succeeded() && result.Result == models.AckResultSuccess && result.State == target {
			el.State = target
			el.Message = result.Message

			continue
		}

		el.Message = result.Message
		if el.Message == "" {
			el.Message = ack.Message
		}

		h.log.Warnf("Element %s of %s failed to reach %s: %s", elementID, instance.ID, target, el.Message)
	}
}

// touchParticipant records that participant is alive.
func (h *Handler) touchParticipant(ctx context.Context, id models.Identifier) {
	err := h.withParticipantLock(ctx, id, func() error {
		h.markContact(ctx, id)

		return nil
	})
	if err != nil {
		h.log.Debugf("Failed to update last contact of %s: %v", id, err)
	}
}

// markContact needs the participant lock.
func (h *Handler) markContact(ctx context.Context, id models.Identifier) {
	h.participantCounter.Clear(id)

	participant, err := h.store.GetParticipant(ctx, id)
	if err != nil {
		return
	}

	participant.LastContact = h.now()

	if err := h.store.SaveParticipant(ctx, participant); err != nil {
		h.log.Debugf("Failed to update last contact of %s: %v", id, err)
	}
}

func (h *Handler) HandleParticipantUpdateAck(ctx context.Context, ack *models.ParticipantUpdateAck) error {
	participant := *ack.ParticipantID

	return h.withParticipantLock(ctx, participant, func() error {
		if _, outcome := h.tracker.Accept(ack.ResponseTo, ack.MessageType, "", participant); outcome != OutcomeAccepted {
			h.log.Debugf("Discarding participant update ack from %s: %s", participant, outcome)
			metrics.IncStaleAcks(string(ack.MessageType))

			return nil
		}

		if !ack.Succeeded() {
			sentry.ReportSupervisionErrorf(sentry.IssueTypeWarning, h.log, metrics.FaultKindParticipant, participant.String(), "participant_update",
				"participant %s failed to apply element definitions: %s", participant, ack.Message)

			return nil
		}

		h.log.Infof("Participant %s applied element definitions", participant)
		h.markContact(ctx, participant)

		return nil
	})
}

// TriggerControlLoopSupervision starts supervision of the given instances.
// All ids are validated before any instance is changed.
func (h *Handler) TriggerControlLoopSupervision(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return standarderrors.NewValidationError("trigger_supervision", "no instance ids given")
	}

	participants, err := h.store.GetParticipants(ctx, persistence.ParticipantFilter{})
	if err != nil {
		return fmt.Errorf("failed to list participants: %w", err)
	}

	if len(participants) == 0 {
		return standarderrors.NewValidationError("trigger_supervision", "no participants registered")
	}

	for _, id := range ids {
		instance, err := h.store.GetInstance(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return standarderrors.NewNotFoundError("instance", id, err)
		}

		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		if instance.State == instance.OrderedState.AsState() {
			return standarderrors.NewValidationError("trigger_supervision", "instance %s is already %s", id, instance.State)
		}

		if fsm.IsTransitional(instance.State) && !h.instanceCounter.IsFault(id) {
			return standarderrors.NewValidationError("trigger_supervision", "instance %s is already in transition %s", id, instance.State)
		}
	}

	for _, id := range ids {
		if err := h.withInstanceLock(ctx, id, func() error { return h.trigger(ctx, id) }); err != nil {
			return err
		}
	}

	return nil
}

// trigger runs under the instance lock. A faulted transition is restarted
// with a fresh retry budget.
func (h *Handler) trigger(ctx context.Context, id string) error {
	instance, err := h.store.GetInstance(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load instance %s: %w", id, err)
	}

	switch {
	case instance.State == instance.OrderedState.AsState():
		return nil
	case fsm.IsTransitional(instance.State):
		if !h.instanceCounter.IsFault(id) {
			return nil
		}

		h.log.Infof("Restarting faulted transition %s of instance %s", instance.State, id)
		h.instanceCounter.Clear(id)
		h.instanceCounter.GetDuration(id)

		if _, err := h.send(ctx, instance, nil); err != nil {
			h.log.Warnf("Instance %s: failed to re-send command, will retry: %v", id, err)
		}

		return nil
	default:
		return h.initiate(ctx, instance)
	}
}
