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

	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/internal/fsm"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/metrics"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/models"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/persistence"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/standarderrors"
)

var ErrInstanceExists = errors.New("instance already exists")

// CreateInstance stores a new instance. It starts UNINITIALISED with all of its
// elements; the scanner picks it up when its ordered state differs. Empty
// instance and element ids are generated.
func (h *Handler) CreateInstance(ctx context.Context, instance *models.Instance) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}

	if err := validateNewInstance(instance); err != nil {
		return err
	}

	return h.withInstanceLock(ctx, instance.ID, func() error {
		_, err := h.store.GetInstance(ctx, instance.ID)

		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrInstanceExists, instance.ID)
		case !errors.Is(err, persistence.ErrNotFound):
			return fmt.Errorf("failed to look up instance %s: %w", instance.ID, err)
		}

		instance.State = models.StateUninitialised

		elements := make(map[string]*models.Element, len(instance.Elements))
		for key, el := range instance.Elements {
			if el.ID == "" {
				el.ID = key
			}

			if el.ID == "" {
				el.ID = uuid.NewString()
			}

			el.State = models.StateUninitialised
			el.OrderedState = instance.OrderedState
			elements[el.ID] = el
		}

		instance.Elements = elements

		if err := h.saveInstance(ctx, instance); err != nil {
			return err
		}

		h.log.Infof("Instance %s (%s:%s) created with %d elements, ordered %s",
			instance.ID, instance.Name, instance.Version, len(instance.Elements), instance.OrderedState)

		return nil
	})
}

func validateNewInstance(instance *models.Instance) error {
	const op = "create_instance"

	if instance.Name == "" || instance.Version == "" {
		return standarderrors.NewValidationError(op, "instance %s needs name and version", instance.ID)
	}

	if instance.OrderedState == "" {
		instance.OrderedState = models.OrderedStateUninitialised
	}

	if !instance.OrderedState.Valid() {
		return standarderrors.NewValidationError(op, "instance %s has invalid ordered state %q", instance.ID, instance.OrderedState)
	}

	if len(instance.Elements) == 0 {
		return standarderrors.NewValidationError(op, "instance %s has no elements", instance.ID)
	}

	for key, el := range instance.Elements {
		if el == nil {
			return standarderrors.NewValidationError(op, "instance %s has an empty element %s", instance.ID, key)
		}

		if el.ParticipantID.Name == "" || el.ParticipantID.Version == "" {
			return standarderrors.NewValidationError(op, "element %s of instance %s is not assigned to a participant", key, instance.ID)
		}

		if el.ID != "" && key != "" && el.ID != key {
			return standarderrors.NewValidationError(op, "element %s of instance %s is stored under key %s", el.ID, instance.ID, key)
		}
	}

	return nil
}

// SetOrderedState records a new ordered state. A terminal instance starts
// moving right away; a transitional one continues once its current step settled.
func (h *Handler) SetOrderedState(ctx context.Context, id string, ordered models.OrderedState) (*models.Instance, error) {
	if !ordered.Valid() {
		return nil, standarderrors.NewValidationError("set_ordered_state", "invalid ordered state %q", ordered)
	}

	var result *models.Instance

	err := h.withInstanceLock(ctx, id, func() error {
		instance, err := h.store.GetInstance(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return standarderrors.NewNotFoundError("instance", id, err)
		}

		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		result = instance

		if instance.OrderedState == ordered {
			return nil
		}

		h.log.Infof("Instance %s ordered %s (was %s)", id, ordered, instance.OrderedState)
		instance.OrderedState = ordered

		for _, el := range instance.Elements {
			el.OrderedState = ordered
		}

		if fsm.IsTransitional(instance.State) || instance.State == ordered.AsState() {
			return h.saveInstance(ctx, instance)
		}

		return h.initiate(ctx, instance)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteInstance removes an UNINITIALISED instance. Unknown ids are ignored.
func (h *Handler) DeleteInstance(ctx context.Context, id string) error {
	return h.withInstanceLock(ctx, id, func() error {
		instance, err := h.store.GetInstance(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		if instance.State != models.StateUninitialised {
			return standarderrors.NewValidationError("delete_instance", "instance %s is %s, it has to be UNINITIALISED to be deleted", id, instance.State)
		}

		if err := h.store.DeleteInstance(ctx, id); err != nil {
			return fmt.Errorf("failed to delete instance %s: %w", id, err)
		}

		h.instanceCounter.Clear(id)
		h.tracker.Close(id)
		metrics.DeleteInstanceState(id)
		h.log.Infof("Instance %s deleted", id)

		return nil
	})
}
